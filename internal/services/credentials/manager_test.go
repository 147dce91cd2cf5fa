package credentials

import (
	"errors"
	"path/filepath"
	"testing"

	"omraudit/internal/adapters/credfile"
	"omraudit/internal/domain"
)

type failingStore struct{}

func (failingStore) Load() (domain.Credentials, bool, error) {
	return domain.Credentials{}, false, errors.New("disk on fire")
}
func (failingStore) Save(domain.Credentials) error { return errors.New("read-only") }
func (failingStore) Clear() error                  { return nil }

func TestHydrateAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	m := New(credfile.New(path, nil), nil)

	if _, hydrated := m.Snapshot(); hydrated {
		t.Fatal("hydrated before Hydrate")
	}
	m.Hydrate()
	creds, hydrated := m.Snapshot()
	if !hydrated || creds.User != "" {
		t.Fatalf("snapshot = %+v %v", creds, hydrated)
	}
	if err := m.Set(domain.Credentials{User: "  ana ", Token: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(func(c *domain.Credentials) { c.Token = "" }); err != nil {
		t.Fatal(err)
	}

	again := New(credfile.New(path, nil), nil)
	again.Hydrate()
	got, _ := again.Snapshot()
	if got.User != "ana" || got.Token != "" {
		t.Fatalf("reloaded = %+v", got)
	}

	if err := again.Clear(); err != nil {
		t.Fatal(err)
	}
	if got, _ := again.Snapshot(); got.User != "" {
		t.Fatalf("after clear = %+v", got)
	}
}

func TestSetRequiresUser(t *testing.T) {
	m := New(credfile.New(filepath.Join(t.TempDir(), "c.json"), nil), nil)
	if err := m.Set(domain.Credentials{Token: "x"}); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("err = %v", err)
	}
}

func TestStoreFailures(t *testing.T) {
	m := New(failingStore{}, nil)
	m.Hydrate()
	if _, hydrated := m.Snapshot(); !hydrated {
		t.Fatal("read failure should still hydrate")
	}
	if err := m.Set(domain.Credentials{User: "ana"}); err == nil {
		t.Fatal("expected save error")
	}
	if got, _ := m.Snapshot(); got.User != "" {
		t.Fatalf("state changed despite save failure: %+v", got)
	}
}
