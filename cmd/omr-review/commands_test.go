package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"omraudit/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out, clock: clockwork.NewFakeClock()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	t.Setenv("OMR_CREDENTIALS_PATH", filepath.Join(t.TempDir(), "creds.json"))
	t.Setenv("OMR_LOG_LEVEL", "error")

	if out, _ := run(t, "whoami"); !strings.Contains(out, "Not logged in") {
		t.Fatalf("whoami before login = %q", out)
	}
	if _, err := run(t, "login", "--user", " ana ", "--token", "s3cret"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "whoami", "--api-url", "http://audit.example:9000")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"user:  ana", "token: set", "api:   http://audit.example:9000"} {
		if !strings.Contains(out, want) {
			t.Errorf("whoami lacks %q in %q", want, out)
		}
	}
	if _, err := run(t, "login", "--user", "bob"); err != nil {
		t.Fatal(err)
	}
	if out, _ := run(t, "whoami"); !strings.Contains(out, "token: set") {
		t.Fatalf("login without --token dropped the stored token: %q", out)
	}
	if _, err := run(t, "logout"); err != nil {
		t.Fatal(err)
	}
	if out, _ := run(t, "whoami"); !strings.Contains(out, "Not logged in") {
		t.Fatalf("whoami after logout = %q", out)
	}
}

func TestBadAPIURLFlag(t *testing.T) {
	t.Setenv("OMR_CREDENTIALS_PATH", filepath.Join(t.TempDir(), "creds.json"))
	if _, err := run(t, "whoami", "--api-url", "not a url"); err == nil {
		t.Fatal("expected an invalid api url to fail")
	}
}

func TestBrokenConfigFileFailsWithAPIURLFlag(t *testing.T) {
	t.Setenv("OMR_CREDENTIALS_PATH", filepath.Join(t.TempDir(), "creds.json"))
	path := filepath.Join(t.TempDir(), "omr.yaml")
	if err := os.WriteFile(path, []byte("api_url: [unterminated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "whoami", "--config", path, "--api-url", "http://audit.example:9000")
	if err == nil {
		t.Fatal("an unreadable config file was ignored because --api-url was set")
	}
}

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"q1=b", "q2=", " q3 = C"})
	if err != nil {
		t.Fatal(err)
	}
	if got["q1"] != "B" || got["q2"] != domain.Blank || got["q3"] != "C" {
		t.Fatalf("answers = %v", got)
	}
	for _, bad := range []string{"q1", "=A"} {
		if _, err := parseAnswers([]string{bad}); err == nil {
			t.Errorf("parseAnswers(%q) accepted", bad)
		}
	}
}

func TestCleanupNeedsConfirmation(t *testing.T) {
	t.Setenv("OMR_CREDENTIALS_PATH", filepath.Join(t.TempDir(), "creds.json"))
	_, err := run(t, "cleanup", "b1")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("cleanup without --yes: %v", err)
	}
}
