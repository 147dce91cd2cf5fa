package credentials

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
)

var ErrUserRequired = errors.New("audit user is required")

// Manager holds the current auditor credentials and mirrors every change to
// the store. Queries stay disabled until Hydrate has run.
type Manager struct {
	store ports.CredentialStore
	log   *slog.Logger

	mu       sync.RWMutex
	creds    domain.Credentials
	hydrated bool
}

func New(store ports.CredentialStore, log *slog.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{store: store, log: log}
}

// Hydrate reads stored credentials once. A read failure leaves the manager
// hydrated with empty credentials.
func (m *Manager) Hydrate() {
	creds, found, err := m.store.Load()
	if err != nil {
		m.log.Warn("could not read stored credentials", "err", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if found {
		m.creds = creds
	}
	m.hydrated = true
}

// Snapshot returns the current credentials and whether Hydrate has run.
func (m *Manager) Snapshot() (domain.Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, m.hydrated
}

func (m *Manager) Set(creds domain.Credentials) error {
	creds.User = strings.TrimSpace(creds.User)
	creds.Token = strings.TrimSpace(creds.Token)
	if creds.User == "" {
		return ErrUserRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(creds); err != nil {
		return err
	}
	m.creds = creds
	m.hydrated = true
	return nil
}

// Update applies fn to a copy of the current credentials and stores the result.
func (m *Manager) Update(fn func(*domain.Credentials)) error {
	m.mu.RLock()
	next := m.creds
	m.mu.RUnlock()
	fn(&next)
	return m.Set(next)
}

func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.creds = domain.Credentials{}
	m.hydrated = true
	return nil
}
