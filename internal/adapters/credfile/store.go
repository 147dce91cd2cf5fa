package credfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"omraudit/internal/domain"
	"omraudit/internal/fsutil"
	"omraudit/internal/logging"
)

// Store keeps credentials in a single JSON file readable only by the owner.
type Store struct {
	path string
	log  *slog.Logger
}

func New(path string, log *slog.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load returns found=false when the file is missing. A file that cannot be
// decoded, or holds no user, is removed and treated as missing.
func (s *Store) Load() (domain.Credentials, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Credentials{}, false, nil
	}
	if err != nil {
		return domain.Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}
	var creds domain.Credentials
	if err := json.Unmarshal(bytes.TrimSpace(b), &creds); err != nil || strings.TrimSpace(creds.User) == "" {
		s.log.Warn("discarding unreadable stored credentials", "path", s.path, "err", err)
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return domain.Credentials{}, false, fmt.Errorf("remove corrupt credentials: %w", rmErr)
		}
		return domain.Credentials{}, false, nil
	}
	return creds, true, nil
}

func (s *Store) Save(creds domain.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(context.Background(), s.path, bytes.NewReader(b), 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
