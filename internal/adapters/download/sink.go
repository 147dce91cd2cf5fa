package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"omraudit/internal/fsutil"
	"omraudit/internal/logging"
)

var ErrBadName = errors.New("invalid download file name")

// Dir saves downloads into one directory. Names are flattened to their base
// so a backend-supplied name cannot escape the directory.
type Dir struct {
	root string
	log  *slog.Logger
}

func New(root string, log *slog.Logger) *Dir {
	if log == nil {
		log = logging.Discard()
	}
	return &Dir{root: root, log: log}
}

func (d *Dir) Root() string { return d.root }

// Save writes data to <root>/<base(name)> and returns the absolute path.
func (d *Dir) Save(ctx context.Context, name string, data []byte) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(d.root, base))
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileAtomic(ctx, path, bytes.NewReader(data), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", base, err)
	}
	d.log.Debug("download saved", "path", path, "bytes", len(data))
	return path, nil
}
