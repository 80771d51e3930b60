package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"livraria/backend/internal/xid"
)

// ErrPermissionDenied tells callers to fall back to embedding the file.
var ErrPermissionDenied = errors.New("storage permission denied")

type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// Dir writes objects below root and serves them under baseURL.
type Dir struct {
	root    string
	baseURL string
	now     func() time.Time
}

func NewDir(root string, baseURL string) *Dir {
	return &Dir{root: root, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (d *Dir) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload")
	}

	key := path.Join(d.now().UTC().Format("2006/01"), xid.Short(xid.New(""))+"-"+sanitize(name))
	target := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", mapErr(err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", mapErr(err)
	}
	return d.baseURL + "/" + key, nil
}

// Disabled refuses every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, []byte) (string, error) {
	return "", ErrPermissionDenied
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "receipt"
	}
	return out
}
