package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

// Dir is a Source over a local directory, used with the SQLite store for
// single-node deployments.
type Dir struct {
	root string
}

var _ Source = (*Dir)(nil)

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) path(key string) (string, error) {
	p := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(d.root)+string(filepath.Separator)) {
		return "", apperr.Validation("invalid object key %q", key)
	}
	return p, nil
}

func (d *Dir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Permanent(apperr.ReasonSourceMissing, err, "source video %s not found", key)
		}
		return nil, apperr.Transient(apperr.ReasonNone, err, "failed to open source video %s", key)
	}
	return f, nil
}

func (d *Dir) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
