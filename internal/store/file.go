package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// File keeps one <key>.json document per key inside a directory.
type File struct {
	dir string
}

// NewFile creates the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Path returns the file backing key.
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Load reads the document for key.
func (f *File) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes to a pending file in the same directory and renames it over
// the old document, so readers see either the old or the new file, never a
// torn one.
func (f *File) Save(_ context.Context, key string, data []byte) error {
	pf, err := renameio.NewPendingFile(f.Path(key), renameio.WithTempDir(f.dir), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer pf.Cleanup() // no-op after a successful replace

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Ping checks the data directory is still there.
func (f *File) Ping(context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", f.dir)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }
