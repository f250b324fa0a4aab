package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File stores each key as <dir>/<key>.json. Writes go to a temp file in the
// same directory and are renamed into place.
type File struct {
	mu   sync.Mutex
	dir  string
	opts options
}

// NewFile creates a file store rooted at dir, creating the directory if needed.
func NewFile(dir string, opts ...Option) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &File{dir: dir, opts: buildOptions(opts)}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get implements Store.
func (f *File) Get(key string, dst any) (bool, error) {
	if !keyPattern.MatchString(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	data, err := os.ReadFile(f.path(key)) //#nosec G304 -- key is validated against keyPattern
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return true, decode(key, data, dst)
}

// Set implements Store.
func (f *File) Set(key string, value any) error {
	data, err := f.opts.encode(key, value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opts.maxTotalBytes > 0 {
		used, err := f.usedLocked(key)
		if err != nil {
			return err
		}
		if err := f.opts.checkTotal(key, len(data), used); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// usedLocked sums the size of every stored value except key's.
func (f *File) usedLocked(key string) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list store directory: %w", err)
	}
	used := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") || name == key+".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		used += int(info.Size())
	}
	return used, nil
}

// Delete implements Store.
func (f *File) Delete(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error {
	return nil
}
