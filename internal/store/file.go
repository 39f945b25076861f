package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists each collection as one JSON file in a data directory.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a torn blob behind.
type FileStore struct {
	dir string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	closed bool
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileStore) keyLock(key string) (*sync.Mutex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	return l, nil
}

// Get implements Store.
func (f *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, false, ErrClosed
	}

	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: read %s: %w", key, err)
	}
	return data, true, nil
}

// Put implements Store.
func (f *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := f.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	return f.write(key, data)
}

// Delete implements Store.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := f.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Update implements Store. The key stays locked across the read, the
// callback and the write-back.
func (f *FileStore) Update(ctx context.Context, key string, fn func(data []byte, found bool) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := f.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(f.path(key))
	found := true
	if os.IsNotExist(err) {
		data, found = nil, false
	} else if err != nil {
		return fmt.Errorf("store: read %s: %w", key, err)
	}

	next, err := fn(data, found)
	if err != nil {
		return err
	}
	if next == nil {
		if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: delete %s: %w", key, err)
		}
		return nil
	}
	return f.write(key, next)
}

func (f *FileStore) write(key string, data []byte) error {
	path := f.path(key)
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
