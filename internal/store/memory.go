package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store backed by a map. It is the default
// backend and the one tests use.
type MemoryStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	locks  map[string]*sync.Mutex
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) keyLock(key string) (*sync.Mutex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	data, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := m.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	return m.set(key, data)
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := m.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.blobs, key)
	return nil
}

// Update implements Store. The key stays locked for the duration of fn.
func (m *MemoryStore) Update(ctx context.Context, key string, fn func(data []byte, found bool) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock, err := m.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	current, found, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	if next == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return ErrClosed
		}
		delete(m.blobs, key)
		return nil
	}
	return m.set(key, next)
}

func (m *MemoryStore) set(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[key] = stored
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.blobs = nil
	return nil
}
