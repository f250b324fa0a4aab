package store

import "sync"

// Memory is an in-process Store. Nothing survives the process.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	opts   options
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		data: make(map[string][]byte),
		opts: buildOptions(opts),
	}
}

// Get implements Store.
func (m *Memory) Get(key string, dst any) (bool, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}
	return true, decode(key, data, dst)
}

// Set implements Store.
func (m *Memory) Set(key string, value any) error {
	data, err := m.opts.encode(key, value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.opts.maxTotalBytes > 0 {
		used := 0
		for k, v := range m.data {
			if k != key {
				used += len(v)
			}
		}
		if err := m.opts.checkTotal(key, len(data), used); err != nil {
			return err
		}
	}
	m.data[key] = data
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

// Keys returns the stored keys in no particular order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
