// Package memory is an in-process adapter.Store keeping insertion order.
package memory

import (
	"sync"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/storage/common"
)

type Options func(*Memory)

// WithQuota limits the total size of keys and values in bytes.
func WithQuota(bytes int64) Options {
	return func(m *Memory) {
		m.quota = bytes
	}
}

type Memory struct {
	mu     sync.RWMutex
	order  []string
	index  map[string]int
	values map[string]string
	used   int64
	quota  int64
	closed bool
}

func New(opts ...Options) *Memory {
	m := &Memory{
		index:  map[string]int{},
		values: map[string]string{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ adapter.Store = (*Memory)(nil)

func (m *Memory) SetItem(key, value string) error {
	if key == "" {
		return common.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return common.ErrClosed
	}
	used := m.used + common.Size(key, value)
	old, exists := m.values[key]
	if exists {
		used -= common.Size(key, old)
	}
	if m.quota > 0 && used > m.quota {
		return common.ErrQuotaExceeded
	}
	if !exists {
		m.index[key] = len(m.order)
		m.order = append(m.order, key)
	}
	m.values[key] = value
	m.used = used
	return nil
}

func (m *Memory) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) RemoveItem(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.used -= common.Size(key, m.values[key])
	delete(m.values, key)
	delete(m.index, key)
	m.order = append(m.order[:i], m.order[i+1:]...)
	for ; i < len(m.order); i++ {
		m.index[m.order[i]] = i
	}
}

func (m *Memory) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Memory) Key(index int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.order) {
		return "", false
	}
	return m.order[index], true
}

func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Used reports how many bytes count against the quota.
func (m *Memory) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func (m *Memory) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
