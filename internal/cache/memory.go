package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Backend used by tests and embedded runs. Mutations
// are serialized by a single mutex, which gives PushTrim the same atomicity
// the Redis script provides.
type Memory struct {
	mu      sync.Mutex
	lists   map[string]*memoryList
	objects map[string]memoryObject

	// Now is overridable for TTL tests.
	Now func() time.Time
}

type memoryList struct {
	items   [][]byte
	expires time.Time // zero means no expiry
}

type memoryObject struct {
	val     []byte
	expires time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		lists:   make(map[string]*memoryList),
		objects: make(map[string]memoryObject),
		Now:     time.Now,
	}
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.Now().Add(ttl)
}

func expired(at time.Time, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}

func (m *Memory) liveList(key string) *memoryList {
	l, ok := m.lists[key]
	if !ok {
		return nil
	}
	if expired(l.expires, m.Now()) {
		delete(m.lists, key)
		return nil
	}
	return l
}

// GetList implements Lists.
func (m *Memory) GetList(_ context.Context, key string) ([][]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.liveList(key)
	if l == nil {
		return nil, false, nil
	}
	out := make([][]byte, len(l.items))
	for i, it := range l.items {
		out[i] = append([]byte(nil), it...)
	}
	return out, true, nil
}

// SetList implements Lists.
func (m *Memory) SetList(_ context.Context, key string, items [][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([][]byte, len(items))
	for i, it := range items {
		stored[i] = append([]byte(nil), it...)
	}
	m.lists[key] = &memoryList{items: stored, expires: m.expiry(ttl)}
	return nil
}

// PushTrim implements Lists.
func (m *Memory) PushTrim(_ context.Context, key string, item []byte, capacity int, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.liveList(key)
	if l == nil {
		return false, nil
	}
	items := append([][]byte{append([]byte(nil), item...)}, l.items...)
	if capacity > 0 && len(items) > capacity {
		items = items[:capacity]
	}
	l.items = items
	l.expires = m.expiry(ttl)
	return true, nil
}

// DelList implements Lists.
func (m *Memory) DelList(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, key)
	return nil
}

// GetObject implements Objects.
func (m *Memory) GetObject(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok || expired(o.expires, m.Now()) {
		delete(m.objects, key)
		return nil, false, nil
	}
	return append([]byte(nil), o.val...), true, nil
}

// SetObject implements Objects.
func (m *Memory) SetObject(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{val: append([]byte(nil), val...), expires: m.expiry(ttl)}
	return nil
}

// DelObject implements Objects.
func (m *Memory) DelObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
