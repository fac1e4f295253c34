// Package cache provides the key/value caches used for computed railways and
// reference data.
package cache

import (
	"context"
	"sync"
)

// Cache is a get/put store without an eviction contract
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Put(ctx context.Context, key K, value V)
}

// Memory is an in-process Cache
type Memory[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{items: make(map[K]V)}
}

func (m *Memory[K, V]) Get(_ context.Context, key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Memory[K, V]) Put(_ context.Context, key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Tiered reads through a fast cache into a slower shared one. Values found in
// the second tier are copied into the first.
type Tiered[K comparable, V any] struct {
	first  Cache[K, V]
	second Cache[K, V]
}

func NewTiered[K comparable, V any](first, second Cache[K, V]) *Tiered[K, V] {
	return &Tiered[K, V]{first: first, second: second}
}

func (t *Tiered[K, V]) Get(ctx context.Context, key K) (V, bool) {
	if v, ok := t.first.Get(ctx, key); ok {
		return v, true
	}
	v, ok := t.second.Get(ctx, key)
	if ok {
		t.first.Put(ctx, key, v)
	}
	return v, ok
}

func (t *Tiered[K, V]) Put(ctx context.Context, key K, value V) {
	t.first.Put(ctx, key, value)
	t.second.Put(ctx, key, value)
}
