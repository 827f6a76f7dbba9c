package coalescer

import (
	"context"
	"sync"
)

// Store is where a LoadManager distributes the values of each batch it fetched.
type Store[K comparable, V any] interface {
	Put(ctx context.Context, values map[K]V) error
}

// MemoryStore is a threadsafe in-process cache keyed by entity id.
type MemoryStore[K comparable, V any] struct {
	lock   sync.RWMutex
	values map[K]V
}

func NewMemoryStore[K comparable, V any]() *MemoryStore[K, V] {
	return &MemoryStore[K, V]{
		values: make(map[K]V),
	}
}

func (s *MemoryStore[K, V]) Put(ctx context.Context, values map[K]V) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for key, value := range values {
		s.values[key] = value
	}
	return nil
}

func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemoryStore[K, V]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}

type multiStore[K comparable, V any] struct {
	stores []Store[K, V]
}

// MultiStore writes every batch to each store in order and stops at the first error.
func MultiStore[K comparable, V any](stores ...Store[K, V]) Store[K, V] {
	return &multiStore[K, V]{stores: stores}
}

func (s *multiStore[K, V]) Put(ctx context.Context, values map[K]V) error {
	for _, store := range s.stores {
		if err := store.Put(ctx, values); err != nil {
			return err
		}
	}
	return nil
}
