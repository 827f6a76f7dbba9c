package coalescer

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Fetcher makes one backend call for a batch of keys. Keys the backend does not know about are
// simply absent from the returned map.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, keys []K) (map[K]V, error)
}

// FetcherFunc adapts a plain func to the Fetcher interface.
type FetcherFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

func (f FetcherFunc[K, V]) Fetch(ctx context.Context, keys []K) (map[K]V, error) {
	return f(ctx, keys)
}

type LoadManager[K comparable, V any] interface {
	AddListener(fn Listener) uuid.UUID
	RemoveListener(id uuid.UUID)
	WithBatchFrequency(val time.Duration) LoadManager[K, V]
	WithClock(val clock.Clock) LoadManager[K, V]
	WithMaxBatchSize(val uint32) LoadManager[K, V]
	WithMaxOperationTime(val time.Duration) LoadManager[K, V]
	Load(ctx context.Context, key K) (V, error)
	LoadMany(ctx context.Context, keys []K) (map[K]V, error)
	Start(ctx context.Context) error
	Stop()
}

type loadManager[K comparable, V any] struct {
	manager BatchManager[K, map[K]V]
	fetcher Fetcher[K, V]
	store   Store[K, V]
}

// This function creates a LoadManager for one kind of entity. Every flush of the underlying BatchManager makes one call to the fetcher
// and then writes everything it returned to the store. The store is optional; when it is nil the values are only returned to the callers.
func NewLoadManager[K comparable, V any](fetcher Fetcher[K, V], store Store[K, V]) LoadManager[K, V] {
	l := &loadManager[K, V]{
		fetcher: fetcher,
		store:   store,
	}
	l.manager = NewBatchManager[K, map[K]V](l.process)
	return l
}

func (l *loadManager[K, V]) process(ctx context.Context, keys []K) (map[K]V, error) {
	values, err := l.fetcher.Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[K]V)
	}
	if l.store != nil && len(values) > 0 {
		if err := l.store.Put(ctx, values); err != nil {
			return nil, err
		}
		l.manager.Emit(StoredEvent, len(values), "", nil)
	}
	return values, nil
}

func (l *loadManager[K, V]) AddListener(fn Listener) uuid.UUID {
	return l.manager.AddListener(fn)
}

func (l *loadManager[K, V]) RemoveListener(id uuid.UUID) {
	l.manager.RemoveListener(id)
}

func (l *loadManager[K, V]) WithBatchFrequency(val time.Duration) LoadManager[K, V] {
	l.manager.WithBatchFrequency(val)
	return l
}

func (l *loadManager[K, V]) WithClock(val clock.Clock) LoadManager[K, V] {
	l.manager.WithClock(val)
	return l
}

func (l *loadManager[K, V]) WithMaxBatchSize(val uint32) LoadManager[K, V] {
	l.manager.WithMaxBatchSize(val)
	return l
}

func (l *loadManager[K, V]) WithMaxOperationTime(val time.Duration) LoadManager[K, V] {
	l.manager.WithMaxOperationTime(val)
	return l
}

// Call this method to load a single entity. The key is batched with every other key requested during the same window.
func (l *loadManager[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V
	values, err := l.manager.Request(ctx, key)
	if err != nil {
		return zero, err
	}
	value, ok := values[key]
	if !ok {
		return zero, NotFoundError{Key: key}
	}
	return value, nil
}

// Call this method to load several entities. Every key joins the current batch, so a single call generally costs a single fetch. Keys
// that were not found are absent from the result.
func (l *loadManager[K, V]) LoadMany(ctx context.Context, keys []K) (map[K]V, error) {
	waiters := make([]*Waiter[map[K]V], len(keys))
	for i, key := range keys {
		waiters[i] = l.manager.RequestAsync(key)
	}
	out := make(map[K]V, len(keys))
	for i, waiter := range waiters {
		values, err := waiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if value, ok := values[keys[i]]; ok {
			out[keys[i]] = value
		}
	}
	return out, nil
}

func (l *loadManager[K, V]) Start(ctx context.Context) error {
	if l.fetcher == nil {
		return NoFetcherError
	}
	return l.manager.Start(ctx)
}

func (l *loadManager[K, V]) Stop() {
	l.manager.Stop()
}
