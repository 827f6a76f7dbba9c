package coalescer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// RedisStore keeps each value JSON encoded under prefix + key, so any process sharing the same
// redis can read what another process fetched.
type RedisStore[K comparable, V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore[K comparable, V any](client *redis.Client, prefix string) *RedisStore[K, V] {
	return &RedisStore[K, V]{
		client: client,
		prefix: prefix,
	}
}

// The TTL is applied to every key written. The default is `0`, meaning keys do not expire.
func (s *RedisStore[K, V]) WithTTL(val time.Duration) *RedisStore[K, V] {
	s.ttl = val
	return s
}

func (s *RedisStore[K, V]) keyFor(key K) string {
	return s.prefix + fmt.Sprint(key)
}

// Put writes the whole batch in a single pipeline.
func (s *RedisStore[K, V]) Put(ctx context.Context, values map[K]V) error {
	pipe := s.client.WithContext(ctx).Pipeline()
	defer pipe.Close()
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		pipe.Set(s.keyFor(key), raw, s.ttl)
	}
	_, err := pipe.Exec()
	return err
}

// Get reads one value back. The bool is false when the key is not in redis.
func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (value V, found bool, err error) {
	raw, err := s.client.WithContext(ctx).Get(s.keyFor(key)).Bytes()
	if err == redis.Nil {
		err = nil
		return
	}
	if err != nil {
		return
	}
	if err = json.Unmarshal(raw, &value); err != nil {
		return
	}
	found = true
	return
}
