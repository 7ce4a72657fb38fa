package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches idempotency state in redis. It serves two paths: SetNX-based
// dedup of consumed kafka messages, and a key→order-id cache that lets the
// order workflow answer replays without a database round trip. The database
// unique constraint remains the source of truth; everything here is advisory.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) MessageKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:msg:%s:%d:%d", topic, partition, offset)
}

// Seen marks key as processed, reporting whether it had been marked before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Remember associates an idempotency key with the order it produced.
func (s *Store) Remember(ctx context.Context, idemKey, orderID string) error {
	return s.rdb.Set(ctx, orderKey(idemKey), orderID, s.ttl).Err()
}

// Lookup returns the order id previously recorded for idemKey, if any.
func (s *Store) Lookup(ctx context.Context, idemKey string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, orderKey(idemKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func orderKey(idemKey string) string {
	return "idem:order:" + idemKey
}
