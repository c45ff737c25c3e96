package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgkafka "github.com/TON618OFF/FactorioStore/pkg/kafka"
)

const keyPrefix = "receipt:dispatched:"

// DedupStore implements kafka.IdempotencyStore on Redis so that replicas of
// the service share which orders already got a receipt.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ pkgkafka.IdempotencyStore = (*DedupStore)(nil)

// NewDedupStore creates a Redis-backed dedup store. Keys expire after ttl.
func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	return &DedupStore{client: client, ttl: ttl}
}

// Contains reports whether key was recorded and has not expired.
func (s *DedupStore) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists dedup key: %w", err)
	}
	return n > 0, nil
}

// Add records key. An existing key keeps its original expiry.
func (s *DedupStore) Add(ctx context.Context, key string) error {
	if err := s.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx dedup key: %w", err)
	}
	return nil
}
