package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultNoncePrefix = "visitguard:nonce:"

// RedisNonceStore shares consumed nonces between replicas. SETNX makes the first
// writer win; the key expires after ttl.
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisNonceStore wraps client. Empty prefix and zero ttl take defaults.
func NewRedisNonceStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisNonceStore {
	if prefix == "" {
		prefix = defaultNoncePrefix
	}
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{client: client, prefix: prefix, ttl: ttl}
}

// MarkUsed implements NonceStore.
func (s *RedisNonceStore) MarkUsed(ctx context.Context, nonce string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
