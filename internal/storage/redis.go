package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// seenTTL bounds how long a per-audit discovery set may linger after a crawl
// dies without cleaning up.
const seenTTL = 24 * time.Hour

// RedisStore keeps the per-audit set of already-discovered URLs. It is a fast
// dedup path in front of the durable crawl queue; losing it only costs extra
// ON CONFLICT no-ops in Postgres, never correctness.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func seenKey(auditID string) string {
	return fmt.Sprintf("audit:%s:seen", auditID)
}

// MarkSeen records a normalized URL as discovered for an audit. Returns true
// if the URL was not seen before.
func (s *RedisStore) MarkSeen(ctx context.Context, auditID, url string) (bool, error) {
	key := seenKey(auditID)
	added, err := s.client.SAdd(ctx, key, url).Result()
	if err != nil {
		return false, err
	}
	s.client.Expire(ctx, key, seenTTL)
	return added == 1, nil
}

// ClearAudit drops the discovery set once a crawl finishes.
func (s *RedisStore) ClearAudit(ctx context.Context, auditID string) error {
	return s.client.Del(ctx, seenKey(auditID)).Err()
}
