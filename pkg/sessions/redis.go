package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docdb:session:"

// RedisStore shares session tokens across processes through Redis, so a
// write in one process is visible to session reads in another.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed session token store. ttl bounds how
// long a token is replayed; the gateway's session window makes very old
// tokens useless anyway. A ttl of 0 keeps tokens indefinitely.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, ttl: ttl}
}

// Get returns the recorded token for a collection link.
func (s *RedisStore) Get(ctx context.Context, collLink string) (string, error) {
	token, err := s.redis.Get(ctx, redisKeyPrefix+collLink).Result()
	if err != nil {
		if err == redis.Nil {
			SessionMisses.Inc()
			return "", nil
		}
		SessionErrors.WithLabelValues("get").Inc()
		return "", fmt.Errorf("redis get: %w", err)
	}
	SessionReplays.Inc()
	return token, nil
}

// Set records the latest token for a collection link.
func (s *RedisStore) Set(ctx context.Context, collLink, token string) error {
	if err := s.redis.Set(ctx, redisKeyPrefix+collLink, token, s.ttl).Err(); err != nil {
		SessionErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
