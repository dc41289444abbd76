package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

// Cache mirrors extraction job status into Redis so status polling does not
// hit Postgres. Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

type redisCache struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedisCache(log *logger.Logger) (Cache, error) {
	serviceLog := log.With("service", "RedisCache")
	redisURL := utils.GetEnv("REDIS_URL", "redis://localhost:6379/0", log)
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse REDIS_URL: %w", err)
	}
	return &redisCache{client: redis.NewClient(opts), log: serviceLog}, nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("extraction:job:%s:status", jobID)
}

func (c *redisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (c *redisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	b, ok, err := c.Get(ctx, JobStatusKey(jobID))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(b), true, nil
}
