package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediascribe/ingest/internal/logger"
)

const connectTimeout = 5 * time.Second

type redisCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedis connects to the Redis instance at redisURL and verifies the
// connection before returning.
func NewRedis(redisURL string, log *logger.Logger) (Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if log == nil {
		log = logger.Default()
	}
	return &redisCache{client: client, log: log.WithComponent("cache")}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Debug(ctx, "Cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return "", false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Debug(ctx, "Cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
