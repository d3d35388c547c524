package cache

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/mediascribe/ingest/internal/logger"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	if err := c.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, ok := c.Get(ctx, "key")
	if !ok || val != "value" {
		t.Errorf("Get = (%q, %v), want (value, true)", val, ok)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, "forever", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("expired entry should miss")
	}
	if _, ok := c.Get(ctx, "forever"); !ok {
		t.Error("zero-ttl entry should never expire")
	}
}

func TestMemoryCacheOverwrite(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key", "first", time.Minute)
	c.Set(ctx, "key", "second", time.Minute)

	val, ok := c.Get(ctx, "key")
	if !ok || val != "second" {
		t.Errorf("Get = (%q, %v), want (second, true)", val, ok)
	}
}

func getTestRedisURL() string {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	return url
}

func TestRedisCacheSetGet(t *testing.T) {
	log := logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
	c, err := NewRedis(getTestRedisURL(), log)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	key := "ingest-test:cache:" + time.Now().Format("150405.000000")
	if err := c.Set(ctx, key, "cached", 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, ok := c.Get(ctx, key)
	if !ok || val != "cached" {
		t.Errorf("Get = (%q, %v), want (cached, true)", val, ok)
	}

	if _, ok := c.Get(ctx, key+"-missing"); ok {
		t.Error("Get of absent key should miss")
	}
}
