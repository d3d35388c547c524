package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediascribe/ingest/internal/logger"
)

const (
	// Redis channel names
	channelEvents         = "ingest:events"
	channelProgressPrefix = "ingest:progress"

	connectTimeout = 5 * time.Second
)

// RedisRelay mirrors bus events onto Redis pub/sub so processes outside this
// one (dashboards, companion services) can follow job progress.
type RedisRelay struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisRelay connects to the Redis instance at redisURL and verifies the
// connection before returning.
func NewRedisRelay(redisURL string, log *logger.Logger) (*RedisRelay, error) {
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
	return &RedisRelay{client: client, log: log.WithComponent("events")}, nil
}

// Publish sends ev to the global events channel and, when the event names a
// job, to that job's progress channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, channelEvents, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if ev.JobID != "" {
		channel := fmt.Sprintf("%s:%s", channelProgressPrefix, ev.JobID)
		if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish job event: %w", err)
		}
	}
	return nil
}

// Subscribe follows the global events channel.
func (r *RedisRelay) Subscribe(ctx context.Context) *EventSubscription {
	pubsub := r.client.Subscribe(ctx, channelEvents)
	return &EventSubscription{pubsub: pubsub, ch: pubsub.Channel()}
}

// SubscribeJob follows a single job's progress channel.
func (r *RedisRelay) SubscribeJob(ctx context.Context, jobID string) *EventSubscription {
	channel := fmt.Sprintf("%s:%s", channelProgressPrefix, jobID)
	pubsub := r.client.Subscribe(ctx, channel)
	return &EventSubscription{pubsub: pubsub, ch: pubsub.Channel()}
}

// Ping reports whether the Redis connection is healthy.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// Forward copies bus events into the relay until ctx is cancelled or the bus
// closes. Publish failures are logged and the event dropped; the pipeline is
// never blocked on the relay.
func Forward(ctx context.Context, bus *Bus, relay *RedisRelay, log *logger.Logger) {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("events")

	sub := bus.Subscribe(256)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := relay.Publish(ctx, ev); err != nil {
				log.Warn(ctx, "Failed to relay event", map[string]interface{}{
					"job_id": ev.JobID,
					"kind":   string(ev.Kind),
					"error":  err.Error(),
				})
			}
		}
	}
}

// EventSubscription wraps a Redis pub/sub subscription for ingest events.
type EventSubscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Channel returns a channel of decoded events. Payloads that do not decode
// are skipped.
func (s *EventSubscription) Channel() <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		for msg := range s.ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			out <- ev
		}
	}()

	return out
}

// Close closes the subscription.
func (s *EventSubscription) Close() error {
	return s.pubsub.Close()
}
