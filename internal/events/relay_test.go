package events

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/mediascribe/ingest/internal/logger"
)

func getTestRedisURL() string {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	return url
}

func newTestRelay(t *testing.T) *RedisRelay {
	t.Helper()
	log := logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
	relay, err := NewRedisRelay(getTestRedisURL(), log)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { relay.Close() })
	return relay
}

func waitForEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed before an event arrived")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRedisRelayPublishSubscribe(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	sub := relay.Subscribe(ctx)
	defer sub.Close()
	ch := sub.Channel()

	// Give the subscription a moment to register before publishing.
	time.Sleep(100 * time.Millisecond)

	want := Progress("job-relay-1", "downloading", 42, "21 MB of 50 MB")
	if err := relay.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := waitForEvent(t, ch)
	if got.JobID != want.JobID || got.Kind != want.Kind || got.Percent != 42 {
		t.Errorf("received %+v, want job %s percent 42", got, want.JobID)
	}
}

func TestRedisRelaySubscribeJob(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	sub := relay.SubscribeJob(ctx, "job-relay-2")
	defer sub.Close()
	ch := sub.Channel()

	time.Sleep(100 * time.Millisecond)

	// An event for a different job must not arrive on this channel.
	if err := relay.Publish(ctx, Progress("job-other", "downloading", 10, "")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := relay.Publish(ctx, Complete("job-relay-2")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := waitForEvent(t, ch)
	if got.JobID != "job-relay-2" || got.Kind != KindComplete {
		t.Errorf("received %+v, want completion of job-relay-2", got)
	}
}

func TestForward(t *testing.T) {
	relay := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := relay.Subscribe(ctx)
	defer sub.Close()
	ch := sub.Channel()

	bus := NewBus()
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Forward(ctx, bus, relay, nil)
	}()

	time.Sleep(100 * time.Millisecond)

	bus.Publish(Failed("job-relay-3", "transcribing", "engine crashed"))

	got := waitForEvent(t, ch)
	if got.JobID != "job-relay-3" || got.Kind != KindError || got.Error != "engine crashed" {
		t.Errorf("received %+v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Forward did not stop after context cancellation")
	}
}

func TestNewRedisRelayBadURL(t *testing.T) {
	if _, err := NewRedisRelay("not a url", nil); err == nil {
		t.Error("expected error for malformed redis URL")
	}
}
