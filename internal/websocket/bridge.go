package websocket

import (
	"context"

	"github.com/mediascribe/ingest/internal/events"
)

const bridgeBuffer = 256

// Bridge feeds bus events into the hub until ctx is cancelled or the bus
// closes. Run it in its own goroutine alongside Hub.Run.
func Bridge(ctx context.Context, bus *events.Bus, hub *Hub) {
	sub := bus.Subscribe(bridgeBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			hub.Broadcast(ev)
		}
	}
}
