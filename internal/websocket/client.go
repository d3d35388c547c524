package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mediascribe/ingest/internal/events"
	"github.com/mediascribe/ingest/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound event buffer per client.
	sendBuffer = 64
)

// Client is one WebSocket connection. An empty jobID subscribes to every
// job's events.
type Client struct {
	id    uuid.UUID
	hub   *Hub
	conn  *websocket.Conn
	send  chan events.Event
	jobID string
	log   *logger.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, jobID string, log *logger.Logger) *Client {
	return &Client{
		id:    uuid.New(),
		hub:   hub,
		conn:  conn,
		send:  make(chan events.Event, sendBuffer),
		jobID: jobID,
		log:   log,
	}
}

func (c *Client) wants(ev events.Event) bool {
	return c.jobID == "" || c.jobID == ev.JobID
}

// ReadPump drains inbound frames. Clients send nothing meaningful; the read
// loop exists to process pongs and notice the peer going away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug(context.Background(), "WebSocket read error", map[string]interface{}{
					"client": c.id.String(),
					"error":  err.Error(),
				})
			}
			return
		}
	}
}

// WritePump forwards queued events to the peer and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
