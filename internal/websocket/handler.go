package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mediascribe/ingest/internal/logger"
)

// Handler upgrades HTTP requests to WebSocket connections and attaches them
// to the hub.
type Handler struct {
	hub     *Hub
	log     *logger.Logger
	origins map[string]bool
}

// NewHandler creates a WebSocket handler. allowedOrigins restricts upgrade
// requests by Origin header; empty or containing "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:     hub,
		log:     log.WithComponent("websocket"),
		origins: origins,
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 || h.origins["*"] {
		return true
	}
	return h.origins[r.Header.Get("Origin")]
}

// ServeWS handles WebSocket requests from clients. A `job` query parameter
// narrows the stream to one job's events; without it the client receives
// every job's events.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{
			"error":  err.Error(),
			"remote": r.RemoteAddr,
		})
		return
	}

	client := NewClient(h.hub, conn, r.URL.Query().Get("job"), h.log)
	h.hub.register <- client

	h.log.Debug(r.Context(), "WebSocket client connected", map[string]interface{}{
		"client": client.id.String(),
		"job_id": client.jobID,
	})

	// Start the client's read and write pumps
	go client.WritePump()
	go client.ReadPump()
}
