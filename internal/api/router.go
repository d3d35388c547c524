package api

import (
	"net/http"

	"github.com/mediascribe/ingest/internal/health"
	"github.com/mediascribe/ingest/internal/metrics"
	"github.com/mediascribe/ingest/internal/stream"
	"github.com/mediascribe/ingest/internal/websocket"
)

// RouterConfig carries the handler groups mounted on the router.
// Media, WS and Metrics are optional; their routes vanish when nil.
type RouterConfig struct {
	Handlers *IngestHandlers
	Media    *stream.Handler
	WS       *websocket.Handler
	Health   *health.Handler
	Metrics  *metrics.Metrics
}

type Router struct {
	mux *http.ServeMux
}

func NewRouter(cfg *RouterConfig) *Router {
	r := &Router{mux: http.NewServeMux()}
	r.setupRoutes(cfg)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes(cfg *RouterConfig) {
	h := cfg.Handlers

	if cfg.Health != nil {
		r.mux.HandleFunc("GET /health", cfg.Health.HealthHandler)
		r.mux.HandleFunc("GET /health/live", cfg.Health.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", cfg.Health.ReadinessHandler)
	}
	if cfg.Metrics != nil {
		r.mux.HandleFunc("GET /metrics", cfg.Metrics.Handler())
	}

	// Pipeline
	r.mux.HandleFunc("POST /api/v1/ingest", h.CreateIngest)
	r.mux.HandleFunc("POST /api/v1/validate", h.Validate)

	// Jobs
	r.mux.HandleFunc("GET /api/v1/jobs", h.ListJobs)
	r.mux.HandleFunc("POST /api/v1/jobs/clear", h.ClearJobs)
	r.mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	r.mux.HandleFunc("DELETE /api/v1/jobs/{id}", h.CancelJob)
	r.mux.HandleFunc("GET /api/v1/jobs/{id}/transcript", h.GetTranscript)
	if cfg.Media != nil {
		r.mux.HandleFunc("GET /api/v1/jobs/{id}/media", cfg.Media.ServeMedia)
	}

	// Settings and capabilities
	r.mux.HandleFunc("GET /api/v1/settings/download-dir", h.GetDownloadDir)
	r.mux.HandleFunc("PUT /api/v1/settings/download-dir", h.SetDownloadDir)
	r.mux.HandleFunc("GET /api/v1/capabilities", h.Capabilities)
	r.mux.HandleFunc("POST /api/v1/extractor/update", h.UpdateExtractor)

	// Live events
	if cfg.WS != nil {
		r.mux.HandleFunc("GET /ws", cfg.WS.ServeWS)
	}
}
