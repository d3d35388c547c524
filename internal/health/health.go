package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Checker probes the pipeline's collaborators. The download directory is the
// only hard dependency; everything else degrades rather than fails, because
// ingest keeps working without it.
type Checker struct {
	downloadDir     string
	extractorCheck  func() bool
	transcriberPing func(ctx context.Context) error
	relayPing       func(ctx context.Context) error
	storagePing     func(ctx context.Context) error
	version         string
	checkTimeout    time.Duration
}

// CheckerConfig holds configuration for the health checker. Nil probe
// functions mark the component as not configured and leave it out of deep
// checks.
type CheckerConfig struct {
	DownloadDir     string
	ExtractorCheck  func() bool
	TranscriberPing func(ctx context.Context) error
	RelayPing       func(ctx context.Context) error
	StoragePing     func(ctx context.Context) error
	Version         string
	Timeout         time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		downloadDir:     cfg.DownloadDir,
		extractorCheck:  cfg.ExtractorCheck,
		transcriberPing: cfg.TranscriberPing,
		relayPing:       cfg.RelayPing,
		storagePing:     cfg.StoragePing,
		version:         cfg.Version,
		checkTimeout:    timeout,
	}
}

// CheckDownloadDir verifies the download directory is writable.
func (c *Checker) CheckDownloadDir(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.downloadDir == "" {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "download directory not configured",
		}
	}

	probe := filepath.Join(c.downloadDir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  "download directory not writable",
			Duration: time.Since(start).String(),
		}
	}
	os.Remove(probe)

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckExtractor reports whether the extraction binary is runnable. Direct
// HTTP downloads keep working without it, so absence degrades.
func (c *Checker) CheckExtractor(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.extractorCheck == nil {
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: "extractor not configured",
		}
	}
	if !c.extractorCheck() {
		return ComponentHealth{
			Status:   StatusDegraded,
			Message:  "extractor binary not available",
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckTranscriber pings the transcription server. Jobs finish without a
// transcript when it is down, so failure degrades.
func (c *Checker) CheckTranscriber(ctx context.Context) ComponentHealth {
	return c.pingComponent(ctx, c.transcriberPing, "transcription server unreachable")
}

// CheckRelay pings the Redis event relay.
func (c *Checker) CheckRelay(ctx context.Context) ComponentHealth {
	return c.pingComponent(ctx, c.relayPing, "event relay unreachable")
}

// CheckStorage pings the artifact store.
func (c *Checker) CheckStorage(ctx context.Context) ComponentHealth {
	return c.pingComponent(ctx, c.storagePing, "artifact store unreachable")
}

func (c *Checker) pingComponent(ctx context.Context, ping func(ctx context.Context) error, failMessage string) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := ping(ctx); err != nil {
		return ComponentHealth{
			Status:   StatusDegraded,
			Message:  failMessage,
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness). Components
// that are not configured are left out entirely.
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	checks := map[string]func(context.Context) ComponentHealth{
		"download_dir": c.CheckDownloadDir,
		"extractor":    c.CheckExtractor,
	}
	if c.transcriberPing != nil {
		checks["transcriber"] = c.CheckTranscriber
	}
	if c.relayPing != nil {
		checks["relay"] = c.CheckRelay
	}
	if c.storagePing != nil {
		checks["storage"] = c.CheckStorage
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles readiness probe requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		// Degraded still accepts traffic
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler handles basic health check requests (the /health endpoint)
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	// Check if deep check is requested via query param
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
