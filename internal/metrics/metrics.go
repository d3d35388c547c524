// Package metrics provides lightweight in-process metrics with a
// Prometheus text exposition endpoint. No external metrics library is
// used; counters and gauges are atomics and histograms are fixed-bucket.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all counters, gauges and histograms for the server.
type Metrics struct {
	mu sync.RWMutex

	// HTTP request metrics keyed by "METHOD endpoint".
	requestCount    map[string]int64
	requestDuration map[string]*Histogram
	requestErrors   map[string]int64

	// Pipeline gauges.
	activeWSConnections int64
	activeDownloads     int64
	trackedJobs         int64
	queueDepth          int64

	// Job outcome counters.
	jobsCompleted int64
	jobsFailed    int64
	jobsCancelled int64

	// Custom metrics for ad-hoc instrumentation.
	gauges   map[string]float64
	counters map[string]int64

	startTime time.Time
}

// Histogram tracks value distribution with fixed buckets.
type Histogram struct {
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// NewHistogram creates a histogram with default latency buckets
// spanning 5ms to 10s.
func NewHistogram() *Histogram {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	return &Histogram{
		buckets: buckets,
		counts:  make([]int64, len(buckets)+1),
	}
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(value float64) {
	h.sum += value
	h.count++

	for i, bucket := range h.buckets {
		if value <= bucket {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}

// New creates a new metrics instance.
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]int64),
		gauges:          make(map[string]float64),
		counters:        make(map[string]int64),
		startTime:       time.Now(),
	}
}

// RecordRequest records an HTTP request with its duration and status.
func (m *Metrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	key := method + " " + normalizeEndpoint(endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount[key]++

	if m.requestDuration[key] == nil {
		m.requestDuration[key] = NewHistogram()
	}
	m.requestDuration[key].Observe(duration.Seconds())

	if status >= 400 {
		m.requestErrors[key]++
	}
}

// normalizeEndpoint replaces path parameters with placeholders so that
// per-resource URLs collapse into one series. UUIDs, bare numeric IDs
// and job IDs of the form <millis>_<fragment> all become {id}.
func normalizeEndpoint(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	for i, part := range parts {
		if isUUID(part) || isNumeric(part) || isJobID(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !isHexDigit(c) {
			return false
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isJobID(s string) bool {
	i := strings.IndexByte(s, '_')
	if i < 1 || i == len(s)-1 {
		return false
	}
	return isNumeric(s[:i])
}

// IncWSConnections increments the active WebSocket connection count.
func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, 1)
}

// DecWSConnections decrements the active WebSocket connection count.
func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, -1)
}

// SetWSConnections sets the active WebSocket connection count.
func (m *Metrics) SetWSConnections(n int64) {
	atomic.StoreInt64(&m.activeWSConnections, n)
}

// SetActiveDownloads sets the number of downloads currently running.
func (m *Metrics) SetActiveDownloads(n int64) {
	atomic.StoreInt64(&m.activeDownloads, n)
}

// SetTrackedJobs sets the number of jobs held in the job registry.
func (m *Metrics) SetTrackedJobs(n int64) {
	atomic.StoreInt64(&m.trackedJobs, n)
}

// SetQueueDepth sets the number of submissions waiting for a worker.
func (m *Metrics) SetQueueDepth(n int64) {
	atomic.StoreInt64(&m.queueDepth, n)
}

// RecordJobCompleted counts a job that reached the complete state.
func (m *Metrics) RecordJobCompleted() {
	atomic.AddInt64(&m.jobsCompleted, 1)
}

// RecordJobFailed counts a job that reached the error state.
func (m *Metrics) RecordJobFailed() {
	atomic.AddInt64(&m.jobsFailed, 1)
}

// RecordJobCancelled counts a job cancelled by the user.
func (m *Metrics) RecordJobCancelled() {
	atomic.AddInt64(&m.jobsCancelled, 1)
}

// SetGauge sets a custom gauge value.
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// IncCounter increments a custom counter.
func (m *Metrics) IncCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Handler returns an HTTP handler that serves metrics in Prometheus
// text exposition format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		var sb strings.Builder

		uptime := time.Since(m.startTime).Seconds()
		sb.WriteString("# HELP ingest_uptime_seconds Time since server start\n")
		sb.WriteString("# TYPE ingest_uptime_seconds gauge\n")
		sb.WriteString(fmt.Sprintf("ingest_uptime_seconds %f\n\n", uptime))

		sb.WriteString("# HELP ingest_websocket_connections_active Active WebSocket connections\n")
		sb.WriteString("# TYPE ingest_websocket_connections_active gauge\n")
		sb.WriteString(fmt.Sprintf("ingest_websocket_connections_active %d\n\n", atomic.LoadInt64(&m.activeWSConnections)))

		sb.WriteString("# HELP ingest_active_downloads Downloads currently running\n")
		sb.WriteString("# TYPE ingest_active_downloads gauge\n")
		sb.WriteString(fmt.Sprintf("ingest_active_downloads %d\n\n", atomic.LoadInt64(&m.activeDownloads)))

		sb.WriteString("# HELP ingest_jobs_tracked Jobs held in the registry\n")
		sb.WriteString("# TYPE ingest_jobs_tracked gauge\n")
		sb.WriteString(fmt.Sprintf("ingest_jobs_tracked %d\n\n", atomic.LoadInt64(&m.trackedJobs)))

		sb.WriteString("# HELP ingest_queue_depth Submissions waiting for a worker\n")
		sb.WriteString("# TYPE ingest_queue_depth gauge\n")
		sb.WriteString(fmt.Sprintf("ingest_queue_depth %d\n\n", atomic.LoadInt64(&m.queueDepth)))

		sb.WriteString("# HELP ingest_jobs_completed_total Jobs that finished successfully\n")
		sb.WriteString("# TYPE ingest_jobs_completed_total counter\n")
		sb.WriteString(fmt.Sprintf("ingest_jobs_completed_total %d\n\n", atomic.LoadInt64(&m.jobsCompleted)))

		sb.WriteString("# HELP ingest_jobs_failed_total Jobs that ended in error\n")
		sb.WriteString("# TYPE ingest_jobs_failed_total counter\n")
		sb.WriteString(fmt.Sprintf("ingest_jobs_failed_total %d\n\n", atomic.LoadInt64(&m.jobsFailed)))

		sb.WriteString("# HELP ingest_jobs_cancelled_total Jobs cancelled by the user\n")
		sb.WriteString("# TYPE ingest_jobs_cancelled_total counter\n")
		sb.WriteString(fmt.Sprintf("ingest_jobs_cancelled_total %d\n\n", atomic.LoadInt64(&m.jobsCancelled)))

		m.mu.RLock()

		if len(m.requestCount) > 0 {
			sb.WriteString("# HELP ingest_http_requests_total Total HTTP requests\n")
			sb.WriteString("# TYPE ingest_http_requests_total counter\n")
			keys := sortedKeys(m.requestCount)
			for _, key := range keys {
				method, endpoint := splitKey(key)
				sb.WriteString(fmt.Sprintf("ingest_http_requests_total{method=%q,endpoint=%q} %d\n", method, endpoint, m.requestCount[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.requestDuration) > 0 {
			sb.WriteString("# HELP ingest_http_request_duration_seconds HTTP request latency\n")
			sb.WriteString("# TYPE ingest_http_request_duration_seconds histogram\n")
			keys := make([]string, 0, len(m.requestDuration))
			for key := range m.requestDuration {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				method, endpoint := splitKey(key)
				hist := m.requestDuration[key]
				cumulative := int64(0)
				for i, bucket := range hist.buckets {
					cumulative += hist.counts[i]
					sb.WriteString(fmt.Sprintf("ingest_http_request_duration_seconds_bucket{method=%q,endpoint=%q,le=\"%g\"} %d\n", method, endpoint, bucket, cumulative))
				}
				cumulative += hist.counts[len(hist.buckets)]
				sb.WriteString(fmt.Sprintf("ingest_http_request_duration_seconds_bucket{method=%q,endpoint=%q,le=\"+Inf\"} %d\n", method, endpoint, cumulative))
				sb.WriteString(fmt.Sprintf("ingest_http_request_duration_seconds_sum{method=%q,endpoint=%q} %f\n", method, endpoint, hist.sum))
				sb.WriteString(fmt.Sprintf("ingest_http_request_duration_seconds_count{method=%q,endpoint=%q} %d\n", method, endpoint, hist.count))
			}
			sb.WriteString("\n")
		}

		if len(m.requestErrors) > 0 {
			sb.WriteString("# HELP ingest_http_errors_total HTTP requests with status >= 400\n")
			sb.WriteString("# TYPE ingest_http_errors_total counter\n")
			keys := sortedKeys(m.requestErrors)
			for _, key := range keys {
				method, endpoint := splitKey(key)
				sb.WriteString(fmt.Sprintf("ingest_http_errors_total{method=%q,endpoint=%q} %d\n", method, endpoint, m.requestErrors[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.gauges) > 0 {
			sb.WriteString("# HELP ingest_gauge Custom gauge values\n")
			sb.WriteString("# TYPE ingest_gauge gauge\n")
			names := make([]string, 0, len(m.gauges))
			for name := range m.gauges {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sb.WriteString(fmt.Sprintf("ingest_gauge{name=%q} %f\n", name, m.gauges[name]))
			}
			sb.WriteString("\n")
		}

		if len(m.counters) > 0 {
			sb.WriteString("# HELP ingest_counter Custom counter values\n")
			sb.WriteString("# TYPE ingest_counter counter\n")
			names := make([]string, 0, len(m.counters))
			for name := range m.counters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sb.WriteString(fmt.Sprintf("ingest_counter{name=%q} %d\n", name, m.counters[name]))
			}
		}

		m.mu.RUnlock()

		w.Write([]byte(sb.String()))
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func splitKey(key string) (method, endpoint string) {
	parts := strings.SplitN(key, " ", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

// MetricsMiddleware records request metrics for every handled request.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			m.RecordRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
