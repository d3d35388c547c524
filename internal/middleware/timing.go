package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mediascribe/ingest/internal/logger"
)

const slowRequestThreshold = 500 * time.Millisecond

// Timing returns a middleware that adds Server-Timing headers and logs
// requests slower than the threshold. The header shows up in browser
// DevTools performance panels.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			w.Header().Set("Server-Timing", formatServerTiming(duration))

			if duration > slowRequestThreshold {
				log.Warn(r.Context(), "slow request", map[string]interface{}{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return fmt.Sprintf("total;dur=%.1f", ms)
}
