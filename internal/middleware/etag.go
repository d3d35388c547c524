package middleware

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
)

// etagResponseWriter captures the response for ETag calculation
type etagResponseWriter struct {
	http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
	written    bool
}

func (w *etagResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.buf.Write(b)
}

func (w *etagResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

// skipETag reports whether a path must bypass response buffering.
// Media serving relies on range requests and the metrics body changes
// on every scrape, so neither benefits from an ETag.
func skipETag(path string) bool {
	return strings.HasPrefix(path, "/ws") ||
		strings.HasSuffix(path, "/media") ||
		path == "/metrics"
}

// ETag returns a middleware that adds ETag headers for GET requests
// and handles If-None-Match conditional requests.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || skipETag(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		buf := &bytes.Buffer{}
		wrapped := &etagResponseWriter{
			ResponseWriter: w,
			buf:            buf,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		hash := md5.Sum(buf.Bytes())
		etag := `"` + hex.EncodeToString(hash[:]) + `"`

		ifNoneMatch := r.Header.Get("If-None-Match")
		if ifNoneMatch == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=0, must-revalidate")
		w.WriteHeader(wrapped.statusCode)
		w.Write(buf.Bytes())
	})
}
