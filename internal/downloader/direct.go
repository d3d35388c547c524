package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
)

// Sites gate bare-client requests aggressively, so the direct strategy
// identifies as a desktop browser.
const directUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// directStrategy fetches file and feed URLs over plain HTTP with a bounded
// retry policy. It covers providers whose URLs already point at media.
type directStrategy struct {
	client   *http.Client
	retryCfg *apperrors.RetryConfig
}

func newDirectStrategy(maxRetries int) *directStrategy {
	cfg := apperrors.DirectDownloadRetryConfig()
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	return &directStrategy{
		// No client timeout: large files take as long as they take, and the
		// per-job context bounds the call.
		client:   &http.Client{},
		retryCfg: cfg,
	}
}

func (s *directStrategy) Name() string {
	return "direct-http"
}

func (s *directStrategy) Download(ctx context.Context, sourceURL string, opts Options, sink *ProgressSink) (*Result, error) {
	base := filenameFromURL(sourceURL)
	dest := filepath.Join(opts.Directory, fmt.Sprintf("%d_%s", time.Now().UnixMilli(), base))

	err := apperrors.Retry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.fetch(ctx, sourceURL, dest, sink)
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		FilePath: dest,
		Metadata: map[string]any{
			"title": strings.TrimSuffix(base, path.Ext(base)),
		},
	}, nil
}

// fetch performs one download attempt into dest, truncating any partial
// write from a previous attempt.
func (s *directStrategy) fetch(ctx context.Context, sourceURL, dest string, sink *ProgressSink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return apperrors.DirectDownloadError("invalid download request").WithCause(err)
	}
	req.Header.Set("User-Agent", directUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		if cancelled := cancellationCause(ctx); cancelled != nil {
			return cancelled
		}
		return apperrors.DirectDownloadError("download request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.DirectDownloadError(fmt.Sprintf("download returned %s", resp.Status)).
			WithDetails(map[string]any{"http_status": resp.StatusCode})
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.DirectDownloadError("failed to create destination file").WithCause(err)
	}

	counter := &progressWriter{sink: sink, total: resp.ContentLength, started: time.Now()}
	_, copyErr := io.Copy(io.MultiWriter(file, counter), resp.Body)
	closeErr := file.Close()

	if copyErr != nil {
		_ = os.Remove(dest)
		if cancelled := cancellationCause(ctx); cancelled != nil {
			return cancelled
		}
		return apperrors.DirectDownloadError("download interrupted").WithCause(copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(dest)
		return apperrors.DirectDownloadError("failed to finish destination file").WithCause(closeErr)
	}

	counter.Finish()
	return nil
}

// cancellationCause returns the context's cancellation cause when the
// context has ended, preferring an explicit cause over the bare ctx error.
func cancellationCause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(ctx.Err(), cause) {
		return cause
	}
	return ctx.Err()
}

// progressWriter forwards byte counts to the sink as percent progress.
// With an unknown Content-Length the percent cannot be computed, so the
// only event is the terminal one from Finish.
type progressWriter struct {
	sink       *ProgressSink
	total      int64
	downloaded int64
	started    time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.downloaded += int64(n)
	if w.total > 0 {
		percent := float64(w.downloaded) / float64(w.total) * 100
		w.sink.Report(percent, w.downloaded, w.total, w.speed(), 0)
	}
	return n, nil
}

// Finish emits the terminal 100% event.
func (w *progressWriter) Finish() {
	total := w.total
	if total <= 0 {
		total = w.downloaded
	}
	w.sink.Report(100, w.downloaded, total, w.speed(), 0)
}

func (w *progressWriter) speed() float64 {
	elapsed := time.Since(w.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(w.downloaded) / elapsed
}

// filenameFromURL derives a safe destination filename from the URL's path
// basename.
func filenameFromURL(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return "download"
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return SanitizeFilename(base)
}
