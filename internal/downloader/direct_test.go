package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
)

func newTestDirectStrategy(maxRetries int) *directStrategy {
	s := newDirectStrategy(maxRetries)
	s.retryCfg.InitialBackoff = 10 * time.Millisecond
	s.retryCfg.MaxBackoff = 10 * time.Millisecond
	return s
}

func collectSink(jobID string, events *[]ProgressEvent) *ProgressSink {
	if events == nil {
		return NewProgressSink(jobID, nil)
	}
	return NewProgressSink(jobID, func(e ProgressEvent) {
		*events = append(*events, e)
	})
}

func TestDirectDownload_Success(t *testing.T) {
	content := bytes.Repeat([]byte("mediascribe"), 8192)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("User-Agent") == "" || req.Header.Get("User-Agent") == "Go-http-client/1.1" {
			t.Error("expected a browser User-Agent")
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	var events []ProgressEvent
	s := newTestDirectStrategy(0)
	res, err := s.Download(context.Background(), srv.URL+"/podcast/episode.mp3", Options{Directory: t.TempDir()}, collectSink("job-1", &events))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	info, err := os.Stat(res.FilePath)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	final := events[len(events)-1]
	if final.Percent != 100 {
		t.Errorf("final percent = %d, want 100", final.Percent)
	}
	if info.Size() != final.Total {
		t.Errorf("file size %d != reported total %d", info.Size(), final.Total)
	}

	last := -1
	for _, e := range events {
		if e.Percent <= last {
			t.Errorf("percent %d not strictly increasing after %d", e.Percent, last)
		}
		last = e.Percent
		if e.ETA != 0 {
			t.Errorf("direct strategy should report eta 0, got %v", e.ETA)
		}
	}

	if title := res.Metadata["title"]; title != "episode" {
		t.Errorf("title = %v, want episode", title)
	}
	if ok, _ := regexp.MatchString(`^\d+_episode\.mp3$`, filepath.Base(res.FilePath)); !ok {
		t.Errorf("destination %q missing timestamp_basename shape", filepath.Base(res.FilePath))
	}
}

func TestDirectDownload_NotFoundFailsFast(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests.Add(1)
		http.NotFound(w, req)
	}))
	defer srv.Close()

	s := newTestDirectStrategy(3)
	_, err := s.Download(context.Background(), srv.URL+"/missing.mp3", Options{Directory: t.TempDir()}, collectSink("job-1", nil))
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if !apperrors.HasCode(err, apperrors.CodeDirectDownload) {
		t.Errorf("expected direct-download code, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("404 should not be retried, saw %d requests", got)
	}
}

func TestDirectDownload_RetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	var events []ProgressEvent
	s := newTestDirectStrategy(3)
	res, err := s.Download(context.Background(), srv.URL+"/episode.mp3", Options{Directory: t.TempDir()}, collectSink("job-1", &events))
	if err != nil {
		t.Fatalf("Download after retry: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("saw %d requests, want 2", got)
	}

	data, err := os.ReadFile(res.FilePath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("file content = %q", data)
	}
}

func TestDirectDownload_UnknownLengthEmitsSingleFinalEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("first-chunk-"))
		flusher.Flush()
		_, _ = w.Write([]byte("second-chunk"))
	}))
	defer srv.Close()

	var events []ProgressEvent
	s := newTestDirectStrategy(0)
	res, err := s.Download(context.Background(), srv.URL+"/stream.mp3", Options{Directory: t.TempDir()}, collectSink("job-1", &events))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want exactly the final one: %+v", len(events), events)
	}
	if events[0].Percent != 100 {
		t.Errorf("percent = %d, want 100", events[0].Percent)
	}
	if events[0].Total != events[0].Downloaded {
		t.Errorf("unknown length should report total = downloaded, got %d/%d", events[0].Total, events[0].Downloaded)
	}

	info, err := os.Stat(res.FilePath)
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if info.Size() != events[0].Total {
		t.Errorf("file size %d != reported total %d", info.Size(), events[0].Total)
	}
}

func TestDirectDownload_CancellationPreserved(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1024))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	s := newTestDirectStrategy(0)
	go func() {
		_, err := s.Download(ctx, srv.URL+"/big.mp3", Options{Directory: t.TempDir()}, collectSink("job-1", nil))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel(apperrors.Cancelled())

	select {
	case err := <-done:
		if !apperrors.IsCancellation(err) {
			t.Errorf("expected cancellation to surface, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download did not stop after cancellation")
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/podcast/episode.mp3", "episode.mp3"},
		{"https://example.com/a/b/c.mp3?token=secret", "c.mp3"},
		{"https://example.com/files/My%20Audio.mp3", "My Audio.mp3"},
		{"https://example.com/caf%C3%A9.mp3", "cafe.mp3"},
		{"https://example.com/", "download"},
		{"https://example.com", "download"},
	}

	for _, tt := range tests {
		if got := filenameFromURL(tt.url); got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
