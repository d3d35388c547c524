package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/logger"
)

func newTestClient(t *testing.T, baseURL string) *WhisperClient {
	t.Helper()
	log := logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
	c := NewWhisperClient(ClientConfig{BaseURL: baseURL}, log)
	c.retryCfg = &apperrors.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  1.0,
	}
	return c
}

func writeMediaFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing media file: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	var gotModel, gotLanguage, gotTask, gotFile, gotFormat string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/inference" {
			t.Errorf("path = %s, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotTask = r.FormValue("task")
		gotFormat = r.FormValue("response_format")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading file part: %v", err)
		}
		defer file.Close()
		gotFile = header.Filename

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{
			Text:                "hello from the podcast",
			Language:            "en",
			LanguageProbability: 0.98,
			Duration:            12.5,
			Segments: []Segment{
				{ID: 0, Start: 0, End: 12.5, Text: "hello from the podcast"},
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	media := writeMediaFile(t, "episode.mp3", "fake audio bytes")

	result, err := client.Transcribe(context.Background(), Request{
		FilePath: media,
		Model:    "small",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotModel != "small" {
		t.Errorf("model = %q, want %q", gotModel, "small")
	}
	if gotLanguage != "en" {
		t.Errorf("language = %q, want %q", gotLanguage, "en")
	}
	if gotTask != "transcribe" {
		t.Errorf("task = %q, want %q", gotTask, "transcribe")
	}
	if gotFormat != "json" {
		t.Errorf("response_format = %q, want %q", gotFormat, "json")
	}
	if gotFile != "episode.mp3" {
		t.Errorf("uploaded filename = %q, want %q", gotFile, "episode.mp3")
	}
	if result.Text != "hello from the podcast" {
		t.Errorf("text = %q", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("language = %q, want en", result.Language)
	}
	if len(result.Segments) != 1 {
		t.Errorf("segments = %d, want 1", len(result.Segments))
	}
	// The server did not echo a model, so the client fills in the one it
	// asked for.
	if result.Model != "small" {
		t.Errorf("model = %q, want small", result.Model)
	}
}

func TestTranscribeAppliesDefaults(t *testing.T) {
	var gotModel, gotLanguage, gotTask string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotTask = r.FormValue("task")
		json.NewEncoder(w).Encode(Result{Text: "ok"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	media := writeMediaFile(t, "clip.wav", "audio")

	if _, err := client.Transcribe(context.Background(), Request{FilePath: media}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotModel != "base" {
		t.Errorf("model = %q, want base", gotModel)
	}
	if gotLanguage != "auto" {
		t.Errorf("language = %q, want auto", gotLanguage)
	}
	if gotTask != "transcribe" {
		t.Errorf("task = %q, want transcribe", gotTask)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, "model is loading", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Result{Text: "second try"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	media := writeMediaFile(t, "clip.mp3", "audio")

	result, err := client.Transcribe(context.Background(), Request{FilePath: media})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "second try" {
		t.Errorf("text = %q, want %q", result.Text, "second try")
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestTranscribeClientErrorFailsFast(t *testing.T) {
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "unsupported media type", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	media := writeMediaFile(t, "clip.mp3", "audio")

	_, err := client.Transcribe(context.Background(), Request{FilePath: media})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !apperrors.HasCode(err, apperrors.CodeTranscription) {
		t.Errorf("error code = %v, want %s", err, apperrors.CodeTranscription)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (no retry on client error)", n)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	var requests int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Transcribe(context.Background(), Request{
		FilePath: filepath.Join(t.TempDir(), "missing.mp3"),
	})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !apperrors.HasCode(err, apperrors.CodeTranscription) {
		t.Errorf("error code = %v, want %s", err, apperrors.CodeTranscription)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	client := newTestClient(t, srv.URL)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping against live server: %v", err)
	}

	srv.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("expected error pinging closed server")
	}
}
