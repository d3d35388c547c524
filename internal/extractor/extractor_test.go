package extractor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/logger"
)

func newTestRunner(t *testing.T, cfg *Config) *Runner {
	t.Helper()
	log := logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})
	return New(cfg, log)
}

func hasArgPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func TestBuildArgs_AudioExtraction(t *testing.T) {
	r := newTestRunner(t, &Config{})
	args := r.buildArgs("https://example.com/watch?v=abc", "1700000000000", DownloadOptions{
		OutputDir:    "/tmp/downloads",
		ExtractAudio: true,
	})

	if !hasArg(args, "--no-playlist") {
		t.Error("expected --no-playlist")
	}
	if !hasArg(args, "--print-json") {
		t.Error("expected --print-json")
	}
	if !hasArg(args, "--newline") {
		t.Error("expected --newline")
	}
	if !hasArg(args, "-x") {
		t.Error("expected -x for audio extraction")
	}
	if !hasArgPair(args, "--audio-format", "mp3") {
		t.Errorf("expected default audio format mp3, args: %v", args)
	}
	if !hasArgPair(args, "--audio-quality", "0") {
		t.Errorf("expected highest audio quality, args: %v", args)
	}
	if !hasArgPair(args, "-f", "bestaudio/best") {
		t.Errorf("expected audio format selector, args: %v", args)
	}
	if args[len(args)-1] != "https://example.com/watch?v=abc" {
		t.Errorf("expected URL as final argument, got %q", args[len(args)-1])
	}

	template := ""
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--output" {
			template = args[i+1]
		}
	}
	if !strings.Contains(template, "1700000000000_") {
		t.Errorf("output template missing timestamp token: %q", template)
	}
}

func TestBuildArgs_VideoQualityTiers(t *testing.T) {
	r := newTestRunner(t, &Config{})

	tests := []struct {
		quality Quality
		want    string
	}{
		{QualityBest, "bestvideo*+bestaudio/best"},
		{QualityGood, "best[height<=720]/best"},
		{QualityWorst, "worst"},
		{"", "bestvideo*+bestaudio/best"},
	}

	for _, tt := range tests {
		args := r.buildArgs("https://example.com/v", "123", DownloadOptions{Quality: tt.quality})
		if !hasArgPair(args, "-f", tt.want) {
			t.Errorf("quality %q: expected -f %q, args: %v", tt.quality, tt.want, args)
		}
		if hasArg(args, "-x") {
			t.Errorf("quality %q: unexpected -x without ExtractAudio", tt.quality)
		}
	}
}

func TestBuildArgs_Cookies(t *testing.T) {
	cookieFile := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookieFile, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatalf("write cookie file: %v", err)
	}

	t.Run("existing cookie file is passed through", func(t *testing.T) {
		r := newTestRunner(t, &Config{BrowserCookies: "firefox"})
		args := r.buildArgs("https://example.com/v", "123", DownloadOptions{CookieFile: cookieFile})
		if !hasArgPair(args, "--cookies", cookieFile) {
			t.Errorf("expected --cookies %s, args: %v", cookieFile, args)
		}
		if hasArg(args, "--cookies-from-browser") {
			t.Error("browser import should not be used when a cookie file exists")
		}
	})

	t.Run("missing cookie file falls back to browser import", func(t *testing.T) {
		r := newTestRunner(t, &Config{BrowserCookies: "firefox"})
		args := r.buildArgs("https://example.com/v", "123", DownloadOptions{CookieFile: "/does/not/exist"})
		if hasArg(args, "--cookies") {
			t.Error("missing cookie file should not be passed")
		}
		if !hasArgPair(args, "--cookies-from-browser", "firefox") {
			t.Errorf("expected browser cookie fallback, args: %v", args)
		}
	})

	t.Run("no cookie configuration adds no cookie flags", func(t *testing.T) {
		r := newTestRunner(t, &Config{})
		args := r.buildArgs("https://example.com/v", "123", DownloadOptions{})
		if hasArg(args, "--cookies") || hasArg(args, "--cookies-from-browser") {
			t.Errorf("unexpected cookie flags: %v", args)
		}
	})
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line    string
		percent float64
		ok      bool
	}{
		{"[download]  45.2% of 5.00MiB at 1.00MiB/s ETA 00:03", 45.2, true},
		{"[download] 100% of 5.00MiB in 00:04", 100, true},
		{"[download]   0.0% of ~3.52MiB at Unknown speed", 0, true},
		{"[download] Destination: /tmp/123_video.mp4", 0, false},
		{"[youtube] abc123: Downloading webpage", 0, false},
		{"Deleting original file /tmp/123_video.webm", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		percent, ok := parseProgressLine(tt.line)
		if ok != tt.ok {
			t.Errorf("parseProgressLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && percent != tt.percent {
			t.Errorf("parseProgressLine(%q) = %v, want %v", tt.line, percent, tt.percent)
		}
	}
}

func TestTryMetadataLine(t *testing.T) {
	line := `{"id":"abc123","title":"Test Video","uploader":"","channel":"Test Channel","duration":212.5,"thumbnails":[{"url":"https://img.example.com/small.jpg"},{"url":"https://img.example.com/large.jpg"}],"webpage_url":"https://example.com/watch?v=abc123","extractor":"youtube","_filename":"/tmp/123_Test Video.webm"}`

	raw, ok := tryMetadataLine(line)
	if !ok {
		t.Fatal("expected metadata line to parse")
	}

	meta := raw.ToMetadata()
	if meta.Title != "Test Video" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Author != "Test Channel" {
		t.Errorf("expected channel fallback for author, got %q", meta.Author)
	}
	if meta.Thumbnail != "https://img.example.com/large.jpg" {
		t.Errorf("expected best thumbnail, got %q", meta.Thumbnail)
	}
	if meta.Filename != "/tmp/123_Test Video.webm" {
		t.Errorf("Filename = %q", meta.Filename)
	}

	for _, line := range []string{
		"[download]  45.2% of 5.00MiB",
		"{not valid json",
		"{}",
		"plain text",
	} {
		if _, ok := tryMetadataLine(line); ok {
			t.Errorf("tryMetadataLine(%q) should not parse", line)
		}
	}
}

func TestMetadataFields_OmitsAbsent(t *testing.T) {
	meta := &Metadata{Title: "Episode 4", Duration: 0, Author: ""}
	fields := meta.Fields()

	if len(fields) != 1 {
		t.Fatalf("expected only title, got %v", fields)
	}
	if fields["title"] != "Episode 4" {
		t.Errorf("title = %v", fields["title"])
	}
	if _, present := fields["duration"]; present {
		t.Error("zero duration should be omitted")
	}

	var nilMeta *Metadata
	if nilMeta.Fields() != nil {
		t.Error("nil metadata should produce nil fields")
	}
}

func TestCategorizeStderr(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"ERROR: [youtube] abc: Video unavailable", "content unavailable"},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", "content is private"},
		{"ERROR: Sign in to confirm your age", "content is age-restricted"},
		{"ERROR: Unsupported URL: https://example.com", "no extractor for this URL"},
		{"ERROR: unable to download video data: connection reset", "network error"},
		{"something else entirely", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := categorizeStderr(tt.stderr); got != tt.want {
			t.Errorf("categorizeStderr(%q) = %q, want %q", tt.stderr, got, tt.want)
		}
	}
}

func TestFindOutputFile(t *testing.T) {
	dir := t.TempDir()
	token := "1700000000000"

	for _, name := range []string{
		token + "_Test Video.mp3",
		token + "_Test Video.mp4.part",
		token + "_Test Video.mp4.ytdl",
		"999_other.mp3",
		"unrelated.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	path, err := findOutputFile(dir, token)
	if err != nil {
		t.Fatalf("findOutputFile: %v", err)
	}
	if filepath.Base(path) != token+"_Test Video.mp3" {
		t.Errorf("found %q", path)
	}
}

func TestFindOutputFile_Missing(t *testing.T) {
	_, err := findOutputFile(t.TempDir(), "1700000000000")
	if err == nil {
		t.Fatal("expected an error for an empty directory")
	}
	if !apperrors.HasCode(err, apperrors.CodeFileNotFound) {
		t.Errorf("expected file-not-found code, got %v", err)
	}
}

func TestEnsureBinary_ProvisionsFromRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasSuffix(req.URL.Path, "/"+assetName()) {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte("#!/bin/sh\nexit 0\n"))
	}))
	defer srv.Close()

	binDir := t.TempDir()
	r := newTestRunner(t, &Config{BinDir: binDir, ReleaseBaseURL: srv.URL})

	path := r.EnsureBinary(context.Background())
	want := filepath.Join(binDir, managedBinaryName())
	if path != want {
		t.Fatalf("EnsureBinary = %q, want %q", path, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("provisioned binary missing: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		t.Error("provisioned binary is not executable")
	}

	// Second call resolves from cache without touching the server.
	srv.Close()
	if again := r.EnsureBinary(context.Background()); again != want {
		t.Errorf("cached resolution = %q, want %q", again, want)
	}
}

func TestEnsureBinary_DegradesToSystemBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	binDir := t.TempDir()
	r := newTestRunner(t, &Config{BinDir: binDir, ReleaseBaseURL: srv.URL})

	path := r.EnsureBinary(context.Background())
	if path != systemBinaryName() {
		t.Errorf("expected system binary fallback, got %q", path)
	}
	if fileExists(filepath.Join(binDir, managedBinaryName())) {
		t.Error("failed provisioning should not leave a binary behind")
	}
}

func TestUpdate_ReplacesCachedBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	binDir := t.TempDir()
	managed := filepath.Join(binDir, managedBinaryName())
	if err := os.WriteFile(managed, []byte("stale"), 0o755); err != nil {
		t.Fatalf("seed stale binary: %v", err)
	}

	r := newTestRunner(t, &Config{BinDir: binDir, ReleaseBaseURL: srv.URL})
	if err := r.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, err := os.ReadFile(managed)
	if err != nil {
		t.Fatalf("read updated binary: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("binary content = %q, want %q", data, "fresh")
	}
}

func TestBinaryPathOverrideWins(t *testing.T) {
	r := newTestRunner(t, &Config{BinaryPath: "/opt/tools/yt-dlp", BinDir: t.TempDir()})
	if got := r.EnsureBinary(context.Background()); got != "/opt/tools/yt-dlp" {
		t.Errorf("EnsureBinary = %q, want override path", got)
	}
}
