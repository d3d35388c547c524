package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/events"
	"github.com/mediascribe/ingest/internal/ingest"
	"github.com/mediascribe/ingest/internal/logger"
)

func TestNewDispatch(t *testing.T) {
	if _, err := New(&Config{Backend: BackendMinio, Endpoint: "localhost:9000"}); err != nil {
		t.Errorf("minio backend: %v", err)
	}
	if _, err := New(&Config{Backend: "", Endpoint: "localhost:9000"}); err != nil {
		t.Errorf("default backend: %v", err)
	}
	if _, err := New(&Config{Backend: BackendS3, Region: "us-east-1"}); err != nil {
		t.Errorf("s3 backend: %v", err)
	}
	if _, err := New(&Config{Backend: "carrier-pigeon"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestArtifactKeys(t *testing.T) {
	if got := TranscriptKey("123_abc"); got != "transcripts/123_abc.json" {
		t.Errorf("TranscriptKey = %q", got)
	}
	if got := MediaKey("123_abc", "/data/downloads/episode.mp3"); got != "media/123_abc.mp3" {
		t.Errorf("MediaKey = %q", got)
	}
	if got := MediaKey("123_abc", "/data/noext"); got != "media/123_abc" {
		t.Errorf("MediaKey without extension = %q", got)
	}
}

func TestMediaContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.mp3", "audio/mpeg"},
		{"a.M4A", "audio/mp4"},
		{"a.wav", "audio/wav"},
		{"a.flac", "audio/flac"},
		{"a.opus", "audio/ogg"},
		{"a.mp4", "video/mp4"},
		{"a.webm", "video/webm"},
		{"a.mkv", "video/x-matroska"},
		{"a.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := MediaContentType(tt.path); got != tt.want {
			t.Errorf("MediaContentType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

type recordedUpload struct {
	localPath   string
	key         string
	contentType string
}

type fakeStore struct {
	mu      sync.Mutex
	uploads []recordedUpload
	err     error
}

func (f *fakeStore) UploadFile(ctx context.Context, localPath, key, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploads = append(f.uploads, recordedUpload{localPath, key, contentType})
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (f *fakeStore) Delete(ctx context.Context, key string) error         { return nil }
func (f *fakeStore) EnsureBucket(ctx context.Context) error               { return nil }
func (f *fakeStore) Ping(ctx context.Context) error                       { return nil }

func (f *fakeStore) recorded() []recordedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedUpload, len(f.uploads))
	copy(out, f.uploads)
	return out
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type archiverFixture struct {
	store *fakeStore
	bus   *events.Bus
}

func newArchiverFixture(t *testing.T, uploadMedia bool) *archiverFixture {
	t.Helper()
	log := logger.New(&logger.Config{Output: io.Discard, Level: logger.LevelError})

	store := &fakeStore{}
	arch := NewArchiver(store, uploadMedia, log)
	arch.retryCfg = &apperrors.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1.0}

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		arch.Run(ctx, bus)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})

	waitForSubscriber(t, bus)
	return &archiverFixture{store: store, bus: bus}
}

func waitForSubscriber(t *testing.T, bus *events.Bus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if bus.SubscriberCount() == 0 {
		t.Fatal("archiver never subscribed")
	}
}

func (f *archiverFixture) waitForUploads(t *testing.T, n int) []recordedUpload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.store.recorded(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("uploads never reached %d (now %d)", n, len(f.store.recorded()))
	return nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func completionEvent(res *ingest.Result) events.Event {
	ev := events.Complete(res.JobID)
	ev.Payload = res
	return ev
}

func TestArchiverUploadsTranscript(t *testing.T) {
	f := newArchiverFixture(t, false)
	transcript := writeTempFile(t, "ep_transcript.json", `{"text":"hi"}`)

	f.bus.Publish(completionEvent(&ingest.Result{
		JobID:          "j1",
		TranscriptPath: transcript,
		DownloadPath:   writeTempFile(t, "ep.mp3", "audio"),
	}))

	uploads := f.waitForUploads(t, 1)
	if uploads[0].key != "transcripts/j1.json" {
		t.Errorf("key = %q", uploads[0].key)
	}
	if uploads[0].contentType != "application/json" {
		t.Errorf("contentType = %q", uploads[0].contentType)
	}
	if uploads[0].localPath != transcript {
		t.Errorf("localPath = %q", uploads[0].localPath)
	}

	// Media mirroring is off, so nothing else arrives.
	time.Sleep(50 * time.Millisecond)
	if got := f.store.recorded(); len(got) != 1 {
		t.Errorf("uploads = %d, want 1", len(got))
	}
}

func TestArchiverUploadsMediaWhenEnabled(t *testing.T) {
	f := newArchiverFixture(t, true)
	transcript := writeTempFile(t, "ep_transcript.json", `{"text":"hi"}`)
	media := writeTempFile(t, "ep.mp3", "audio")

	f.bus.Publish(completionEvent(&ingest.Result{
		JobID:          "j2",
		TranscriptPath: transcript,
		DownloadPath:   media,
	}))

	uploads := f.waitForUploads(t, 2)
	if uploads[1].key != "media/j2.mp3" {
		t.Errorf("media key = %q", uploads[1].key)
	}
	if uploads[1].contentType != "audio/mpeg" {
		t.Errorf("media contentType = %q", uploads[1].contentType)
	}
}

func TestArchiverSkipsDeletedMedia(t *testing.T) {
	f := newArchiverFixture(t, true)
	transcript := writeTempFile(t, "ep_transcript.json", `{"text":"hi"}`)

	f.bus.Publish(completionEvent(&ingest.Result{
		JobID:          "j3",
		TranscriptPath: transcript,
		DownloadPath:   filepath.Join(t.TempDir(), "already-deleted.mp3"),
	}))

	uploads := f.waitForUploads(t, 1)
	time.Sleep(50 * time.Millisecond)
	if got := f.store.recorded(); len(got) != len(uploads) {
		t.Errorf("uploads = %d, want %d (missing media skipped)", len(got), len(uploads))
	}
}

func TestArchiverIgnoresOtherEvents(t *testing.T) {
	f := newArchiverFixture(t, false)

	f.bus.Publish(events.Progress("j4", "downloading", 40, ""))
	f.bus.Publish(events.Failed("j4", "downloading", "network unreachable"))
	f.bus.Publish(events.Cancelled("j4"))

	time.Sleep(50 * time.Millisecond)
	if got := f.store.recorded(); len(got) != 0 {
		t.Errorf("uploads = %d, want 0", len(got))
	}
}

func TestArchiverSurvivesUploadFailure(t *testing.T) {
	f := newArchiverFixture(t, false)
	f.store.setErr(errors.New("bucket on fire"))

	f.bus.Publish(completionEvent(&ingest.Result{
		JobID:          "j5",
		TranscriptPath: writeTempFile(t, "a_transcript.json", "{}"),
	}))
	time.Sleep(50 * time.Millisecond)

	// The loop keeps consuming after a failed upload.
	f.store.setErr(nil)
	f.bus.Publish(completionEvent(&ingest.Result{
		JobID:          "j6",
		TranscriptPath: writeTempFile(t, "b_transcript.json", "{}"),
	}))

	uploads := f.waitForUploads(t, 1)
	if uploads[0].key != "transcripts/j6.json" {
		t.Errorf("key = %q", uploads[0].key)
	}
}

func getTestStorageEndpoint() string {
	if v := os.Getenv("STORAGE_TEST_ENDPOINT"); v != "" {
		return v
	}
	return "localhost:9000"
}

func TestMinioRoundTrip(t *testing.T) {
	store, err := New(&Config{
		Backend:   BackendMinio,
		Endpoint:  getTestStorageEndpoint(),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "ingest-test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}

	local := writeTempFile(t, "roundtrip.json", `{"text":"round trip"}`)
	key := TranscriptKey("roundtrip-test")

	if err := store.UploadFile(ctx, local, key, "application/json"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	exists, err := store.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil || exists {
		t.Fatalf("Exists after delete = %v, %v; want false", exists, err)
	}
}
