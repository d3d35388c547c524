package ingest

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestJobStoreSnapshotIsolation(t *testing.T) {
	store := NewJobStore()
	job := NewJob("https://a.example/one")
	job.Metadata = map[string]any{"title": "original"}
	store.Put(job)

	snap, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("job not found")
	}

	// Mutating the snapshot must not leak back into the store.
	snap.Status = StatusError
	snap.Metadata["title"] = "mutated"

	fresh, _ := store.Get(job.ID)
	if fresh.Status != StatusQueued {
		t.Errorf("status = %s, want %s", fresh.Status, StatusQueued)
	}
	if fresh.Metadata["title"] != "original" {
		t.Errorf("metadata leaked: %v", fresh.Metadata["title"])
	}
}

func TestJobStoreUpdate(t *testing.T) {
	store := NewJobStore()
	job := NewJob("https://a.example/one")
	store.Put(job)

	if ok := store.Update(job.ID, func(j *Job) { j.Percent = 42 }); !ok {
		t.Fatal("Update returned false for a tracked job")
	}
	if ok := store.Update("missing", func(j *Job) {}); ok {
		t.Error("Update returned true for an unknown job")
	}

	got, _ := store.Get(job.ID)
	if got.Percent != 42 {
		t.Errorf("percent = %d, want 42", got.Percent)
	}
}

func TestJobStoreAllNewestFirst(t *testing.T) {
	store := NewJobStore()

	older := NewJob("https://a.example/old")
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := NewJob("https://a.example/new")
	store.Put(older)
	store.Put(newer)

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].ID != newer.ID || all[1].ID != older.ID {
		t.Errorf("order = [%s, %s], want newest first", all[0].ID, all[1].ID)
	}
}

func TestJobStoreClearTerminal(t *testing.T) {
	store := NewJobStore()

	succeeded := NewJob("https://a.example/done")
	succeeded.Success = true
	failed := NewJob("https://a.example/failed")
	failed.Error = "boom"
	inflight := NewJob("https://a.example/running")
	inflight.Status = StatusDownloading

	store.Put(succeeded)
	store.Put(failed)
	store.Put(inflight)

	if removed := store.ClearTerminal(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if removed := store.ClearTerminal(); removed != 0 {
		t.Errorf("second pass removed = %d, want 0", removed)
	}
	if _, ok := store.Get(inflight.ID); !ok {
		t.Error("in-flight job was removed")
	}
	if store.Count() != 1 {
		t.Errorf("count = %d, want 1", store.Count())
	}
}

func TestJobStoreDeleteAndClear(t *testing.T) {
	store := NewJobStore()
	a := NewJob("https://a.example/a")
	b := NewJob("https://a.example/b")
	store.Put(a)
	store.Put(b)

	store.Delete(a.ID)
	if _, ok := store.Get(a.ID); ok {
		t.Error("deleted job still present")
	}
	store.Delete("missing")

	store.Clear()
	if store.Count() != 0 {
		t.Errorf("count after Clear = %d", store.Count())
	}
}

func TestNewJobID(t *testing.T) {
	id := newJobID("https://a.example/some/long/path/that/encodes/wide")

	pattern := regexp.MustCompile(`^\d+_[A-Za-z0-9_-]+$`)
	if !pattern.MatchString(id) {
		t.Fatalf("id %q does not match timestamp_fragment shape", id)
	}

	frag := id[strings.IndexByte(id, '_')+1:]
	if len(frag) > jobIDFragmentLen {
		t.Errorf("fragment %q longer than %d", frag, jobIDFragmentLen)
	}

	short := newJobID("ab")
	shortFrag := short[strings.IndexByte(short, '_')+1:]
	if shortFrag == "" {
		t.Error("short URLs should still produce a fragment")
	}
}

func TestJobIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"queued", Job{Status: StatusQueued}, false},
		{"downloading", Job{Status: StatusDownloading, Percent: 40}, false},
		{"succeeded", Job{Status: StatusComplete, Success: true}, true},
		{"failed", Job{Status: StatusError, Error: "boom"}, true},
		{"cancelled", Job{Status: StatusCancelled, Error: "Cancelled by user"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal = %v, want %v", got, tt.want)
			}
		})
	}
}
