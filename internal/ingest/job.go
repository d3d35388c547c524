package ingest

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mediascribe/ingest/internal/validators"
)

// Status is the pipeline stage a job is currently in.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusValidating   Status = "validating"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
	StatusCancelled    Status = "cancelled"
)

// Job tracks one URL-to-transcript request through the pipeline. The service
// owns every mutation; other components only see snapshots.
type Job struct {
	ID                     string              `json:"id"`
	URL                    string              `json:"url"`
	Provider               validators.Provider `json:"provider,omitempty"`
	Status                 Status              `json:"status"`
	Percent                int                 `json:"percent"`
	DownloadPath           string              `json:"downloadPath,omitempty"`
	TranscriptPath         string              `json:"transcriptPath,omitempty"`
	Transcript             string              `json:"transcript,omitempty"`
	Metadata               map[string]any      `json:"metadata,omitempty"`
	Success                bool                `json:"success"`
	Error                  string              `json:"error,omitempty"`
	DurationMs             int64               `json:"durationMs,omitempty"`
	TranscriptionAttempted bool                `json:"transcriptionAttempted,omitempty"`
	TranscriptionError     string              `json:"transcriptionError,omitempty"`
	CreatedAt              time.Time           `json:"createdAt"`
	CompletedAt            *time.Time          `json:"completedAt,omitempty"`
}

// NewJob creates a queued job for rawURL with a fresh id.
func NewJob(rawURL string) *Job {
	return &Job{
		ID:        newJobID(rawURL),
		URL:       rawURL,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Success || j.Error != ""
}

// snapshot returns an independent copy safe to hand to readers while the
// pipeline keeps mutating the original.
func (j *Job) snapshot() *Job {
	copied := *j
	if j.Metadata != nil {
		meta := make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			meta[k] = v
		}
		copied.Metadata = meta
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		copied.CompletedAt = &t
	}
	return &copied
}

const jobIDFragmentLen = 16

// newJobID builds a registry key from the submission time plus a truncated
// URL-safe encoding of the input. Collision-resistant in practice, not
// cryptographically; nothing beyond registry lookup relies on uniqueness.
func newJobID(rawURL string) string {
	frag := base64.RawURLEncoding.EncodeToString([]byte(rawURL))
	if len(frag) > jobIDFragmentLen {
		frag = frag[:jobIDFragmentLen]
	}
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), frag)
}

// JobStore is the in-memory job registry. One store belongs to one Service;
// there is no process-wide instance.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Get returns a snapshot of the job, or false when it is not tracked.
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.snapshot(), true
}

// Update applies fn to the live job under the store lock. Returns false when
// the job is not tracked.
func (s *JobStore) Update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// All returns snapshots of every tracked job, newest first.
func (s *JobStore) All() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// ClearTerminal removes every job that finished, successfully or not, and
// reports how many were removed. In-flight jobs stay.
func (s *JobStore) ClearTerminal() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.IsTerminal() {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Delete removes one job from the registry.
func (s *JobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Clear empties the registry.
func (s *JobStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*Job)
}

func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
