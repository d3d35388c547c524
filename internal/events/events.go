// Package events carries typed ingest pipeline events from the orchestrator
// to in-process subscribers and, when configured, to a Redis relay that other
// processes can watch.
package events

import "time"

// Kind discriminates event payloads.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindComplete  Kind = "complete"
	KindError     Kind = "error"
	KindCancelled Kind = "cancelled"
)

// Event is one observable state change of an ingest job.
type Event struct {
	Kind    Kind   `json:"kind"`
	JobID   string `json:"jobId"`
	Stage   string `json:"stage,omitempty"`
	Percent int    `json:"percent"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	// Payload carries the full result snapshot on completion events.
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress reports the pipeline reaching percent within a stage.
func Progress(jobID, stage string, percent int, detail string) Event {
	return Event{
		Kind:      KindProgress,
		JobID:     jobID,
		Stage:     stage,
		Percent:   percent,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}

// Complete marks a job that reached its terminal success state.
func Complete(jobID string) Event {
	return Event{
		Kind:      KindComplete,
		JobID:     jobID,
		Stage:     "complete",
		Percent:   100,
		Timestamp: time.Now().UTC(),
	}
}

// Failed marks a job that ended in an error during the given stage.
func Failed(jobID, stage, message string) Event {
	return Event{
		Kind:      KindError,
		JobID:     jobID,
		Stage:     stage,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}

// Cancelled marks a job stopped at the user's request.
func Cancelled(jobID string) Event {
	return Event{
		Kind:      KindCancelled,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
}
