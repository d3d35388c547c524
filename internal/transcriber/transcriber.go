// Package transcriber sends downloaded media to a whisper-compatible HTTP
// server and returns the engine's transcription output.
package transcriber

import (
	"context"
)

const (
	// DefaultModel is used when the caller does not pick a model size.
	DefaultModel = "base"
	// DefaultLanguage lets the engine detect the spoken language.
	DefaultLanguage = "auto"
	// TaskTranscribe transcribes in the source language, as opposed to
	// translating.
	TaskTranscribe = "transcribe"
)

// Request describes one transcription call.
type Request struct {
	FilePath string
	Model    string
	Language string
	Task     string
}

// withDefaults fills the engine parameters the caller left empty.
func (r Request) withDefaults() Request {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.Task == "" {
		r.Task = TaskTranscribe
	}
	return r
}

// Segment is one timed span of transcribed text.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the transcription engine's output.
type Result struct {
	Text                string    `json:"text"`
	Language            string    `json:"language,omitempty"`
	LanguageProbability float64   `json:"language_probability,omitempty"`
	Duration            float64   `json:"duration,omitempty"`
	Model               string    `json:"model,omitempty"`
	Segments            []Segment `json:"segments,omitempty"`
}

// Transcriber turns a local media file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
