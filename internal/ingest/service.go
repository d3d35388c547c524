// Package ingest sequences the URL-to-transcript pipeline: validate, then
// download, then optionally transcribe. It owns the job registry, aggregates
// stage progress into one percent value, and keeps cancellation semantics
// over generic failures.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mediascribe/ingest/internal/cache"
	"github.com/mediascribe/ingest/internal/downloader"
	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/events"
	"github.com/mediascribe/ingest/internal/extractor"
	"github.com/mediascribe/ingest/internal/logger"
	"github.com/mediascribe/ingest/internal/transcriber"
	"github.com/mediascribe/ingest/internal/validators"
)

// Unified progress percents per stage. Download progress maps into the band
// between percentDownloading and percentTranscribing.
const (
	percentValidating   = 10
	percentDownloading  = 20
	percentTranscribing = 70
	percentComplete     = 100
)

const defaultValidationTTL = 30 * time.Second

var cancelledMessage = apperrors.Cancelled().Message

// URLValidator resolves a URL's provider and basic metadata. The validators
// registry satisfies this; the pipeline treats it as a black box.
type URLValidator interface {
	Validate(url string) validators.ValidationResult
}

// ProcessOptions control one ingest request. A nil AutoTranscribe means
// transcription runs whenever a transcriber is configured; only an explicit
// false disables it.
type ProcessOptions struct {
	OutputPath            string `json:"outputPath,omitempty"`
	Quality               string `json:"quality,omitempty"`
	Format                string `json:"format,omitempty"`
	CookiesPath           string `json:"cookiesPath,omitempty"`
	ExtractAudio          bool   `json:"extractAudio,omitempty"`
	AutoTranscribe        *bool  `json:"autoTranscribe,omitempty"`
	TranscriptionModel    string `json:"transcriptionModel,omitempty"`
	TranscriptionLanguage string `json:"transcriptionLanguage,omitempty"`
	DeleteAfterTranscribe bool   `json:"deleteAfterTranscribe,omitempty"`
}

// Result is the terminal outcome of one ingest call.
type Result struct {
	Success                bool           `json:"success"`
	JobID                  string         `json:"jobId"`
	URL                    string         `json:"url"`
	Provider               string         `json:"provider,omitempty"`
	DownloadPath           string         `json:"downloadPath,omitempty"`
	TranscriptPath         string         `json:"transcriptPath,omitempty"`
	Transcript             string         `json:"transcript,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	Error                  string         `json:"error,omitempty"`
	DurationMs             int64          `json:"duration,omitempty"`
	TranscriptionAttempted bool           `json:"transcriptionAttempted,omitempty"`
	TranscriptionError     string         `json:"transcriptionError,omitempty"`
}

// Config wires the service's collaborators.
type Config struct {
	// TranscriptDir receives transcript artifacts.
	TranscriptDir string
	// Validator resolves URLs. Required.
	Validator URLValidator
	// Downloads fetches media. Required; the service installs itself as the
	// manager's progress listener.
	Downloads *downloader.Manager
	// Transcriber turns media into text. Nil disables transcription.
	Transcriber transcriber.Transcriber
	// ValidationCache fronts the validator for repeated lookups. Nil
	// disables caching.
	ValidationCache cache.Cache
	// ValidationTTL bounds cached validation results. Zero keeps the
	// default.
	ValidationTTL time.Duration
	// Bus receives job events. Nil creates a private bus.
	Bus *events.Bus
}

// Service is the ingest orchestrator. One instance owns one job registry;
// tests may run several side by side.
type Service struct {
	log           *logger.Logger
	validator     URLValidator
	downloads     *downloader.Manager
	transcriber   transcriber.Transcriber
	transcriptDir string
	validateCache cache.Cache
	validateTTL   time.Duration
	store         *JobStore
	bus           *events.Bus
}

func New(cfg *Config, log *logger.Logger) (*Service, error) {
	if cfg == nil || cfg.Validator == nil {
		return nil, apperrors.InternalError("ingest service requires a validator")
	}
	if cfg.Downloads == nil {
		return nil, apperrors.InternalError("ingest service requires a download manager")
	}
	if log == nil {
		log = logger.Default()
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	ttl := cfg.ValidationTTL
	if ttl <= 0 {
		ttl = defaultValidationTTL
	}

	s := &Service{
		log:           log.WithComponent("ingest"),
		validator:     cfg.Validator,
		downloads:     cfg.Downloads,
		transcriber:   cfg.Transcriber,
		transcriptDir: cfg.TranscriptDir,
		validateCache: cfg.ValidationCache,
		validateTTL:   ttl,
		store:         NewJobStore(),
		bus:           bus,
	}
	cfg.Downloads.SetProgressFunc(s.onDownloadProgress)
	return s, nil
}

// ProcessURL runs the full pipeline for rawURL and always returns a result;
// stage failures land on the job record, never in a returned error.
func (s *Service) ProcessURL(ctx context.Context, rawURL string, opts *ProcessOptions) *Result {
	job := NewJob(rawURL)
	s.store.Put(job)
	return s.run(ctx, job.ID, rawURL, opts)
}

func (s *Service) run(ctx context.Context, jobID, rawURL string, opts *ProcessOptions) (result *Result) {
	if opts == nil {
		opts = &ProcessOptions{}
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.log.Error(ctx, "Ingest pipeline panic", err, map[string]interface{}{"job_id": jobID})
			result = s.finishFailure(jobID, rawURL, start, apperrors.InternalError(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	s.setStage(ctx, jobID, StatusValidating, percentValidating, "Validating URL")

	vres := s.lookupValidation(ctx, rawURL)
	if !vres.Valid {
		reason := vres.Error
		if reason == "" {
			reason = "Invalid URL"
		}
		return s.finishFailure(jobID, rawURL, start, apperrors.ValidationError(reason))
	}

	s.store.Update(jobID, func(j *Job) {
		j.Provider = vres.Provider
		if len(vres.Metadata) > 0 {
			j.Metadata = make(map[string]any, len(vres.Metadata))
			for k, v := range vres.Metadata {
				j.Metadata[k] = v
			}
		}
	})

	// A cancel that landed during validation has no download to interrupt;
	// honor it before starting one.
	if s.isCancelled(jobID) {
		return s.finishFailure(jobID, rawURL, start, apperrors.Cancelled())
	}

	s.setStage(ctx, jobID, StatusDownloading, percentDownloading, "Starting download")

	dres, err := s.downloads.Download(ctx, jobID, rawURL, vres.Provider, downloader.Options{
		Directory:    opts.OutputPath,
		Quality:      extractor.Quality(opts.Quality),
		Format:       opts.Format,
		ExtractAudio: opts.ExtractAudio,
		CookieFile:   opts.CookiesPath,
	})
	if err != nil {
		return s.finishFailure(jobID, rawURL, start, err)
	}

	s.store.Update(jobID, func(j *Job) {
		j.DownloadPath = dres.FilePath
		if len(dres.Metadata) == 0 {
			return
		}
		if j.Metadata == nil {
			j.Metadata = make(map[string]any, len(dres.Metadata))
		}
		// Download metadata wins over validation metadata on shared keys.
		for k, v := range dres.Metadata {
			j.Metadata[k] = v
		}
	})

	if s.shouldTranscribe(opts) && dres.FilePath != "" {
		s.transcribe(ctx, jobID, rawURL, dres.FilePath, opts)
	}

	return s.finishSuccess(jobID, rawURL, start)
}

func (s *Service) shouldTranscribe(opts *ProcessOptions) bool {
	if opts.AutoTranscribe != nil && !*opts.AutoTranscribe {
		return false
	}
	return s.transcriber != nil
}

// transcribe runs the transcription stage. Its failures never fail the job:
// the download already succeeded, so errors are recorded on the job and the
// pipeline moves on without a transcript.
func (s *Service) transcribe(ctx context.Context, jobID, rawURL, mediaPath string, opts *ProcessOptions) {
	s.setStage(ctx, jobID, StatusTranscribing, percentTranscribing, "Transcribing audio")
	s.store.Update(jobID, func(j *Job) { j.TranscriptionAttempted = true })

	model := opts.TranscriptionModel
	if model == "" {
		model = transcriber.DefaultModel
	}
	language := opts.TranscriptionLanguage
	if language == "" {
		language = transcriber.DefaultLanguage
	}

	engineOut, err := s.transcriber.Transcribe(ctx, transcriber.Request{
		FilePath: mediaPath,
		Model:    model,
		Language: language,
		Task:     transcriber.TaskTranscribe,
	})
	if err != nil {
		s.log.Error(ctx, "Transcription failed", err, map[string]interface{}{"job_id": jobID})
		s.store.Update(jobID, func(j *Job) { j.TranscriptionError = apperrors.UserMessage(err) })
		return
	}

	text := cleanTranscript(engineOut.Text)

	artifactPath, err := writeArtifact(s.transcriptDir, jobID, rawURL, mediaPath, engineOut)
	if err != nil {
		s.log.Error(ctx, "Failed to persist transcript", err, map[string]interface{}{"job_id": jobID})
		s.store.Update(jobID, func(j *Job) {
			j.Transcript = text
			j.TranscriptionError = apperrors.UserMessage(err)
		})
		return
	}

	s.store.Update(jobID, func(j *Job) {
		j.Transcript = text
		j.TranscriptPath = artifactPath
	})

	if opts.DeleteAfterTranscribe {
		if err := os.Remove(mediaPath); err != nil {
			s.log.Warn(ctx, "Failed to remove media after transcription", map[string]interface{}{
				"job_id": jobID,
				"file":   mediaPath,
				"error":  err.Error(),
			})
		}
	}
}

// setStage moves the job into a new stage and announces it. Jobs already
// carrying an error (a cancel that won the race) are left alone.
func (s *Service) setStage(ctx context.Context, jobID string, status Status, percent int, message string) {
	changed := false
	s.store.Update(jobID, func(j *Job) {
		if j.Error != "" {
			return
		}
		j.Status = status
		if percent > j.Percent {
			j.Percent = percent
		}
		changed = true
	})
	if changed {
		s.bus.Publish(events.Progress(jobID, string(status), percent, message))
	}
}

// onDownloadProgress maps raw download percents into the unified 20-70 band
// and republishes them as job progress.
func (s *Service) onDownloadProgress(ev downloader.ProgressEvent) {
	overall := percentDownloading + ev.Percent*(percentTranscribing-percentDownloading)/100

	changed := false
	s.store.Update(ev.JobID, func(j *Job) {
		if j.Status != StatusDownloading || overall <= j.Percent {
			return
		}
		j.Percent = overall
		changed = true
	})
	if changed {
		s.bus.Publish(events.Progress(ev.JobID, string(StatusDownloading), overall, downloadDetail(ev)))
	}
}

func downloadDetail(ev downloader.ProgressEvent) string {
	const mb = 1 << 20
	if ev.Total > 0 {
		return fmt.Sprintf("%.1f MB of %.1f MB", float64(ev.Downloaded)/mb, float64(ev.Total)/mb)
	}
	if ev.Downloaded > 0 {
		return fmt.Sprintf("%.1f MB", float64(ev.Downloaded)/mb)
	}
	return ""
}

func (s *Service) isCancelled(jobID string) bool {
	job, ok := s.store.Get(jobID)
	return ok && job.Error == cancelledMessage
}

func (s *Service) finishSuccess(jobID, rawURL string, start time.Time) *Result {
	intervened := false
	ok := s.store.Update(jobID, func(j *Job) {
		if j.Error != "" {
			// Cancelled while the last stage was finishing. That outcome
			// stands.
			intervened = true
		} else {
			j.Success = true
			j.Status = StatusComplete
			j.Percent = percentComplete
		}
		if j.DurationMs == 0 {
			j.DurationMs = time.Since(start).Milliseconds()
		}
		if j.CompletedAt == nil {
			now := time.Now()
			j.CompletedAt = &now
		}
	})
	if !ok {
		return &Result{Success: true, JobID: jobID, URL: rawURL, DurationMs: time.Since(start).Milliseconds()}
	}

	result := s.resultFor(jobID)
	if intervened {
		return result
	}

	s.bus.Publish(events.Progress(jobID, string(StatusComplete), percentComplete, "Ingest complete"))
	ev := events.Complete(jobID)
	ev.Payload = result
	s.bus.Publish(ev)
	return result
}

func (s *Service) finishFailure(jobID, rawURL string, start time.Time, cause error) *Result {
	cancelled := apperrors.IsCancellation(cause)

	marked := false
	var failedStage Status
	ok := s.store.Update(jobID, func(j *Job) {
		failedStage = j.Status
		if j.Error == "" {
			j.Error = apperrors.UserMessage(cause)
			marked = true
		}
		j.Success = false
		if cancelled || j.Error == cancelledMessage {
			j.Status = StatusCancelled
		} else {
			j.Status = StatusError
		}
		if j.DurationMs == 0 {
			j.DurationMs = time.Since(start).Milliseconds()
		}
		if j.CompletedAt == nil {
			now := time.Now()
			j.CompletedAt = &now
		}
	})
	if !ok {
		return &Result{
			JobID:      jobID,
			URL:        rawURL,
			Error:      apperrors.UserMessage(cause),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	result := s.resultFor(jobID)
	// Whoever set the terminal error announces it; a CancelJob that marked
	// the record first already emitted its event.
	if marked {
		if cancelled {
			s.bus.Publish(events.Cancelled(jobID))
		} else {
			s.bus.Publish(events.Failed(jobID, string(failedStage), result.Error))
		}
	}
	return result
}

func (s *Service) resultFor(jobID string) *Result {
	job, ok := s.store.Get(jobID)
	if !ok {
		return &Result{JobID: jobID}
	}
	return &Result{
		Success:                job.Success,
		JobID:                  job.ID,
		URL:                    job.URL,
		Provider:               string(job.Provider),
		DownloadPath:           job.DownloadPath,
		TranscriptPath:         job.TranscriptPath,
		Transcript:             job.Transcript,
		Metadata:               job.Metadata,
		Error:                  job.Error,
		DurationMs:             job.DurationMs,
		TranscriptionAttempted: job.TranscriptionAttempted,
		TranscriptionError:     job.TranscriptionError,
	}
}

// lookupValidation consults the TTL cache before the validator. Cache
// trouble silently falls back to a direct call.
func (s *Service) lookupValidation(ctx context.Context, rawURL string) validators.ValidationResult {
	if s.validateCache == nil {
		return s.validator.Validate(rawURL)
	}

	key := "validate:" + rawURL
	if raw, ok := s.validateCache.Get(ctx, key); ok {
		var res validators.ValidationResult
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			return res
		}
	}

	res := s.validator.Validate(rawURL)
	if data, err := json.Marshal(res); err == nil {
		if err := s.validateCache.Set(ctx, key, string(data), s.validateTTL); err != nil {
			s.log.Debug(ctx, "Validation cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return res
}

// ValidateURL resolves a URL without creating a job.
func (s *Service) ValidateURL(ctx context.Context, rawURL string) validators.ValidationResult {
	return s.lookupValidation(ctx, rawURL)
}

// CancelJob stops the job's in-flight download and marks the job cancelled.
// Finished jobs and unknown ids are left untouched.
func (s *Service) CancelJob(jobID string) {
	s.downloads.CancelDownload(jobID)

	marked := false
	s.store.Update(jobID, func(j *Job) {
		if j.IsTerminal() {
			return
		}
		j.Success = false
		j.Error = cancelledMessage
		j.Status = StatusCancelled
		marked = true
	})
	if marked {
		s.bus.Publish(events.Cancelled(jobID))
	}
}

// GetJobStatus returns a snapshot of one job.
func (s *Service) GetJobStatus(jobID string) (*Job, bool) {
	return s.store.Get(jobID)
}

// GetAllJobs returns snapshots of every tracked job, newest first.
func (s *Service) GetAllJobs() []*Job {
	return s.store.All()
}

// ClearCompletedJobs drops every terminal job and reports how many were
// removed. Safe to call repeatedly.
func (s *Service) ClearCompletedJobs() int {
	return s.store.ClearTerminal()
}

func (s *Service) DownloadDirectory() string {
	return s.downloads.DownloadDirectory()
}

func (s *Service) SetDownloadDirectory(dir string) error {
	return s.downloads.SetDownloadDirectory(dir)
}

func (s *Service) IsExtractorAvailable() bool {
	return s.downloads.IsExtractorAvailable()
}

func (s *Service) UpdateExtractorBinary(ctx context.Context) error {
	return s.downloads.UpdateExtractorBinary(ctx)
}

// IsTranscriptionAvailable reports whether a transcriber is configured.
func (s *Service) IsTranscriptionAvailable() bool {
	return s.transcriber != nil
}

// ActiveDownloads reports how many downloads are in flight.
func (s *Service) ActiveDownloads() int {
	return s.downloads.ActiveCount()
}

// JobCount reports how many jobs the registry tracks.
func (s *Service) JobCount() int {
	return s.store.Count()
}

// Subscribe returns a feed of job events. Close it when done.
func (s *Service) Subscribe(buffer int) *events.Subscription {
	return s.bus.Subscribe(buffer)
}

// Cleanup cancels every active download, clears the registry, and closes
// the event bus. Call once at shutdown.
func (s *Service) Cleanup() {
	s.downloads.CancelAllDownloads()
	s.store.Clear()
	s.bus.Close()
}
