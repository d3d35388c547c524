// Package api exposes the ingest pipeline over HTTP: submission,
// validation, job inspection, transcripts and settings.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/ingest"
	"github.com/mediascribe/ingest/internal/logger"
	"github.com/mediascribe/ingest/internal/validators"
)

// IngestService is the slice of the ingest service the handlers use.
type IngestService interface {
	ProcessURL(ctx context.Context, url string, opts *ingest.ProcessOptions) *ingest.Result
	ValidateURL(ctx context.Context, url string) validators.ValidationResult
	GetJobStatus(id string) (*ingest.Job, bool)
	GetAllJobs() []*ingest.Job
	CancelJob(id string)
	ClearCompletedJobs() int
	DownloadDirectory() string
	SetDownloadDirectory(dir string) error
	IsExtractorAvailable() bool
	IsTranscriptionAvailable() bool
	UpdateExtractorBinary(ctx context.Context) error
}

// Submitter queues URLs for asynchronous processing.
type Submitter interface {
	SubmitURL(url string, opts *ingest.ProcessOptions) (string, error)
}

// IngestHandlers holds the HTTP handlers for the ingest API.
type IngestHandlers struct {
	svc       IngestService
	submitter Submitter
	log       *logger.Logger
}

// NewIngestHandlers creates the handler set. A nil submitter disables
// asynchronous submission; requests then run inline.
func NewIngestHandlers(svc IngestService, submitter Submitter, log *logger.Logger) *IngestHandlers {
	if log == nil {
		log = logger.Default()
	}
	return &IngestHandlers{
		svc:       svc,
		submitter: submitter,
		log:       log.WithComponent("api"),
	}
}

// IngestRequest is the body for POST /api/v1/ingest.
type IngestRequest struct {
	URL string `json:"url"`
	// Sync runs the pipeline inline and returns the full result instead
	// of a job handle.
	Sync    bool                   `json:"sync,omitempty"`
	Options *ingest.ProcessOptions `json:"options,omitempty"`
}

// IngestAccepted is the response for an asynchronous submission.
type IngestAccepted struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// ValidateRequest is the body for POST /api/v1/validate.
type ValidateRequest struct {
	URL string `json:"url"`
}

// DownloadDirRequest is the body for PUT /api/v1/settings/download-dir.
type DownloadDirRequest struct {
	DownloadDir string `json:"downloadDir"`
}

// CreateIngest handles POST /api/v1/ingest.
func (h *IngestHandlers) CreateIngest(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.URL == "" {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("url is required"))
		return
	}

	if req.Sync || h.submitter == nil {
		// The pipeline reports failures inside the result, so a failed
		// ingest is still a 200.
		res := h.svc.ProcessURL(r.Context(), req.URL, req.Options)
		apperrors.WriteJSON(w, requestID, http.StatusOK, res)
		return
	}

	jobID, err := h.submitter.SubmitURL(req.URL, req.Options)
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusAccepted, IngestAccepted{
		JobID:  jobID,
		Status: string(ingest.StatusQueued),
	})
}

// Validate handles POST /api/v1/validate. Invalid URLs are a normal
// outcome and come back as 200 with valid=false.
func (h *IngestHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.URL == "" {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("url is required"))
		return
	}

	res := h.svc.ValidateURL(r.Context(), req.URL)
	apperrors.WriteJSON(w, requestID, http.StatusOK, res)
}

// ListJobs handles GET /api/v1/jobs.
func (h *IngestHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.GetAllJobs()
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *IngestHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	job, ok := h.svc.GetJobStatus(r.PathValue("id"))
	if !ok {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}
	apperrors.WriteJSON(w, requestID, http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/jobs/{id}. Cancellation is
// fire-and-forget: the job transitions once the pipeline observes it.
func (h *IngestHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())
	jobID := r.PathValue("id")

	if _, ok := h.svc.GetJobStatus(jobID); !ok {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	h.svc.CancelJob(jobID)
	apperrors.WriteJSON(w, requestID, http.StatusAccepted, map[string]string{
		"jobId":  jobID,
		"status": "cancelling",
	})
}

// ClearJobs handles POST /api/v1/jobs/clear. In-flight jobs survive.
func (h *IngestHandlers) ClearJobs(w http.ResponseWriter, r *http.Request) {
	cleared := h.svc.ClearCompletedJobs()
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]int{
		"cleared": cleared,
	})
}

// GetTranscript handles GET /api/v1/jobs/{id}/transcript. The default
// response is the artifact JSON from disk; ?format=text returns the
// cleaned transcript text.
func (h *IngestHandlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	job, ok := h.svc.GetJobStatus(r.PathValue("id"))
	if !ok {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	if r.URL.Query().Get("format") == "text" {
		if job.Transcript == "" {
			apperrors.WriteError(w, requestID, apperrors.NotFound("transcript"))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(job.Transcript))
		return
	}

	if job.TranscriptPath == "" {
		apperrors.WriteError(w, requestID, apperrors.NotFound("transcript"))
		return
	}

	data, err := os.ReadFile(job.TranscriptPath)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.NotFound("transcript artifact"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetDownloadDir handles GET /api/v1/settings/download-dir.
func (h *IngestHandlers) GetDownloadDir(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]string{
		"downloadDir": h.svc.DownloadDirectory(),
	})
}

// SetDownloadDir handles PUT /api/v1/settings/download-dir.
func (h *IngestHandlers) SetDownloadDir(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req DownloadDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.DownloadDir == "" {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("downloadDir is required"))
		return
	}

	if err := h.svc.SetDownloadDirectory(req.DownloadDir); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	h.log.Info(r.Context(), "download directory changed", map[string]interface{}{
		"download_dir": req.DownloadDir,
	})
	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]string{
		"downloadDir": h.svc.DownloadDirectory(),
	})
}

// Capabilities handles GET /api/v1/capabilities. Clients use this to
// grey out transcription toggles when no engine is configured.
func (h *IngestHandlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]bool{
		"extractorAvailable":     h.svc.IsExtractorAvailable(),
		"transcriptionAvailable": h.svc.IsTranscriptionAvailable(),
	})
}

// UpdateExtractor handles POST /api/v1/extractor/update and forces a
// re-provision of the extractor binary.
func (h *IngestHandlers) UpdateExtractor(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	if err := h.svc.UpdateExtractorBinary(r.Context()); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]bool{
		"updated":   true,
		"available": h.svc.IsExtractorAvailable(),
	})
}
