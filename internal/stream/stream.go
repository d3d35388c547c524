// Package stream serves downloaded media files over HTTP with Range
// support so browser players can seek while previewing a job's output.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/ingest"
	"github.com/mediascribe/ingest/internal/logger"
	"github.com/mediascribe/ingest/internal/storage"
)

// JobSource resolves job IDs to job snapshots. The ingest service
// satisfies this.
type JobSource interface {
	GetJobStatus(id string) (*ingest.Job, bool)
}

// Handler handles media streaming requests.
type Handler struct {
	jobs JobSource
	log  *logger.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(jobs JobSource, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		jobs: jobs,
		log:  log.WithComponent("stream"),
	}
}

// rangeSpec represents a parsed HTTP Range header.
type rangeSpec struct {
	start int64
	end   int64
}

var rangePattern = regexp.MustCompile(`^(\d*)-(\d*)$`)

// parseRange parses an HTTP Range header value. Supported forms:
// "bytes=0-499", "bytes=500-", "bytes=-500". Multiple ranges collapse
// to the first one.
func parseRange(rangeHeader string, totalSize int64) (*rangeSpec, error) {
	if rangeHeader == "" {
		return nil, nil
	}

	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, errors.New("invalid range unit")
	}

	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	if strings.Contains(spec, ",") {
		spec = strings.Split(spec, ",")[0]
	}

	matches := rangePattern.FindStringSubmatch(strings.TrimSpace(spec))
	if matches == nil {
		return nil, errors.New("invalid range format")
	}

	startStr, endStr := matches[1], matches[2]
	parsed := &rangeSpec{}

	switch {
	case startStr == "" && endStr == "":
		return nil, errors.New("invalid range: both start and end are empty")

	case startStr == "":
		// Suffix range: -500 means last 500 bytes
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid suffix length: %w", err)
		}
		parsed.start = totalSize - suffix
		if parsed.start < 0 {
			parsed.start = 0
		}
		parsed.end = totalSize - 1

	case endStr == "":
		// Open-ended range: 500- means from byte 500 to end
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start position: %w", err)
		}
		parsed.start = start
		parsed.end = totalSize - 1

	default:
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start position: %w", err)
		}
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid end position: %w", err)
		}
		parsed.start = start
		parsed.end = end
	}

	if parsed.start < 0 || parsed.start >= totalSize {
		return nil, errors.New("range start out of bounds")
	}
	if parsed.end >= totalSize {
		parsed.end = totalSize - 1
	}
	if parsed.start > parsed.end {
		return nil, errors.New("invalid range: start > end")
	}

	return parsed, nil
}

// ServeMedia handles GET /api/v1/jobs/{id}/media. Supports HTTP Range
// requests for seeking in audio players.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	jobID := r.PathValue("id")
	if jobID == "" {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("job id is required"))
		return
	}

	job, ok := h.jobs.GetJobStatus(jobID)
	if !ok {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	if job.DownloadPath == "" {
		apperrors.WriteError(w, requestID, apperrors.NotFound("media"))
		return
	}

	f, err := os.Open(job.DownloadPath)
	if err != nil {
		// The file can legitimately disappear after delete-on-transcribe.
		apperrors.WriteError(w, requestID, apperrors.NotFound("media file"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.InternalError("failed to stat media file"))
		return
	}

	totalSize := info.Size()
	contentType := storage.MediaContentType(job.DownloadPath)

	spec, err := parseRange(r.Header.Get("Range"), totalSize)
	if err != nil {
		h.log.Debug(ctx, "rejected range header", map[string]interface{}{
			"job_id": jobID,
			"range":  r.Header.Get("Range"),
			"reason": err.Error(),
		})
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", totalSize))
		apperrors.WriteError(w, requestID, apperrors.New(
			apperrors.CodeInvalidRequest, "invalid range",
			apperrors.CategoryClient, http.StatusRequestedRangeNotSatisfiable))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "private, max-age=3600")

	if spec != nil {
		contentLength := spec.end - spec.start + 1
		w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", spec.start, spec.end, totalSize))
		w.WriteHeader(http.StatusPartialContent)

		if _, err := f.Seek(spec.start, io.SeekStart); err != nil {
			// Headers already sent
			return
		}
		if _, err := io.CopyN(w, f, contentLength); err != nil {
			h.log.Debug(ctx, "range copy aborted", map[string]interface{}{
				"job_id": jobID, "error": err.Error(),
			})
		}
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(totalSize, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.log.Debug(ctx, "media copy aborted", map[string]interface{}{
			"job_id": jobID, "error": err.Error(),
		})
	}
}
