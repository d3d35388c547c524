package storage

import (
	"context"
	"os"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/events"
	"github.com/mediascribe/ingest/internal/ingest"
	"github.com/mediascribe/ingest/internal/logger"
)

const archiverBuffer = 128

// Archiver mirrors finished jobs' artifacts into the store. Upload failures
// are logged and dropped; archival never affects job outcomes.
type Archiver struct {
	store       ArtifactStore
	log         *logger.Logger
	uploadMedia bool
	retryCfg    *apperrors.RetryConfig
}

// NewArchiver wires an archiver to store. uploadMedia also mirrors the
// downloaded media file next to the transcript.
func NewArchiver(store ArtifactStore, uploadMedia bool, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.Default()
	}
	return &Archiver{
		store:       store,
		log:         log.WithComponent("archiver"),
		uploadMedia: uploadMedia,
		retryCfg:    apperrors.StorageRetryConfig(),
	}
}

// Run consumes completion events from bus until ctx is cancelled or the bus
// closes. Call it in its own goroutine.
func (a *Archiver) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(archiverBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Kind != events.KindComplete {
				continue
			}
			res, ok := ev.Payload.(*ingest.Result)
			if !ok || res == nil {
				continue
			}
			a.archive(ctx, res)
		}
	}
}

func (a *Archiver) archive(ctx context.Context, res *ingest.Result) {
	if res.TranscriptPath != "" {
		key := TranscriptKey(res.JobID)
		if err := a.upload(ctx, res.TranscriptPath, key, "application/json"); err != nil {
			a.log.Warn(ctx, "Transcript archival failed", map[string]interface{}{
				"job_id": res.JobID,
				"key":    key,
				"error":  err.Error(),
			})
		} else {
			a.log.Info(ctx, "Transcript archived", map[string]interface{}{
				"job_id": res.JobID,
				"key":    key,
			})
		}
	}

	if !a.uploadMedia || res.DownloadPath == "" {
		return
	}
	// The media file may already be gone when the job asked for deletion
	// after transcription.
	if _, err := os.Stat(res.DownloadPath); err != nil {
		return
	}
	key := MediaKey(res.JobID, res.DownloadPath)
	if err := a.upload(ctx, res.DownloadPath, key, MediaContentType(res.DownloadPath)); err != nil {
		a.log.Warn(ctx, "Media archival failed", map[string]interface{}{
			"job_id": res.JobID,
			"key":    key,
			"error":  err.Error(),
		})
	}
}

func (a *Archiver) upload(ctx context.Context, localPath, key, contentType string) error {
	return apperrors.Retry(ctx, a.retryCfg, func(ctx context.Context) error {
		return a.store.UploadFile(ctx, localPath, key, contentType)
	})
}
