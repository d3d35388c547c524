// Package downloader routes URL downloads to provider-specific strategies
// and tracks in-flight work so it can be cancelled.
package downloader

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/extractor"
	"github.com/mediascribe/ingest/internal/logger"
	"github.com/mediascribe/ingest/internal/validators"
)

// Config holds settings for the download manager.
type Config struct {
	// DownloadDir is the default destination directory.
	DownloadDir string
	// Extractor runs the external extractor binary. Required for providers
	// that need page extraction.
	Extractor *extractor.Runner
	// DirectMaxRetries bounds direct-HTTP fetch attempts.
	DirectMaxRetries int
	// OnProgress receives throttled download progress events.
	OnProgress ProgressFunc
}

// handle represents one in-flight download. Pointer identity ties a
// registry entry to the call that created it, so a stale cleanup can never
// remove a newer entry under the same id.
type handle struct {
	cancel context.CancelCauseFunc
}

// Manager dispatches downloads by provider and owns the active-download
// registry.
type Manager struct {
	log        *logger.Logger
	runner     *extractor.Runner
	strategies map[validators.Provider]Strategy

	mu          sync.RWMutex
	emit        ProgressFunc
	downloadDir string
	active      map[string]*handle
}

// NewManager wires the built-in strategies: extractor-backed providers and
// direct HTTP for file and feed URLs.
func NewManager(cfg *Config, log *logger.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if log == nil {
		log = logger.Default()
	}

	if cfg.DownloadDir != "" {
		if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
			return nil, apperrors.InternalError("failed to create download directory").WithCause(err)
		}
	}

	m := &Manager{
		log:         log.WithComponent("downloader"),
		runner:      cfg.Extractor,
		emit:        cfg.OnProgress,
		downloadDir: cfg.DownloadDir,
		active:      make(map[string]*handle),
		strategies:  make(map[validators.Provider]Strategy),
	}

	extractorStrat := newExtractorStrategy(cfg.Extractor)
	directStrat := newDirectStrategy(cfg.DirectMaxRetries)

	m.strategies[validators.ProviderStreamingVideo] = extractorStrat
	m.strategies[validators.ProviderAudioHost] = extractorStrat
	m.strategies[validators.ProviderSocialVideo] = extractorStrat
	m.strategies[validators.ProviderDirectFile] = directStrat
	m.strategies[validators.ProviderPodcastFeed] = directStrat

	return m, nil
}

// RegisterStrategy binds a provider to a strategy, replacing any existing
// binding. Adding a provider is a table entry, not a new branch.
func (m *Manager) RegisterStrategy(provider validators.Provider, strategy Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[provider] = strategy
}

func (m *Manager) strategyFor(provider validators.Provider) Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategies[provider]
}

// SetProgressFunc replaces the progress callback. Downloads started after
// the call use the new function.
func (m *Manager) SetProgressFunc(fn ProgressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit = fn
}

func (m *Manager) progressFunc() ProgressFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emit
}

// Download fetches url with the strategy registered for provider. The jobID
// keys the active-download handle; an empty jobID gets a generated one. The
// handle is removed when the call returns, whatever the outcome.
func (m *Manager) Download(ctx context.Context, jobID, url string, provider validators.Provider, opts Options) (*Result, error) {
	if url == "" {
		return nil, apperrors.BadRequest("url is required")
	}

	strategy := m.strategyFor(provider)
	if strategy == nil {
		return nil, apperrors.UnsupportedProvider(string(provider))
	}

	if jobID == "" {
		jobID = uuid.New().String()
	}
	if opts.Directory == "" {
		opts.Directory = m.DownloadDirectory()
	}

	dlCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	h := &handle{cancel: cancel}
	m.registerHandle(jobID, h)
	defer m.removeHandle(jobID, h)

	m.log.Debug(ctx, "Download started", map[string]interface{}{
		"job_id":   jobID,
		"provider": string(provider),
		"strategy": strategy.Name(),
	})

	sink := NewProgressSink(jobID, m.progressFunc())
	result, err := strategy.Download(dlCtx, url, opts, sink)
	if err != nil {
		// A cancel signal can surface as whatever error the interrupted
		// strategy happened to hit. The cancellation cause wins.
		if cause := context.Cause(dlCtx); apperrors.IsCancellation(cause) {
			m.log.Info(ctx, "Download cancelled", map[string]interface{}{"job_id": jobID})
			return nil, cause
		}
		m.log.Error(ctx, "Download failed", err, map[string]interface{}{
			"job_id":   jobID,
			"provider": string(provider),
		})
		return nil, err
	}

	m.log.Info(ctx, "Download complete", map[string]interface{}{
		"job_id": jobID,
		"file":   result.FilePath,
	})
	return result, nil
}

// CancelDownload stops the in-flight download for jobID and removes its
// handle. Cancelling a job with no active handle is a no-op.
func (m *Manager) CancelDownload(jobID string) {
	m.mu.Lock()
	h, ok := m.active[jobID]
	delete(m.active, jobID)
	m.mu.Unlock()

	if !ok {
		return
	}
	h.cancel(apperrors.Cancelled())
}

// CancelAllDownloads stops every active download.
func (m *Manager) CancelAllDownloads() {
	m.mu.Lock()
	handles := m.active
	m.active = make(map[string]*handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel(apperrors.Cancelled())
	}
}

// ActiveCount returns the number of downloads currently in flight.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// DownloadDirectory returns the current default destination directory.
func (m *Manager) DownloadDirectory() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloadDir
}

// SetDownloadDirectory changes the default destination, creating it if
// absent.
func (m *Manager) SetDownloadDirectory(dir string) error {
	if dir == "" {
		return apperrors.BadRequest("download directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.InternalError("failed to create download directory").WithCause(err)
	}

	m.mu.Lock()
	m.downloadDir = dir
	m.mu.Unlock()
	return nil
}

// IsExtractorAvailable reports whether the extractor binary can be invoked.
func (m *Manager) IsExtractorAvailable() bool {
	if m.runner == nil {
		return false
	}
	return m.runner.IsAvailable()
}

// UpdateExtractorBinary removes the cached extractor binary and provisions
// a fresh copy.
func (m *Manager) UpdateExtractorBinary(ctx context.Context) error {
	if m.runner == nil {
		return apperrors.ExtractorProvisionError("no extractor configured")
	}
	return m.runner.Update(ctx)
}

func (m *Manager) registerHandle(jobID string, h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[jobID] = h
}

// removeHandle deletes the registry entry only if it still belongs to this
// call.
func (m *Manager) removeHandle(jobID string, h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[jobID] == h {
		delete(m.active, jobID)
	}
}
