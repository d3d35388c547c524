package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
)

const (
	defaultReleaseBaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download"
	provisionTimeout      = 10 * time.Minute
	provisionUserAgent    = "mediascribe-ingest"
)

// assetName returns the release asset matching the current platform.
func assetName() string {
	switch runtime.GOOS {
	case "windows":
		return "yt-dlp.exe"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}

// managedBinaryName returns the filename the provisioned binary is cached
// under.
func managedBinaryName() string {
	if runtime.GOOS == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

func systemBinaryName() string {
	return "yt-dlp"
}

// EnsureBinary resolves the extractor binary, provisioning the managed copy
// on first use. Provisioning failures are not fatal: the runner degrades to
// whatever binary PATH resolution finds, and the next invocation surfaces a
// clear error if that assumption was wrong.
func (r *Runner) EnsureBinary(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.BinaryPath != "" {
		return r.cfg.BinaryPath
	}
	if r.binPath != "" {
		return r.binPath
	}
	if r.cfg.BinDir == "" {
		r.binPath = systemBinaryName()
		return r.binPath
	}

	managed := filepath.Join(r.cfg.BinDir, managedBinaryName())
	if _, err := os.Stat(managed); err == nil {
		r.binPath = managed
		return r.binPath
	}

	if err := r.fetchBinary(ctx, managed); err != nil {
		r.log.Warn(ctx, "Extractor provisioning failed, assuming a system-installed binary", map[string]interface{}{
			"error": err.Error(),
		})
		r.binPath = systemBinaryName()
		return r.binPath
	}

	r.binPath = managed
	return r.binPath
}

// IsAvailable reports whether an extractor binary can be invoked, either the
// managed copy or one on PATH.
func (r *Runner) IsAvailable() bool {
	if r.cfg.BinaryPath != "" {
		return fileExists(r.cfg.BinaryPath)
	}
	if r.cfg.BinDir != "" && fileExists(filepath.Join(r.cfg.BinDir, managedBinaryName())) {
		return true
	}
	_, err := exec.LookPath(systemBinaryName())
	return err == nil
}

// Update removes the cached binary and provisions a fresh copy. Unlike
// first-run provisioning this is an explicit operator action, so failures
// are returned instead of degraded around.
func (r *Runner) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.BinDir == "" {
		return apperrors.ExtractorProvisionError("no extractor directory configured")
	}

	managed := filepath.Join(r.cfg.BinDir, managedBinaryName())
	if err := os.Remove(managed); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.ExtractorProvisionError("failed to remove cached extractor binary").WithCause(err)
	}
	r.binPath = ""

	err := apperrors.Retry(ctx, apperrors.ProvisionRetryConfig(), func(ctx context.Context) error {
		return r.fetchBinary(ctx, managed)
	})
	if err != nil {
		return err
	}

	r.binPath = managed
	return nil
}

// fetchBinary downloads the platform binary into place, writing through a
// temporary file so a partial download never masquerades as a working
// binary.
func (r *Runner) fetchBinary(ctx context.Context, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return apperrors.ExtractorProvisionError("failed to create extractor directory").WithCause(err)
	}

	sourceURL := strings.TrimSuffix(r.cfg.ReleaseBaseURL, "/") + "/" + assetName()

	fetchCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return apperrors.ExtractorProvisionError("failed to build extractor download request").WithCause(err)
	}
	req.Header.Set("User-Agent", provisionUserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperrors.ExtractorProvisionError("failed to download extractor binary").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.ExtractorProvisionError(fmt.Sprintf("extractor download returned %s", resp.Status))
	}

	tmpPath := destination + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.ExtractorProvisionError("failed to remove stale temp file").WithCause(err)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.ExtractorProvisionError("failed to create temp file").WithCause(err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return apperrors.ExtractorProvisionError("failed to write extractor binary").WithCause(copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return apperrors.ExtractorProvisionError("failed to close extractor binary").WithCause(closeErr)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0o755); err != nil {
			_ = os.Remove(tmpPath)
			return apperrors.ExtractorProvisionError("failed to mark extractor binary executable").WithCause(err)
		}
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.ExtractorProvisionError("failed to move extractor binary into place").WithCause(err)
	}

	r.log.Info(ctx, "Provisioned extractor binary", map[string]interface{}{
		"path": destination,
	})
	return nil
}
