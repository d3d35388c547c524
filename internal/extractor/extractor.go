// Package extractor runs the external media extractor binary as a
// subprocess, parsing its line-oriented output for metadata and download
// progress. The binary is provisioned on first use and cached; when
// provisioning fails the runner falls back to a system-installed copy.
package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/logger"
)

// Quality selects the format tier requested from the extractor.
type Quality string

const (
	QualityBest  Quality = "best"
	QualityGood  Quality = "good"
	QualityWorst Quality = "worst"
)

// Config holds settings for the extractor runner.
type Config struct {
	// BinDir is the directory the provisioned binary is cached in. Empty
	// disables provisioning and the runner relies on PATH.
	BinDir string
	// BinaryPath overrides binary resolution entirely when set.
	BinaryPath string
	// Timeout bounds a single extractor invocation. Zero disables the bound.
	Timeout time.Duration
	// CookieFile is passed to the extractor when it exists on disk.
	CookieFile string
	// BrowserCookies names a browser whose cookie store the extractor should
	// import when no cookie file is available (e.g. "firefox"). Empty skips
	// the import.
	BrowserCookies string
	// ReleaseBaseURL is where platform binaries are fetched from.
	ReleaseBaseURL string
}

// DownloadOptions controls a single extraction run.
type DownloadOptions struct {
	// OutputDir receives the downloaded file. Defaults to the OS temp dir.
	OutputDir string
	// Quality selects the format tier. Defaults to QualityBest.
	Quality Quality
	// ExtractAudio converts the download to AudioFormat.
	ExtractAudio bool
	// AudioFormat is the target container for audio extraction. Defaults to
	// mp3 when ExtractAudio is set.
	AudioFormat string
	// CookieFile overrides the runner-level cookie file for this run.
	CookieFile string
}

// Result is the outcome of a successful extraction run.
type Result struct {
	FilePath string
	Metadata *Metadata
}

// ProgressFunc receives raw percent values parsed from the extractor's
// progress lines. Throttling is the caller's concern.
type ProgressFunc func(percent float64)

// Runner invokes the external media extractor.
type Runner struct {
	cfg *Config
	log *logger.Logger

	mu      sync.Mutex
	binPath string
}

// New creates a runner. The binary is not resolved until the first
// invocation or an explicit EnsureBinary call.
func New(cfg *Config, log *logger.Logger) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ReleaseBaseURL == "" {
		cfg.ReleaseBaseURL = defaultReleaseBaseURL
	}
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		cfg: cfg,
		log: log.WithComponent("extractor"),
	}
}

// Download runs the extractor against sourceURL and returns the local file
// it produced. Cancelling ctx kills the subprocess.
func (r *Runner) Download(ctx context.Context, sourceURL string, opts DownloadOptions, onProgress ProgressFunc) (*Result, error) {
	bin := r.EnsureBinary(ctx)

	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, apperrors.DownloadError("failed to create output directory").WithCause(err)
	}

	// The timestamp token keys both the output template and the directory
	// scan that locates the file afterwards.
	token := strconv.FormatInt(time.Now().UnixMilli(), 10)
	args := r.buildArgs(sourceURL, token, opts)

	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.DownloadError("failed to create stdout pipe").WithCause(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.DownloadError("failed to create stderr pipe").WithCause(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperrors.ExtractorProvisionError("extractor binary could not be started; install it or point EXTRACTOR_DIR at a managed copy").WithCause(err)
	}

	r.log.Debug(ctx, "Extractor started", map[string]interface{}{
		"binary": bin,
		"url":    sourceURL,
	})

	var stderrBuf strings.Builder
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrBuf.WriteString(scanner.Text())
			stderrBuf.WriteString("\n")
		}
	}()

	var meta *Metadata
	scanner := bufio.NewScanner(stdout)
	// Metadata lines carry the full format table and can run to megabytes.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if raw, ok := tryMetadataLine(line); ok {
			meta = raw.ToMetadata()
			continue
		}
		if percent, ok := parseProgressLine(line); ok && onProgress != nil {
			onProgress(percent)
		}
	}

	<-stderrDone
	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, r.classifyRunFailure(ctx, runCtx, waitErr, stderrBuf.String())
	}

	filePath := ""
	if meta != nil && meta.Filename != "" {
		// Audio extraction replaces the reported file, so trust it only
		// while it still exists.
		if _, err := os.Stat(meta.Filename); err == nil {
			filePath = meta.Filename
		}
	}
	if filePath == "" {
		filePath, err = findOutputFile(opts.OutputDir, token)
		if err != nil {
			return nil, err
		}
	}

	return &Result{FilePath: filePath, Metadata: meta}, nil
}

// classifyRunFailure maps a subprocess failure onto the pipeline error
// taxonomy, preserving cancellation causes over generic process errors.
func (r *Runner) classifyRunFailure(ctx, runCtx context.Context, waitErr error, stderr string) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(ctx.Err(), cause) {
			return cause
		}
		return ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return apperrors.ExternalTimeout("extractor")
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		procErr := apperrors.ExtractorProcessError(exitErr.ExitCode())
		if reason := categorizeStderr(stderr); reason != "" {
			procErr.Details["reason"] = reason
		}
		return procErr
	}

	var execErr *exec.Error
	if errors.As(waitErr, &execErr) {
		return apperrors.ExtractorProvisionError("extractor binary could not be started; install it or point EXTRACTOR_DIR at a managed copy").WithCause(waitErr)
	}

	return apperrors.DownloadError("extractor invocation failed").WithCause(waitErr)
}

// buildArgs assembles the extractor command line for one run.
func (r *Runner) buildArgs(sourceURL, token string, opts DownloadOptions) []string {
	outputTemplate := filepath.Join(opts.OutputDir, token+"_%(title)s.%(ext)s")

	args := []string{
		"--output", outputTemplate,
		"--no-playlist",
		"--print-json",
		"--newline",
		"--progress",
		"--no-warnings",
	}

	if opts.ExtractAudio {
		format := opts.AudioFormat
		if format == "" {
			format = "mp3"
		}
		args = append(args, "-x", "--audio-format", format, "--audio-quality", "0")
	}

	args = append(args, "-f", formatSelector(opts.Quality, opts.ExtractAudio))

	cookieFile := opts.CookieFile
	if cookieFile == "" {
		cookieFile = r.cfg.CookieFile
	}
	switch {
	case cookieFile != "" && fileExists(cookieFile):
		args = append(args, "--cookies", cookieFile)
	case r.cfg.BrowserCookies != "":
		args = append(args, "--cookies-from-browser", r.cfg.BrowserCookies)
	}

	return append(args, sourceURL)
}

// formatSelector maps a quality tier onto the extractor's format language.
func formatSelector(q Quality, audioOnly bool) string {
	if audioOnly {
		switch q {
		case QualityWorst:
			return "worstaudio/worst"
		case QualityGood:
			return "bestaudio[abr<=128]/bestaudio/best"
		default:
			return "bestaudio/best"
		}
	}
	switch q {
	case QualityWorst:
		return "worst"
	case QualityGood:
		return "best[height<=720]/best"
	default:
		return "bestvideo*+bestaudio/best"
	}
}

// Progress lines look like: [download]  45.2% of 5.00MiB at 1.00MiB/s ETA 00:03
var progressPattern = regexp.MustCompile(`^\[download\]\s+(\d{1,3}(?:\.\d+)?)%`)

// parseProgressLine extracts the percent value from a progress line.
func parseProgressLine(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return percent, true
}

// tryMetadataLine speculatively parses a stdout line as the extractor's JSON
// metadata document.
func tryMetadataLine(line string) (*rawOutput, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var raw rawOutput
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}
	if raw.ID == "" && raw.Title == "" {
		return nil, false
	}
	return &raw, true
}

// categorizeStderr maps well-known extractor failure text to a short reason.
func categorizeStderr(stderr string) string {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "this video is unavailable"):
		return "content unavailable"
	case strings.Contains(lower, "private video"),
		strings.Contains(lower, "is private"):
		return "content is private"
	case strings.Contains(lower, "age-restricted"),
		strings.Contains(lower, "sign in to confirm your age"):
		return "content is age-restricted"
	case strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "no suitable extractor"):
		return "no extractor for this URL"
	case strings.Contains(lower, "unable to download"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"):
		return "network error"
	default:
		return ""
	}
}

// findOutputFile scans dir for the newest completed file carrying the
// timestamp token, skipping the extractor's partial-download artifacts.
func findOutputFile(dir, token string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperrors.DownloadedFileNotFound(dir).WithCause(err)
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, token+"_") {
			continue
		}
		if isPartialArtifact(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = name
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", apperrors.DownloadedFileNotFound(dir)
	}
	return filepath.Join(dir, newest), nil
}

func isPartialArtifact(name string) bool {
	for _, suffix := range []string{".part", ".ytdl", ".temp", ".download"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
