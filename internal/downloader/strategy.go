package downloader

import (
	"context"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/extractor"
)

// Options control a single download.
type Options struct {
	// Directory receives the file. Defaults to the manager's directory.
	Directory string
	// Quality selects the extractor's format tier.
	Quality extractor.Quality
	// Format is the target audio container when ExtractAudio is set.
	Format string
	// ExtractAudio asks the extractor strategy to convert to audio.
	ExtractAudio bool
	// CookieFile is forwarded to the extractor for authenticated sources.
	CookieFile string
}

// Result is the outcome of a completed download.
type Result struct {
	FilePath string
	Metadata map[string]any
}

// Strategy downloads one URL to a local file. Implementations report raw
// progress through the sink and honor ctx cancellation.
type Strategy interface {
	Name() string
	Download(ctx context.Context, url string, opts Options, sink *ProgressSink) (*Result, error)
}

// extractorStrategy delegates to the external extractor binary. It covers
// every provider whose pages need general-purpose media extraction.
type extractorStrategy struct {
	runner *extractor.Runner
}

func newExtractorStrategy(runner *extractor.Runner) *extractorStrategy {
	return &extractorStrategy{runner: runner}
}

func (s *extractorStrategy) Name() string {
	return "extractor"
}

func (s *extractorStrategy) Download(ctx context.Context, url string, opts Options, sink *ProgressSink) (*Result, error) {
	if s.runner == nil {
		return nil, apperrors.ExtractorProvisionError("no extractor configured")
	}

	res, err := s.runner.Download(ctx, url, extractor.DownloadOptions{
		OutputDir:    opts.Directory,
		Quality:      opts.Quality,
		ExtractAudio: opts.ExtractAudio,
		AudioFormat:  opts.Format,
		CookieFile:   opts.CookieFile,
	}, func(percent float64) {
		sink.Report(percent, 0, 0, 0, 0)
	})
	if err != nil {
		return nil, err
	}

	// The extractor does not always print a 100% line before exiting.
	sink.Report(100, 0, 0, 0, 0)

	return &Result{
		FilePath: res.FilePath,
		Metadata: res.Metadata.Fields(),
	}, nil
}
