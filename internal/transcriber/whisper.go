package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/logger"
)

const (
	inferencePath = "/inference"
	healthPath    = "/health"
	userAgent     = "mediascribe-ingest/1.0"

	// Transcription of long recordings is slow, so the per-request ceiling
	// is generous. Callers still bound the call through ctx.
	defaultRequestTimeout = 30 * time.Minute

	maxErrorBodyBytes = 512
)

// ClientConfig configures the whisper server client.
type ClientConfig struct {
	// BaseURL is the whisper server root, for example http://localhost:9000.
	BaseURL string
	// Timeout overrides the per-request ceiling. Zero keeps the default.
	Timeout time.Duration
}

// WhisperClient calls a whisper-compatible transcription server over HTTP.
// Media is submitted as a multipart upload to the server's inference
// endpoint together with the engine parameters.
type WhisperClient struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   *apperrors.RetryConfig
	log        *logger.Logger
}

// NewWhisperClient builds a client for the server at cfg.BaseURL.
func NewWhisperClient(cfg ClientConfig, log *logger.Logger) *WhisperClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &WhisperClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   apperrors.TranscriberRetryConfig(),
		log:        log.WithComponent("transcriber"),
	}
}

// Transcribe uploads the media file and returns the engine output. Transient
// server failures are retried; client errors and cancellation are not.
func (c *WhisperClient) Transcribe(ctx context.Context, req Request) (*Result, error) {
	req = req.withDefaults()

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, apperrors.TranscriptionError("media file is not readable").WithCause(err)
	}

	c.log.Info(ctx, "Starting transcription", map[string]interface{}{
		"file":     filepath.Base(req.FilePath),
		"size":     info.Size(),
		"model":    req.Model,
		"language": req.Language,
	})

	start := time.Now()
	result, err := apperrors.RetryWithResult(ctx, c.retryCfg, func(ctx context.Context) (*Result, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "Transcription complete", map[string]interface{}{
		"file":       filepath.Base(req.FilePath),
		"language":   result.Language,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (c *WhisperClient) post(ctx context.Context, req Request) (*Result, error) {
	body, contentType, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+inferencePath, body)
	if err != nil {
		return nil, apperrors.TranscriptionError("failed to create transcription request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.TranscriptionError("transcription request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readErrorBody(resp.Body)
		appErr := apperrors.TranscriptionError(
			fmt.Sprintf("transcription server returned %s", resp.Status)).
			WithDetails(map[string]any{"http_status": resp.StatusCode})
		if detail != "" {
			appErr.Details["server_message"] = detail
		}
		return nil, appErr
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.TranscriptionError("failed to parse transcription response").WithCause(err)
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	return &result, nil
}

// encodeRequest builds the multipart form the server expects: the media file
// plus the engine parameters as plain fields.
func encodeRequest(req Request) (io.Reader, string, error) {
	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, "", apperrors.TranscriptionError("media file could not be opened").WithCause(err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, "", apperrors.TranscriptionError("failed to encode media upload").WithCause(err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", apperrors.TranscriptionError("failed to read media file").WithCause(err)
	}

	fields := map[string]string{
		"model":           req.Model,
		"language":        req.Language,
		"task":            req.Task,
		"response_format": "json",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", apperrors.TranscriptionError("failed to encode request field").WithCause(err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", apperrors.TranscriptionError("failed to finalize media upload").WithCause(err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// Ping reports whether the server answers at all. Any HTTP response counts
// as reachable, including an error status.
func (c *WhisperClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return apperrors.TranscriptionError("failed to create health request").WithCause(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.TranscriptionError("transcription server is unreachable").WithCause(err)
	}
	resp.Body.Close()
	return nil
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
