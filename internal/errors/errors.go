package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	CodeCancelled           = "CANCELLED"

	// Server errors (5xx)
	CodeInternalError = "INTERNAL_ERROR"
	CodeStorageError  = "STORAGE_ERROR"
	CodeQueueFull     = "QUEUE_FULL"

	// External tool/service errors
	CodeExtractorProvision = "EXTRACTOR_PROVISION_ERROR"
	CodeExtractorProcess   = "EXTRACTOR_PROCESS_ERROR"
	CodeFileNotFound       = "DOWNLOADED_FILE_NOT_FOUND"
	CodeDirectDownload     = "DIRECT_DOWNLOAD_ERROR"
	CodeDownloadError      = "DOWNLOAD_ERROR"
	CodeTranscription      = "TRANSCRIPTION_ERROR"
	CodeExternalTimeout    = "EXTERNAL_TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// UserMessage returns the human-readable message without the code prefix,
// suitable for job records and API responses.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return err.Error()
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func BadRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

// ValidationError marks a URL that the validator rejected. Terminal, never
// retried.
func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func JobNotFound() *AppError {
	return New(CodeJobNotFound, "job not found", CategoryClient, http.StatusNotFound)
}

// UnsupportedProvider marks a provider that resolved to no download strategy.
// A hard failure: unknown providers never fall back to a default strategy.
func UnsupportedProvider(provider string) *AppError {
	return New(CodeUnsupportedProvider, fmt.Sprintf("unsupported provider: %s", provider), CategoryClient, http.StatusBadRequest)
}

// Cancelled marks a user-initiated cancellation. The message is what callers
// see in the job record.
func Cancelled() *AppError {
	return New(CodeCancelled, "Cancelled by user", CategoryClient, http.StatusConflict)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func StorageError(message string) *AppError {
	return New(CodeStorageError, message, CategoryServer, http.StatusInternalServerError)
}

// QueueFull signals that the ingest queue cannot take more submissions
// right now.
func QueueFull() *AppError {
	return New(CodeQueueFull, "Ingest queue is full, try again later", CategoryServer, http.StatusServiceUnavailable)
}

// External tool/service error constructors

// ExtractorProvisionError marks a failed attempt to fetch or install the
// extractor binary. Callers degrade to a system-installed binary rather than
// failing the job outright.
func ExtractorProvisionError(message string) *AppError {
	return New(CodeExtractorProvision, message, CategoryExternal, http.StatusBadGateway)
}

// ExtractorProcessError marks a non-zero extractor exit. The exit code rides
// along in the details.
func ExtractorProcessError(exitCode int) *AppError {
	return New(CodeExtractorProcess,
		fmt.Sprintf("Extractor process exited with code %d", exitCode),
		CategoryExternal, http.StatusBadGateway).
		WithDetails(map[string]any{"exit_code": exitCode})
}

// DownloadedFileNotFound marks an extractor run that exited cleanly without a
// locatable output file.
func DownloadedFileNotFound(dir string) *AppError {
	return New(CodeFileNotFound,
		"download completed but no output file was found",
		CategoryExternal, http.StatusBadGateway).
		WithDetails(map[string]any{"directory": dir})
}

// DirectDownloadError marks a transport failure in the direct HTTP strategy
// after retries were exhausted.
func DirectDownloadError(message string) *AppError {
	return New(CodeDirectDownload, message, CategoryExternal, http.StatusBadGateway)
}

func DownloadError(message string) *AppError {
	return New(CodeDownloadError, message, CategoryExternal, http.StatusBadGateway)
}

// TranscriptionError marks a transcriber failure. Non-terminal for the job:
// the download still counts as a success without a transcript.
func TranscriptionError(message string) *AppError {
	return New(CodeTranscription, message, CategoryExternal, http.StatusBadGateway)
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, fmt.Sprintf("%s request timed out", service), CategoryExternal, http.StatusGatewayTimeout)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	var appErr *AppError

	switch e := err.(type) {
	case *AppError:
		appErr = e
	default:
		// Wrap unknown errors as internal errors
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	switch appErr.Code {
	case CodeCancelled, CodeExtractorProcess, CodeFileNotFound, CodeUnsupportedProvider:
		// Deterministic failures: retrying reproduces them.
		return false
	}

	// External service errors are typically transient. When the error carries
	// the upstream HTTP status, that status decides instead.
	if appErr.Category == CategoryExternal {
		if status, ok := appErr.Details["http_status"].(int); ok {
			return HTTPRetryableStatus(status)
		}
		return true
	}

	return false
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryClient
}

// IsServerError returns true if the error is a server error
func IsServerError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryServer
}

// IsExternalError returns true if the error is an external service error
func IsExternalError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryExternal
}

// IsCancellation reports whether err represents a user-initiated cancellation.
func IsCancellation(err error) bool {
	return HasCode(err, CodeCancelled)
}
