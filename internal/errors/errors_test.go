package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExtractorProcessError_CarriesExitCode(t *testing.T) {
	err := ExtractorProcessError(1)

	if !strings.Contains(err.Message, "exited with code 1") {
		t.Errorf("message should name the exit code, got %q", err.Message)
	}
	if got := err.Details["exit_code"]; got != 1 {
		t.Errorf("expected exit_code detail 1, got %v", got)
	}
	if err.Category != CategoryExternal {
		t.Errorf("expected external category, got %s", err.Category)
	}
}

func TestCancelled_Message(t *testing.T) {
	err := Cancelled()

	if err.Message != "Cancelled by user" {
		t.Errorf("expected 'Cancelled by user', got %q", err.Message)
	}
	if !IsCancellation(err) {
		t.Error("IsCancellation should report true for Cancelled()")
	}
	if IsCancellation(DirectDownloadError("boom")) {
		t.Error("IsCancellation should report false for other errors")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error strips code prefix", ValidationError("Invalid URL"), "Invalid URL"},
		{"plain error passes through", errors.New("socket closed"), "socket closed"},
		{"wrapped cause not repeated", DirectDownloadError("fetch failed").WithCause(errors.New("EOF")), "fetch failed"},
	}

	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("%s: UserMessage() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  *AppError
		want bool
	}{
		{DirectDownloadError("connection reset"), true},
		{ExtractorProvisionError("fetch failed"), true},
		{TranscriptionError("server busy"), true},
		{ExtractorProcessError(1), false},
		{DownloadedFileNotFound("/tmp"), false},
		{UnsupportedProvider("unknown"), false},
		{Cancelled(), false},
		{ValidationError("bad URL"), false},
		{DirectDownloadError("download returned 404 Not Found").WithDetails(map[string]any{"http_status": 404}), false},
		{DirectDownloadError("download returned 503 Service Unavailable").WithDetails(map[string]any{"http_status": 503}), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.err.Code, got, tt.want)
		}
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := DownloadError("wrapper").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) {
		t.Error("errors.As should match *AppError")
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(JobNotFound(), CodeJobNotFound) {
		t.Error("HasCode should match the error's own code")
	}
	if HasCode(errors.New("plain"), CodeJobNotFound) {
		t.Error("HasCode should be false for non-AppError values")
	}
}

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		client   bool
		server   bool
		external bool
	}{
		{"validation", ValidationError("bad URL"), true, false, false},
		{"job not found", JobNotFound(), true, false, false},
		{"internal", InternalError("boom"), false, true, false},
		{"storage", StorageError("bucket gone"), false, true, false},
		{"extractor process", ExtractorProcessError(2), false, false, true},
		{"direct download", DirectDownloadError("reset"), false, false, true},
		{"plain error", errors.New("plain"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		if got := IsClientError(tt.err); got != tt.client {
			t.Errorf("%s: IsClientError() = %v, want %v", tt.name, got, tt.client)
		}
		if got := IsServerError(tt.err); got != tt.server {
			t.Errorf("%s: IsServerError() = %v, want %v", tt.name, got, tt.server)
		}
		if got := IsExternalError(tt.err); got != tt.external {
			t.Errorf("%s: IsExternalError() = %v, want %v", tt.name, got, tt.external)
		}
	}
}
