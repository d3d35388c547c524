package validators

import (
	"path"
	"strings"
)

// DirectFileValidator validates URLs that point straight at a media file.
// These route to the direct-HTTP download strategy.
type DirectFileValidator struct {
	extensions map[string]string // extension -> media type
}

// NewDirectFileValidator creates a new direct-file URL validator
func NewDirectFileValidator() *DirectFileValidator {
	return &DirectFileValidator{
		extensions: map[string]string{
			".mp3":  "audio",
			".wav":  "audio",
			".m4a":  "audio",
			".m4b":  "audio",
			".aac":  "audio",
			".flac": "audio",
			".ogg":  "audio",
			".opus": "audio",
			".wma":  "audio",
			".mp4":  "video",
			".m4v":  "video",
			".webm": "video",
			".mkv":  "video",
			".mov":  "video",
			".avi":  "video",
		},
	}
}

// Provider returns the provider category for this validator
func (v *DirectFileValidator) Provider() Provider {
	return ProviderDirectFile
}

// CanHandle returns true if the URL path ends in a known media extension
func (v *DirectFileValidator) CanHandle(rawURL string) bool {
	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	_, ok := v.extensions[ext]
	return ok
}

// Validate validates a direct file URL
func (v *DirectFileValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderDirectFile,
			URL:      rawURL,
			Error:    schemeErr,
		}
	}
	rawURL = parsed.String()

	base := path.Base(parsed.Path)
	ext := strings.ToLower(path.Ext(base))
	mediaType, ok := v.extensions[ext]
	if !ok {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderDirectFile,
			URL:      rawURL,
			Error:    "URL does not point to a recognized media file",
		}
	}

	title := strings.TrimSuffix(base, path.Ext(base))
	return ValidationResult{
		Valid:     true,
		Provider:  ProviderDirectFile,
		MediaID:   base,
		MediaType: mediaType,
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"title": title, "fileType": strings.TrimPrefix(ext, ".")},
	}
}
