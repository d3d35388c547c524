package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// AudioHostValidator validates URLs for generic audio hosting sites
// (SoundCloud, Bandcamp, Mixcloud). These route to the external-extractor
// download strategy.
type AudioHostValidator struct {
	// usernamePattern matches valid artist/user slugs
	usernamePattern *regexp.Regexp
	// trackSlugPattern matches valid track/set slugs
	trackSlugPattern *regexp.Regexp
}

// NewAudioHostValidator creates a new audio-host URL validator
func NewAudioHostValidator() *AudioHostValidator {
	return &AudioHostValidator{
		usernamePattern:  regexp.MustCompile(`^[a-zA-Z0-9_-]{3,25}$`),
		trackSlugPattern: regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
	}
}

// Provider returns the provider category for this validator
func (v *AudioHostValidator) Provider() Provider {
	return ProviderAudioHost
}

// CanHandle returns true if the URL belongs to a known audio host
func (v *AudioHostValidator) CanHandle(rawURL string) bool {
	host := normalizedHost(rawURL)
	if host == "" {
		return false
	}

	switch host {
	case "soundcloud.com", "on.soundcloud.com", "api.soundcloud.com",
		"mixcloud.com":
		return true
	}
	return strings.HasSuffix(host, ".bandcamp.com")
}

// Validate validates an audio host URL and extracts relevant information
func (v *AudioHostValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    schemeErr,
		}
	}
	rawURL = parsed.String()

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "soundcloud.com":
		return v.validateSoundCloud(rawURL, parsed)
	case host == "on.soundcloud.com":
		return v.validateShortURL(rawURL, parsed)
	case host == "api.soundcloud.com" || host == "mixcloud.com" || strings.HasSuffix(host, ".bandcamp.com"):
		return v.validateGenericHost(rawURL, host, parsed)
	default:
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "not a supported audio host URL",
		}
	}
}

// validateSoundCloud validates soundcloud.com track and artist URLs
func (v *AudioHostValidator) validateSoundCloud(rawURL string, parsed *url.URL) ValidationResult {
	segments := splitPath(parsed.Path)

	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "URL path is empty",
		}
	}

	// Reserved pages are not downloadable media
	reservedPaths := map[string]bool{
		"discover": true,
		"stream":   true,
		"you":      true,
		"search":   true,
		"upload":   true,
		"charts":   true,
	}
	if reservedPaths[segments[0]] {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "URL points to a reserved page, not a track or artist",
		}
	}

	username := segments[0]
	if !v.usernamePattern.MatchString(username) {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "invalid artist slug format",
		}
	}

	if len(segments) == 1 {
		return ValidationResult{
			Valid:     true,
			Provider:  ProviderAudioHost,
			MediaID:   username,
			MediaType: "artist",
			URL:       rawURL,
			Canonical: fmt.Sprintf("https://soundcloud.com/%s", username),
			Metadata:  map[string]any{"source": "soundcloud", "author": username},
		}
	}

	if segments[1] == "sets" {
		if len(segments) < 3 || !v.trackSlugPattern.MatchString(segments[2]) {
			return ValidationResult{
				Valid:    false,
				Provider: ProviderAudioHost,
				URL:      rawURL,
				Error:    "invalid playlist URL",
			}
		}
		return ValidationResult{
			Valid:     true,
			Provider:  ProviderAudioHost,
			MediaID:   fmt.Sprintf("%s/sets/%s", username, segments[2]),
			MediaType: "playlist",
			URL:       rawURL,
			Canonical: fmt.Sprintf("https://soundcloud.com/%s/sets/%s", username, segments[2]),
			Metadata:  map[string]any{"source": "soundcloud", "author": username},
		}
	}

	trackSlug := segments[1]
	if !v.trackSlugPattern.MatchString(trackSlug) {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "invalid track slug format",
		}
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderAudioHost,
		MediaID:   fmt.Sprintf("%s/%s", username, trackSlug),
		MediaType: "track",
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://soundcloud.com/%s/%s", username, trackSlug),
		Metadata:  map[string]any{"source": "soundcloud", "author": username},
	}
}

// validateShortURL validates on.soundcloud.com short links
func (v *AudioHostValidator) validateShortURL(rawURL string, parsed *url.URL) ValidationResult {
	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "short URL missing code",
		}
	}

	shortCode := segments[0]
	if len(shortCode) < 5 || len(shortCode) > 20 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "invalid short URL code format",
		}
	}

	// Short links resolve at download time; the code stands in for the ID
	return ValidationResult{
		Valid:     true,
		Provider:  ProviderAudioHost,
		MediaID:   shortCode,
		MediaType: "short_url",
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://on.soundcloud.com/%s", shortCode),
		Metadata:  map[string]any{"source": "soundcloud"},
	}
}

// validateGenericHost accepts any non-empty path on the remaining audio hosts
// and leaves precise resolution to the extractor
func (v *AudioHostValidator) validateGenericHost(rawURL, host string, parsed *url.URL) ValidationResult {
	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderAudioHost,
			URL:      rawURL,
			Error:    "URL path is empty",
		}
	}

	source := host
	if strings.HasSuffix(host, ".bandcamp.com") {
		source = "bandcamp"
	} else if host == "mixcloud.com" {
		source = "mixcloud"
	} else {
		source = "soundcloud"
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderAudioHost,
		MediaID:   strings.Join(segments, "/"),
		MediaType: "track",
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"source": source},
	}
}

// normalizedHost parses a URL and returns its lowercased host with the usual
// www./m. prefixes stripped. Scheme-less input is retried with https.
func normalizedHost(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Host)
	if host == "" && parsed.Scheme == "" {
		if reparsed, err2 := url.Parse("https://" + trimmed); err2 == nil {
			host = strings.ToLower(reparsed.Host)
		}
	}

	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host
}

// parseHTTPURL parses a URL, defaulting a missing scheme to https and
// rejecting non-HTTP schemes. The second return value is an error message,
// empty on success.
func parseHTTPURL(rawURL string) (*url.URL, string) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, "invalid URL format"
	}

	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil || parsed.Host == "" {
			return nil, "invalid URL format"
		}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "invalid URL scheme"
	}

	return parsed, ""
}

// splitPath splits a URL path into non-empty segments
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
