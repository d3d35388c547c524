package validators

import (
	"path"
	"strings"
)

// PodcastFeedValidator validates URLs that look like podcast RSS/Atom feeds.
// Feed enclosures are plain HTTP resources, so these route to the direct-HTTP
// download strategy.
type PodcastFeedValidator struct{}

// NewPodcastFeedValidator creates a new podcast-feed URL validator
func NewPodcastFeedValidator() *PodcastFeedValidator {
	return &PodcastFeedValidator{}
}

// Provider returns the provider category for this validator
func (v *PodcastFeedValidator) Provider() Provider {
	return ProviderPodcastFeed
}

// CanHandle returns true if the URL looks like a feed. Registered after the
// host-specific validators, so this heuristic only sees leftovers.
func (v *PodcastFeedValidator) CanHandle(rawURL string) bool {
	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return false
	}

	lowerPath := strings.ToLower(parsed.Path)
	ext := path.Ext(lowerPath)
	if ext == ".rss" || ext == ".xml" || ext == ".atom" {
		return true
	}

	for _, marker := range []string{"/feed", "/rss", "/podcast"} {
		if strings.Contains(lowerPath, marker) {
			return true
		}
	}

	host := strings.ToLower(parsed.Host)
	return strings.HasPrefix(host, "feeds.") || strings.HasPrefix(host, "feed.")
}

// Validate validates a podcast feed URL
func (v *PodcastFeedValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderPodcastFeed,
			URL:      rawURL,
			Error:    schemeErr,
		}
	}
	rawURL = parsed.String()

	if parsed.Host == "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderPodcastFeed,
			URL:      rawURL,
			Error:    "invalid URL format",
		}
	}

	segments := splitPath(parsed.Path)
	mediaID := parsed.Host
	if len(segments) > 0 {
		mediaID = segments[len(segments)-1]
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderPodcastFeed,
		MediaID:   mediaID,
		MediaType: "feed",
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"source": parsed.Host},
	}
}
