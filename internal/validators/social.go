package validators

import (
	"strings"
)

// SocialVideoValidator validates URLs for social media platforms that embed
// video (TikTok, X/Twitter, Instagram, Reddit). These route to the
// external-extractor download strategy.
type SocialVideoValidator struct{}

// NewSocialVideoValidator creates a new social-video URL validator
func NewSocialVideoValidator() *SocialVideoValidator {
	return &SocialVideoValidator{}
}

// Provider returns the provider category for this validator
func (v *SocialVideoValidator) Provider() Provider {
	return ProviderSocialVideo
}

// CanHandle returns true if the URL belongs to a known social platform
func (v *SocialVideoValidator) CanHandle(rawURL string) bool {
	host := normalizedHost(rawURL)
	if host == "" {
		return false
	}

	switch host {
	case "tiktok.com", "vm.tiktok.com",
		"twitter.com", "x.com",
		"instagram.com",
		"reddit.com", "old.reddit.com", "v.redd.it",
		"facebook.com", "fb.watch":
		return true
	}
	return false
}

// Validate validates a social media URL. Post-level media IDs vary too much
// between platforms to validate structurally, so any non-empty path on a
// recognized host passes and the extractor resolves the rest.
func (v *SocialVideoValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderSocialVideo,
			URL:      rawURL,
			Error:    schemeErr,
		}
	}
	rawURL = parsed.String()

	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderSocialVideo,
			URL:      rawURL,
			Error:    "URL does not point to a post",
		}
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	source := strings.SplitN(host, ".", 2)[0]
	if host == "x.com" {
		source = "twitter"
	} else if host == "v.redd.it" || host == "old.reddit.com" {
		source = "reddit"
	} else if host == "fb.watch" {
		source = "facebook"
	} else if host == "vm.tiktok.com" {
		source = "tiktok"
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderSocialVideo,
		MediaID:   segments[len(segments)-1],
		MediaType: "post",
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"source": source},
	}
}
