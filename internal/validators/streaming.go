package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// StreamingVideoValidator validates URLs for general-purpose streaming video
// sites (YouTube, Vimeo, Twitch, Dailymotion). These all route to the
// external-extractor download strategy.
type StreamingVideoValidator struct {
	// videoIDPattern matches YouTube video IDs (11 characters, alphanumeric with - and _)
	videoIDPattern *regexp.Regexp
	// numericIDPattern matches Vimeo/Dailymotion style numeric or short IDs
	numericIDPattern *regexp.Regexp
}

// NewStreamingVideoValidator creates a new streaming-video URL validator
func NewStreamingVideoValidator() *StreamingVideoValidator {
	return &StreamingVideoValidator{
		videoIDPattern:   regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`),
		numericIDPattern: regexp.MustCompile(`^[a-zA-Z0-9]+$`),
	}
}

// Provider returns the provider category for this validator
func (v *StreamingVideoValidator) Provider() Provider {
	return ProviderStreamingVideo
}

// CanHandle returns true if the URL belongs to a known streaming video host
func (v *StreamingVideoValidator) CanHandle(rawURL string) bool {
	host := normalizedHost(rawURL)
	if host == "" {
		return false
	}

	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com",
		"vimeo.com", "player.vimeo.com",
		"twitch.tv", "clips.twitch.tv",
		"dailymotion.com", "dai.ly":
		return true
	}
	return false
}

// Validate validates a streaming video URL and extracts the media ID
func (v *StreamingVideoValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, schemeErr := parseHTTPURL(rawURL)
	if schemeErr != "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			Error:    schemeErr,
		}
	}
	rawURL = parsed.String()

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com":
		return v.validateYouTube(rawURL, host, parsed)
	case "vimeo.com", "player.vimeo.com", "dailymotion.com", "dai.ly":
		return v.validateByPathID(rawURL, host, parsed)
	case "twitch.tv", "clips.twitch.tv":
		return v.validateTwitch(rawURL, parsed)
	default:
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			Error:    "not a supported streaming video URL",
		}
	}
}

// validateYouTube extracts and checks YouTube video IDs
func (v *StreamingVideoValidator) validateYouTube(rawURL, host string, parsed *url.URL) ValidationResult {
	var videoID string
	var mediaType string

	if host == "youtu.be" {
		// Short URL format: youtu.be/VIDEO_ID
		videoID = strings.TrimPrefix(parsed.Path, "/")
		mediaType = "video"
	} else {
		videoID, mediaType = v.extractFromYouTubeCom(parsed)
	}

	if videoID == "" {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			Error:    "could not extract video ID from URL",
		}
	}

	if !v.videoIDPattern.MatchString(videoID) {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			MediaID:  videoID,
			Error:    "invalid video ID format",
		}
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderStreamingVideo,
		MediaID:   videoID,
		MediaType: mediaType,
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID),
		Metadata:  map[string]any{"source": "youtube", "mediaId": videoID},
	}
}

// extractFromYouTubeCom extracts video ID from youtube.com URLs
func (v *StreamingVideoValidator) extractFromYouTubeCom(parsed *url.URL) (videoID, mediaType string) {
	path := parsed.Path
	query := parsed.Query()

	switch {
	case strings.HasPrefix(path, "/watch"):
		// Standard watch URL: /watch?v=VIDEO_ID
		videoID = query.Get("v")
		mediaType = "video"

	case strings.HasPrefix(path, "/shorts/"):
		videoID = strings.TrimPrefix(path, "/shorts/")
		mediaType = "short"

	case strings.HasPrefix(path, "/embed/"):
		videoID = strings.TrimPrefix(path, "/embed/")
		mediaType = "video"

	case strings.HasPrefix(path, "/v/"):
		// Old embed format: /v/VIDEO_ID
		videoID = strings.TrimPrefix(path, "/v/")
		mediaType = "video"

	case strings.HasPrefix(path, "/live/"):
		videoID = strings.TrimPrefix(path, "/live/")
		mediaType = "live"
	}

	// Clean up video ID (remove any trailing path segments or query params)
	if idx := strings.Index(videoID, "/"); idx != -1 {
		videoID = videoID[:idx]
	}
	if idx := strings.Index(videoID, "?"); idx != -1 {
		videoID = videoID[:idx]
	}

	return videoID, mediaType
}

// validateByPathID handles hosts whose media ID is the last path segment
// (Vimeo, Dailymotion)
func (v *StreamingVideoValidator) validateByPathID(rawURL, host string, parsed *url.URL) ValidationResult {
	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			Error:    "URL path is empty",
		}
	}

	mediaID := segments[len(segments)-1]
	if !v.numericIDPattern.MatchString(mediaID) {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			MediaID:  mediaID,
			Error:    "invalid media ID format",
		}
	}

	source := strings.SplitN(host, ".", 2)[0]
	return ValidationResult{
		Valid:     true,
		Provider:  ProviderStreamingVideo,
		MediaID:   mediaID,
		MediaType: "video",
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"source": source, "mediaId": mediaID},
	}
}

// validateTwitch handles twitch.tv video and clip URLs
func (v *StreamingVideoValidator) validateTwitch(rawURL string, parsed *url.URL) ValidationResult {
	segments := splitPath(parsed.Path)
	if len(segments) == 0 {
		return ValidationResult{
			Valid:    false,
			Provider: ProviderStreamingVideo,
			URL:      rawURL,
			Error:    "URL path is empty",
		}
	}

	mediaType := "stream"
	mediaID := segments[0]

	// VODs: /videos/123456; channel clips: /<channel>/clip/<slug>
	if segments[0] == "videos" && len(segments) > 1 {
		mediaType = "video"
		mediaID = segments[1]
	} else if len(segments) >= 3 && segments[1] == "clip" {
		mediaType = "clip"
		mediaID = segments[2]
	}

	return ValidationResult{
		Valid:     true,
		Provider:  ProviderStreamingVideo,
		MediaID:   mediaID,
		MediaType: mediaType,
		URL:       rawURL,
		Canonical: rawURL,
		Metadata:  map[string]any{"source": "twitch", "mediaId": mediaID},
	}
}
