package validators

// Provider identifies the category of source a URL belongs to. The download
// layer selects its strategy from this value.
type Provider string

const (
	ProviderStreamingVideo Provider = "streaming-video"
	ProviderAudioHost      Provider = "generic-audio-host"
	ProviderSocialVideo    Provider = "social-media-video"
	ProviderDirectFile     Provider = "direct-file"
	ProviderPodcastFeed    Provider = "podcast-feed"
	ProviderUnknown        Provider = "unknown"
)

// ValidationResult contains the result of URL validation
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Provider  Provider       `json:"provider"`
	MediaID   string         `json:"media_id,omitempty"`
	MediaType string         `json:"media_type,omitempty"` // e.g., "video", "track", "episode", "file"
	URL       string         `json:"url"`
	Canonical string         `json:"canonical_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Validator defines the interface for URL validators
type Validator interface {
	// Provider returns the provider category this validator handles
	Provider() Provider

	// CanHandle returns true if this validator can handle the given URL
	CanHandle(url string) bool

	// Validate validates the URL and extracts relevant information
	Validate(url string) ValidationResult
}
