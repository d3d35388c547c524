package validators

import "sync"

// Registry manages URL validators. Dispatch order follows registration order,
// so narrower validators must be registered before heuristic ones.
type Registry struct {
	mu         sync.RWMutex
	validators []Validator
}

// NewRegistry creates a new validator registry
func NewRegistry() *Registry {
	return &Registry{
		validators: make([]Validator, 0),
	}
}

// Register adds a validator to the registry
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Validate finds the appropriate validator and validates the URL
func (r *Registry) Validate(url string) ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.validators {
		if v.CanHandle(url) {
			return v.Validate(url)
		}
	}

	return ValidationResult{
		Valid:    false,
		Provider: ProviderUnknown,
		URL:      url,
		Error:    "unsupported URL format",
	}
}

// GetSupportedProviders returns all provider categories registered in the registry
func (r *Registry) GetSupportedProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Provider]bool, len(r.validators))
	providers := make([]Provider, 0, len(r.validators))
	for _, v := range r.validators {
		if seen[v.Provider()] {
			continue
		}
		seen[v.Provider()] = true
		providers = append(providers, v.Provider())
	}
	return providers
}

// DefaultRegistry creates a registry with all built-in validators
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewStreamingVideoValidator())
	r.Register(NewAudioHostValidator())
	r.Register(NewSocialVideoValidator())
	r.Register(NewDirectFileValidator())
	r.Register(NewPodcastFeedValidator())
	return r
}
