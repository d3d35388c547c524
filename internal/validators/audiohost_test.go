package validators

import "testing"

func TestAudioHostValidator_CanHandle(t *testing.T) {
	v := NewAudioHostValidator()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"soundcloud.com", "https://soundcloud.com/artist/track", true},
		{"soundcloud short link", "https://on.soundcloud.com/AbCdE123", true},
		{"mobile soundcloud", "https://m.soundcloud.com/artist/track", true},
		{"bandcamp subdomain", "https://someartist.bandcamp.com/track/some-song", true},
		{"mixcloud", "https://www.mixcloud.com/dj/show-42/", true},

		{"youtube", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"plain site", "https://example.com/track.html", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.CanHandle(tt.url); got != tt.want {
				t.Errorf("CanHandle(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestAudioHostValidator_ValidateSoundCloud(t *testing.T) {
	v := NewAudioHostValidator()

	tests := []struct {
		name          string
		url           string
		wantValid     bool
		wantMediaID   string
		wantMediaType string
	}{
		{
			name:          "track URL",
			url:           "https://soundcloud.com/some-artist/some-track",
			wantValid:     true,
			wantMediaID:   "some-artist/some-track",
			wantMediaType: "track",
		},
		{
			name:          "artist page",
			url:           "https://soundcloud.com/some-artist",
			wantValid:     true,
			wantMediaID:   "some-artist",
			wantMediaType: "artist",
		},
		{
			name:          "playlist URL",
			url:           "https://soundcloud.com/some-artist/sets/my-playlist",
			wantValid:     true,
			wantMediaID:   "some-artist/sets/my-playlist",
			wantMediaType: "playlist",
		},
		{
			name:      "reserved page",
			url:       "https://soundcloud.com/discover",
			wantValid: false,
		},
		{
			name:      "empty path",
			url:       "https://soundcloud.com/",
			wantValid: false,
		},
		{
			name:      "playlist missing name",
			url:       "https://soundcloud.com/some-artist/sets",
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.url)

			if result.Valid != tt.wantValid {
				t.Fatalf("Validate(%q).Valid = %v, want %v (error: %s)", tt.url, result.Valid, tt.wantValid, result.Error)
			}
			if !tt.wantValid {
				if result.Error == "" {
					t.Error("invalid result should carry an error message")
				}
				return
			}
			if result.MediaID != tt.wantMediaID {
				t.Errorf("MediaID = %q, want %q", result.MediaID, tt.wantMediaID)
			}
			if result.MediaType != tt.wantMediaType {
				t.Errorf("MediaType = %q, want %q", result.MediaType, tt.wantMediaType)
			}
			if result.Provider != ProviderAudioHost {
				t.Errorf("Provider = %q, want %q", result.Provider, ProviderAudioHost)
			}
		})
	}
}

func TestAudioHostValidator_ValidateOtherHosts(t *testing.T) {
	v := NewAudioHostValidator()

	tests := []struct {
		name       string
		url        string
		wantValid  bool
		wantSource string
	}{
		{"bandcamp track", "https://someartist.bandcamp.com/track/some-song", true, "bandcamp"},
		{"mixcloud show", "https://www.mixcloud.com/dj/show-42/", true, "mixcloud"},
		{"bandcamp root", "https://someartist.bandcamp.com/", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.url)

			if result.Valid != tt.wantValid {
				t.Fatalf("Validate(%q).Valid = %v, want %v (error: %s)", tt.url, result.Valid, tt.wantValid, result.Error)
			}
			if !tt.wantValid {
				return
			}
			if got := result.Metadata["source"]; got != tt.wantSource {
				t.Errorf("Metadata[source] = %v, want %q", got, tt.wantSource)
			}
		})
	}
}
