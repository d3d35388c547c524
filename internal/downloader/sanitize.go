package downloader

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 200

// asciiFold strips diacritics so filenames survive filesystems and tooling
// with poor unicode handling.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeFilename makes a string safe to use as a single path component.
func SanitizeFilename(name string) string {
	if folded, _, err := transform.String(asciiFold, name); err == nil {
		name = folded
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(strings.TrimSpace(b.String()), ".")
	if cleaned == "" {
		return "download"
	}
	if len(cleaned) > maxFilenameLength {
		cleaned = cleaned[:maxFilenameLength]
	}
	return cleaned
}
