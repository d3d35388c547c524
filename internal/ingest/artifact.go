package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/mediascribe/ingest/internal/errors"
	"github.com/mediascribe/ingest/internal/transcriber"
)

// writeArtifact persists the engine output as
// <source-basename>_transcript.json in dir and returns the artifact path.
// The document is the engine's fields wrapped with job identity and a write
// timestamp.
func writeArtifact(dir, jobID, url, mediaPath string, engine *transcriber.Result) (string, error) {
	doc := map[string]any{
		"jobId":    jobID,
		"url":      url,
		"filePath": mediaPath,
	}

	raw, err := json.Marshal(engine)
	if err != nil {
		return "", apperrors.InternalError("failed to encode transcript artifact").WithCause(err)
	}
	var engineFields map[string]any
	if err := json.Unmarshal(raw, &engineFields); err != nil {
		return "", apperrors.InternalError("failed to encode transcript artifact").WithCause(err)
	}
	for k, v := range engineFields {
		doc[k] = v
	}
	doc["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.StorageError("failed to create transcript directory").WithCause(err)
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	path := filepath.Join(dir, base+"_transcript.json")

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", apperrors.InternalError("failed to encode transcript artifact").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.StorageError("failed to write transcript artifact").WithCause(err)
	}
	return path, nil
}

// Some engines inline timestamps and speaker tags into the text, one span
// per line, like "[00:01:02.500 --> 00:01:05.000]  hello" or "[SPEAKER_00]:
// hi". bracketPrefix matches those leading tags.
var bracketPrefix = regexp.MustCompile(`^\s*(?:\[[^\]]*\]\s*:?\s*)+`)

// cleanTranscript renders engine text as plain prose: leading bracketed tags
// are stripped per line and blank lines dropped. Text without tags passes
// through unchanged apart from whitespace trimming.
func cleanTranscript(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(bracketPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
