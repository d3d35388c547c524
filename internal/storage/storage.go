// Package storage archives ingest artifacts to S3-compatible object
// storage. Two interchangeable backends cover the common deployments:
// MinIO via minio-go and AWS S3 (or any S3 API) via aws-sdk-go-v2.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Backend names accepted by New.
const (
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Config holds the connection settings shared by both backends.
type Config struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PathStyle bool
}

// ArtifactStore uploads and manages ingest artifacts in a bucket.
type ArtifactStore interface {
	// UploadFile stores a local file under key.
	UploadFile(ctx context.Context, localPath, key, contentType string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// EnsureBucket creates the bucket if it does not exist.
	EnsureBucket(ctx context.Context) error
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// New builds the store for cfg.Backend.
func New(cfg *Config) (ArtifactStore, error) {
	switch cfg.Backend {
	case BackendMinio, "":
		return newMinioStore(cfg)
	case BackendS3:
		return newS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// TranscriptKey returns the bucket key for a job's transcript artifact.
func TranscriptKey(jobID string) string {
	return fmt.Sprintf("transcripts/%s.json", jobID)
}

// MediaKey returns the bucket key for a job's downloaded media, keeping the
// local file's extension.
func MediaKey(jobID, mediaPath string) string {
	return fmt.Sprintf("media/%s%s", jobID, filepath.Ext(mediaPath))
}

// MediaContentType maps a media file's extension to a content type. The
// table stays deterministic across platforms, unlike the host mime
// database, and covers the formats the extractor produces.
func MediaContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
