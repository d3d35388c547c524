package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr     string
	LogLevel       string
	AllowedOrigins string

	// Pipeline directories
	DownloadDir   string
	TranscriptDir string
	ExtractorDir  string

	// Extractor behavior
	ExtractorTimeout time.Duration
	BrowserCookies   string

	// Ingest concurrency
	MaxConcurrentIngests int
	DirectMaxRetries     int

	// Optional event relay
	RedisURL string

	// Optional transcription backend
	WhisperURL string

	// Optional artifact store (MinIO/S3)
	StorageBackend     string
	StorageEndpoint    string
	StorageAccessKey   string
	StorageSecretKey   string
	StorageBucket      string
	StorageRegion      string
	StorageUseSSL      bool
	StoragePathStyle   bool
	StorageUploadMedia bool
}

func Load() *Config {
	dataDir := getEnvOrDefault("DATA_DIR", defaultDataDir())

	maxIngests, _ := strconv.Atoi(getEnvOrDefault("MAX_CONCURRENT_INGESTS", "3"))
	if maxIngests <= 0 {
		maxIngests = 3
	}

	directRetries, _ := strconv.Atoi(getEnvOrDefault("DIRECT_MAX_RETRIES", "3"))
	if directRetries < 0 {
		directRetries = 3
	}

	extractorTimeout := parseDurationOrDefault("EXTRACTOR_TIMEOUT", 2*time.Hour)

	storageUseSSL, _ := strconv.ParseBool(getEnvOrDefault("STORAGE_USE_SSL", "false"))
	storagePathStyle, _ := strconv.ParseBool(getEnvOrDefault("STORAGE_PATH_STYLE", "true"))
	storageUploadMedia, _ := strconv.ParseBool(getEnvOrDefault("STORAGE_UPLOAD_MEDIA", "false"))

	return &Config{
		ServerAddr:     getEnvOrDefault("SERVER_ADDR", ":8080"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvOrDefault("ALLOWED_ORIGINS", "*"),

		DownloadDir:   getEnvOrDefault("DOWNLOAD_DIR", filepath.Join(dataDir, "downloads")),
		TranscriptDir: getEnvOrDefault("TRANSCRIPT_DIR", filepath.Join(dataDir, "transcripts")),
		ExtractorDir:  getEnvOrDefault("EXTRACTOR_DIR", filepath.Join(dataDir, "bin")),

		ExtractorTimeout: extractorTimeout,
		BrowserCookies:   getEnvOrDefault("EXTRACTOR_BROWSER_COOKIES", ""),

		MaxConcurrentIngests: maxIngests,
		DirectMaxRetries:     directRetries,

		RedisURL:   getEnvOrDefault("REDIS_URL", ""),
		WhisperURL: getEnvOrDefault("WHISPER_URL", ""),

		StorageBackend:     getEnvOrDefault("STORAGE_BACKEND", "minio"),
		StorageEndpoint:    getEnvOrDefault("STORAGE_ENDPOINT", ""),
		StorageAccessKey:   getEnvOrDefault("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:   getEnvOrDefault("STORAGE_SECRET_KEY", ""),
		StorageBucket:      getEnvOrDefault("STORAGE_BUCKET", "ingest-artifacts"),
		StorageRegion:      getEnvOrDefault("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:      storageUseSSL,
		StoragePathStyle:   storagePathStyle,
		StorageUploadMedia: storageUploadMedia,
	}
}

// defaultDataDir resolves the per-user data directory the pipeline writes
// under when no explicit override is set.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mediascribe"
	}
	return filepath.Join(home, ".mediascribe")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationOrDefault reads a Go duration string from the environment.
// A value of "0" disables the timeout entirely.
func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	if d < 0 {
		return defaultValue
	}
	return d
}
