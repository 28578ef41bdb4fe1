package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bnema/transcoder/internal/domain"
)

const defaultProberOptions = "-v quiet -print_format json -show_format -show_streams"

type Config struct {
	Port      int
	DataDir   string
	MediaRoot string
	LockDir   string
	LogLevel  string

	Transcoder Transcoder

	LockHeartbeat  time.Duration
	LockStaleAfter time.Duration
	ReapInterval   time.Duration
	JobRetention   time.Duration

	APIKeyHash  string
	BehindProxy bool

	S3 S3
}

// Transcoder is the subset handed to the transcoding service.
type Transcoder struct {
	EncoderPath             string
	ProberPath              string
	ProberOptions           string
	OutputDir               string
	OutputURL               string
	DefaultVideoOptions     domain.Options
	DefaultThumbnailOptions domain.Options
}

type S3 struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func (s S3) Enabled() bool {
	return s.Bucket != ""
}

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "7890"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	heartbeat, err := getDuration("LOCK_HEARTBEAT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	staleAfter, err := getDuration("LOCK_STALE_AFTER", 60*time.Second)
	if err != nil {
		return nil, err
	}
	if staleAfter <= heartbeat {
		return nil, fmt.Errorf("LOCK_STALE_AFTER (%s) must exceed LOCK_HEARTBEAT (%s)", staleAfter, heartbeat)
	}
	reapInterval, err := getDuration("REAP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	retention, err := getDuration("JOB_RETENTION", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	videoDefaults, err := getOptions("DEFAULT_VIDEO_OPTIONS")
	if err != nil {
		return nil, err
	}
	thumbDefaults, err := getOptions("DEFAULT_THUMBNAIL_OPTIONS")
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DATA_DIR", "/data")

	return &Config{
		Port:      port,
		DataDir:   dataDir,
		MediaRoot: getEnv("MEDIA_ROOT", filepath.Join(dataDir, "media")),
		LockDir:   getEnv("LOCK_DIR", os.TempDir()),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Transcoder: Transcoder{
			EncoderPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
			ProberPath:              getEnv("FFPROBE_PATH", "ffprobe"),
			ProberOptions:           getEnv("FFPROBE_OPTIONS", defaultProberOptions),
			OutputDir:               getEnv("OUTPUT_DIR", filepath.Join(dataDir, "derivatives")),
			OutputURL:               getEnv("OUTPUT_URL", "/derivatives/"),
			DefaultVideoOptions:     videoDefaults,
			DefaultThumbnailOptions: thumbDefaults,
		},
		LockHeartbeat:  heartbeat,
		LockStaleAfter: staleAfter,
		ReapInterval:   reapInterval,
		JobRetention:   retention,
		APIKeyHash:     os.Getenv("API_KEY_HASH"),
		BehindProxy:    getEnv("BEHIND_PROXY", "false") == "true",
		S3: S3{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Prefix:    os.Getenv("S3_PREFIX"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// getOptions parses a JSON object of default options. Unset means no
// defaults are configured for that kind.
func getOptions(key string) (domain.Options, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	opts, err := domain.ParseOptions([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return opts, nil
}
