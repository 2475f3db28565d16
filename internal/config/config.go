// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidFrameRate is returned when FRAME_RATE is not positive.
	ErrInvalidFrameRate = errors.New("config: FRAME_RATE must be positive")
	// ErrInvalidJPEGQuality is returned when JPEG_QUALITY is outside 1-100.
	ErrInvalidJPEGQuality = errors.New("config: JPEG_QUALITY must be between 1 and 100")
	// ErrInvalidDisposal is returned when DISPOSAL is not "trash" or "delete".
	ErrInvalidDisposal = errors.New(`config: DISPOSAL must be "trash" or "delete"`)
	// ErrInvalidMaxConcurrentJobs is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrInvalidMaxConcurrentJobs = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
)

// Disposal modes for derived images.
const (
	DisposalTrash  = "trash"
	DisposalDelete = "delete"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Host              string   `env:"HOST, default=127.0.0.1" json:"host"`
	Port              int      `env:"PORT, default=8080" json:"port"`
	MaxConcurrentJobs int      `env:"MAX_CONCURRENT_JOBS, default=1" json:"max_concurrent_jobs"`
	AllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" json:"cors_allowed_origins,omitempty"` // comma separated; empty disables CORS

	// Encoder settings
	FFmpegPath         string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath        string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	VideoCodec         string `env:"VIDEO_CODEC, default=hevc_nvenc" json:"video_codec"`
	FallbackVideoCodec string `env:"FALLBACK_VIDEO_CODEC, default=libx264" json:"fallback_video_codec"`
	AudioCodec         string `env:"AUDIO_CODEC, default=aac" json:"audio_codec"`
	FrameRate          int    `env:"FRAME_RATE, default=1" json:"frame_rate"`

	// Image conversion settings
	JPEGQuality int    `env:"JPEG_QUALITY, default=95" json:"jpeg_quality"`
	ScratchDir  string `env:"SCRATCH_DIR" json:"scratch_dir,omitempty"` // empty: beside the source image

	// Cleanup settings
	Disposal string `env:"DISPOSAL, default=trash" json:"disposal"` // "trash" or "delete"
	TrashDir string `env:"TRASH_DIR" json:"trash_dir,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return ErrInvalidJPEGQuality
	}
	switch strings.ToLower(c.Disposal) {
	case DisposalTrash, DisposalDelete:
	default:
		return ErrInvalidDisposal
	}
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidMaxConcurrentJobs
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// Logs go to stderr so that diagnostics never mix with command output.
// When LogFormat is "json", it outputs JSON logs; otherwise human-readable text.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, VideoCodec: %s, FallbackVideoCodec: %s, FrameRate: %d, JPEGQuality: %d, Disposal: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.VideoCodec,
		c.FallbackVideoCodec,
		c.FrameRate,
		c.JPEGQuality,
		c.Disposal,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
