// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/pdtx/mediagen-api/internal/credentials"
)

// Config holds all configuration for the application. Secret values are
// excluded from JSON and from String().
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Redis settings. The shared store, the task queue, and the
	// cross-process event channel all use this instance.
	RedisAddr     string `env:"REDIS_ADDR, default=localhost:6379" json:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"`
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`

	// Queue settings
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT, default=10m" json:"queue_visibility_timeout"`

	// Worker settings
	WorkerCount        int           `env:"WORKER_COUNT, default=2" json:"worker_count"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL, default=1s" json:"worker_poll_interval"`
	GeneratorStepDelay time.Duration `env:"GENERATOR_STEP_DELAY, default=500ms" json:"generator_step_delay"`

	// Notification settings
	LongPollTimeout   time.Duration `env:"LONG_POLL_TIMEOUT, default=30s" json:"long_poll_timeout"`
	KeepAliveInterval time.Duration `env:"KEEP_ALIVE_INTERVAL, default=30s" json:"keep_alive_interval"`

	// Storage settings
	ArtifactDir string `env:"ARTIFACT_DIR, default=/tmp/mediagen/artifacts" json:"artifact_dir"`

	// Optional S3 settings for artifact delivery
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"`

	// Credential defaults used when a request supplies none of its own.
	// All of these are secrets or secret-adjacent and never serialized.
	GeminiAPIKey           string `env:"GEMINI_API_KEY" json:"-"`
	OpenAIAPIKey           string `env:"OPENAI_API_KEY" json:"-"`
	GoogleCloudProject     string `env:"GOOGLE_CLOUD_PROJECT" json:"-"`
	VertexAIRegion         string `env:"VERTEX_AI_REGION, default=us-central1" json:"vertex_ai_region"`
	GCSBucket              string `env:"GCS_BUCKET" json:"-"`
	ElevenLabsAPIKey       string `env:"XI_KEY" json:"-"`
	GoogleCloudCredentials string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON" json:"-"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// CredentialDefaults returns the environment-derived credential
// defaults for the resolver.
func (c *Config) CredentialDefaults() credentials.Defaults {
	d := credentials.Defaults{
		GeminiAPIKey:       c.GeminiAPIKey,
		OpenAIAPIKey:       c.OpenAIAPIKey,
		GoogleCloudProject: c.GoogleCloudProject,
		VertexAIRegion:     c.VertexAIRegion,
		GCSBucket:          c.GCSBucket,
		ElevenLabsAPIKey:   c.ElevenLabsAPIKey,
	}
	if c.GoogleCloudCredentials != "" {
		d.GoogleCloudCredentials = json.RawMessage(c.GoogleCloudCredentials)
	}
	return d
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, RedisAddr: %s, RedisDB: %d, WorkerCount: %d, QueueVisibilityTimeout: %s, LongPollTimeout: %s, KeepAliveInterval: %s, ArtifactDir: %s, S3Bucket: %s, S3Region: %s, VertexAIRegion: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.RedisAddr,
		c.RedisDB,
		c.WorkerCount,
		c.QueueVisibilityTimeout,
		c.LongPollTimeout,
		c.KeepAliveInterval,
		c.ArtifactDir,
		c.S3Bucket,
		c.S3Region,
		c.VertexAIRegion,
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
