package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 10*time.Minute, cfg.QueueVisibilityTimeout)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.GeneratorStepDelay)
	assert.Equal(t, 30*time.Second, cfg.LongPollTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, "/tmp/mediagen/artifacts", cfg.ArtifactDir)
	assert.Equal(t, "us-central1", cfg.VertexAIRegion)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "5m")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("LONG_POLL_TIMEOUT", "45s")
	t.Setenv("ARTIFACT_DIR", "/custom/artifacts")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "redis:6380", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5*time.Minute, cfg.QueueVisibilityTimeout)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 45*time.Second, cfg.LongPollTimeout)
	assert.Equal(t, "/custom/artifacts", cfg.ArtifactDir)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_CredentialDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIzaSy-env-key-0123456789")
	t.Setenv("OPENAI_API_KEY", "sk-env-key-0123456789abcdef")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "demo-project")
	t.Setenv("GCS_BUCKET", "demo-bucket")
	t.Setenv("XI_KEY", "el-env-key-0123456789abc")
	t.Setenv("GOOGLE_CLOUD_CREDENTIALS_JSON", `{"type":"service_account","project_id":"demo-project"}`)

	cfg, err := Load()
	require.NoError(t, err)

	defaults := cfg.CredentialDefaults()
	assert.Equal(t, "AIzaSy-env-key-0123456789", defaults.GeminiAPIKey)
	assert.Equal(t, "sk-env-key-0123456789abcdef", defaults.OpenAIAPIKey)
	assert.Equal(t, "demo-project", defaults.GoogleCloudProject)
	assert.Equal(t, "us-central1", defaults.VertexAIRegion)
	assert.Equal(t, "demo-bucket", defaults.GCSBucket)
	assert.Equal(t, "el-env-key-0123456789abc", defaults.ElevenLabsAPIKey)
	assert.NotEmpty(t, defaults.GoogleCloudCredentials)
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:             8080,
		RedisAddr:        "localhost:6379",
		RedisPassword:    "redis-secret",
		ArtifactDir:      "/tmp/test",
		S3Bucket:         "bucket",
		S3Region:         "region",
		GeminiAPIKey:     "AIzaSy-secret-key",
		ElevenLabsAPIKey: "el-secret-key",
		LogFormat:        "json",
		LogLevel:         "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "localhost:6379")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "redis-secret")
	assert.NotContains(t, str, "AIzaSy-secret-key")
	assert.NotContains(t, str, "el-secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
