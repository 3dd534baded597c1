package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/belfastbikes/belfastbikes/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_PORT", "APP_ENV", "LOG_LEVEL", "GBFS_BASE_URL", "UPSTREAM_TIMEOUT",
		"GBFS_BIKE_TYPE", "GBFS_EBIKE_TYPE", "GBFS_SCOOTER_TYPE",
		"SMTP_HOST", "SMTP_PORT", "GMAIL_USER", "GMAIL_PASS", "NOTIFY_EMAIL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := config.FromEnv()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, config.DefaultGBFSBaseURL, cfg.GBFS.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.GBFS.Timeout)
	assert.Equal(t, "beryl_bike", cfg.GBFS.BikeType)
	assert.Equal(t, "bbe", cfg.GBFS.EBikeType)
	assert.Equal(t, "scooter", cfg.GBFS.ScooterType)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("GBFS_BASE_URL", "https://example.test/gbfs/")
	t.Setenv("UPSTREAM_TIMEOUT", "2s")
	t.Setenv("GBFS_EBIKE_TYPE", "ebike")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("GMAIL_USER", "bikes@example.com")
	t.Setenv("GMAIL_PASS", "secret")
	t.Setenv("NOTIFY_EMAIL", "")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := config.FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://example.test/gbfs", cfg.GBFS.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.GBFS.Timeout)
	assert.Equal(t, "ebike", cfg.GBFS.EBikeType)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, "bikes@example.com", cfg.SMTP.Recipient())
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	t.Setenv("SMTP_PORT", "smtp")

	cfg := config.FromEnv()

	assert.Equal(t, config.DefaultUpstreamTimeout, cfg.GBFS.Timeout)
	assert.Equal(t, config.DefaultSMTPPort, cfg.SMTP.Port)
}

func TestSMTPConfig_Recipient(t *testing.T) {
	cfg := config.SMTPConfig{Username: "from@example.com", NotifyTo: "ops@example.com"}
	assert.Equal(t, "ops@example.com", cfg.Recipient())
}
