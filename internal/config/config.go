// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default values.
const (
	DefaultPort            = "3000"
	DefaultGBFSBaseURL     = "https://gbfs.beryl.cc/v2_2/Belfast"
	DefaultBikeType        = "beryl_bike"
	DefaultEBikeType       = "bbe"
	DefaultScooterType     = "scooter"
	DefaultUpstreamTimeout = 10 * time.Second
	DefaultSMTPHost        = "smtp.gmail.com"
	DefaultSMTPPort        = 587
	DefaultOTLPEndpoint    = "localhost:4317"
)

// Config holds the API server configuration.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	GBFS      GBFSConfig
	SMTP      SMTPConfig
	Telemetry TelemetryConfig
}

// GBFSConfig describes the upstream feed and how its vehicle types map to the output.
type GBFSConfig struct {
	BaseURL string
	Timeout time.Duration

	// Vehicle type codes are provider specific.
	BikeType    string
	EBikeType   string
	ScooterType string
}

// SMTPConfig holds the mail relay settings for feedback.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	NotifyTo string
}

// Enabled reports whether credentials are present.
func (c SMTPConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

// Recipient returns the notification address, falling back to the sender.
func (c SMTPConfig) Recipient() string {
	if c.NotifyTo != "" {
		return c.NotifyTo
	}
	return c.Username
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	timeout, err := time.ParseDuration(getEnvOrDefault("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout.String()))
	if err != nil || timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	smtpPort, err := strconv.Atoi(getEnvOrDefault("SMTP_PORT", strconv.Itoa(DefaultSMTPPort)))
	if err != nil {
		smtpPort = DefaultSMTPPort
	}

	return Config{
		Port:        getEnvOrDefault("APP_PORT", DefaultPort),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		GBFS: GBFSConfig{
			BaseURL:     strings.TrimRight(getEnvOrDefault("GBFS_BASE_URL", DefaultGBFSBaseURL), "/"),
			Timeout:     timeout,
			BikeType:    getEnvOrDefault("GBFS_BIKE_TYPE", DefaultBikeType),
			EBikeType:   getEnvOrDefault("GBFS_EBIKE_TYPE", DefaultEBikeType),
			ScooterType: getEnvOrDefault("GBFS_SCOOTER_TYPE", DefaultScooterType),
		},
		SMTP: SMTPConfig{
			Host:     getEnvOrDefault("SMTP_HOST", DefaultSMTPHost),
			Port:     smtpPort,
			Username: os.Getenv("GMAIL_USER"),
			Password: os.Getenv("GMAIL_PASS"),
			NotifyTo: os.Getenv("NOTIFY_EMAIL"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
