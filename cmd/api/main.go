// Package main provides the entrypoint for the Belfast Bikes API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/belfastbikes/belfastbikes/internal/api"
	"github.com/belfastbikes/belfastbikes/internal/api/middleware"
	"github.com/belfastbikes/belfastbikes/internal/config"
	"github.com/belfastbikes/belfastbikes/internal/feedback"
	"github.com/belfastbikes/belfastbikes/internal/gbfs"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/internal/station"
	"github.com/belfastbikes/belfastbikes/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "belfastbikes-api"

	cfg := config.FromEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Environment).
		Msg("starting Belfast Bikes API")

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Upstream feeds
	registry := resilience.NewRegistry()
	feeds := gbfs.NewClient(gbfs.ClientConfig{
		BaseURL:  cfg.GBFS.BaseURL,
		Timeout:  cfg.GBFS.Timeout,
		Registry: registry,
		Metrics:  providerMetrics,
		Logger:   log,
	})

	stationService := station.NewService(station.ServiceConfig{
		Feeds: feeds,
		VehicleTypes: &station.VehicleTypes{
			Bike:    cfg.GBFS.BikeType,
			EBike:   cfg.GBFS.EBikeType,
			Scooter: cfg.GBFS.ScooterType,
		},
		Logger: log,
	})
	log.Info().
		Str("base_url", cfg.GBFS.BaseURL).
		Dur("timeout", cfg.GBFS.Timeout).
		Msg("station service initialized")

	// Feedback relay. Without credentials reports are only logged.
	feedbackCfg := feedback.ServiceConfig{
		From:   cfg.SMTP.Username,
		To:     cfg.SMTP.Recipient(),
		Logger: log,
	}
	if cfg.SMTP.Enabled() {
		feedbackCfg.Sender = feedback.NewSMTPSender(feedback.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
		log.Info().
			Str("smtp_host", cfg.SMTP.Host).
			Str("notify", cfg.SMTP.Recipient()).
			Msg("feedback email enabled")
	} else {
		log.Warn().Msg("GMAIL_USER/GMAIL_PASS not set - feedback will only be logged")
	}
	feedbackService := feedback.NewService(feedbackCfg)

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Stations:    stationService,
		Feedback:    feedbackService,
		Registry:    registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
