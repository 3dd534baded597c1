package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/belfastbikes/belfastbikes/internal/api/middleware"
	"github.com/belfastbikes/belfastbikes/internal/offline"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/internal/telemetry"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Install the app shell and proxy requests through the cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "origin",
				Usage:    "Base URL of the Belfast Bikes server",
				EnvVars:  []string{"OFFLINE_ORIGIN"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address to listen on",
				EnvVars: []string{"OFFLINE_LISTEN"},
				Value:   ":8081",
			},
			&cli.StringFlag{
				Name:    "cache-name",
				Usage:   "Cache generation name; older generations are purged on start",
				EnvVars: []string{"OFFLINE_CACHE_NAME"},
				Value:   offline.DefaultCacheName,
			},
			dbFlag(),
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Per-request timeout towards the origin",
				EnvVars: []string{"UPSTREAM_TIMEOUT"},
				Value:   10 * time.Second,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	log := newLogger(c)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	metrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return err
	}

	fetcherCfg := offline.OriginClientConfig()
	fetcherCfg.Timeout = c.Duration("timeout")

	controller, err := offline.NewController(offline.Config{
		Origin:     c.String("origin"),
		CacheName:  c.String("cache-name"),
		Fetcher:    resilience.NewClient(fetcherCfg),
		APIFetcher: &http.Client{Timeout: c.Duration("timeout")},
		Store:      store,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	// A failed install keeps the previous generations so the app still
	// works offline from whatever was cached before.
	if err := controller.Install(ctx); err != nil {
		log.Warn().Err(err).Str("cache", controller.CacheName()).Msg("install failed, serving existing cache")
	} else {
		purged, err := controller.Activate(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("purging old caches")
		}
		log.Info().
			Str("cache", controller.CacheName()).
			Strs("purged", purged).
			Msg("cache activated")
	}

	handler := middleware.RequestID(middleware.Logger(log)(middleware.Recovery(log)(controller)))

	server := &http.Server{
		Addr:         c.String("listen"),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("origin", c.String("origin")).
			Msg("offline proxy listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down offline proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let pending cache writes land before the store closes.
	controller.Wait()

	log.Info().Msg("offline proxy stopped")
	return nil
}
