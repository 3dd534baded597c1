// Package main provides the offline caching proxy for the Belfast Bikes front end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/belfastbikes/belfastbikes/internal/offline"
)

func main() {
	app := &cli.App{
		Name:  "offline",
		Usage: "Serve the Belfast Bikes app through a versioned offline cache",
		Commands: []*cli.Command{
			serveCommand(),
			bucketsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dbFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db",
		Usage:   "SQLite cache file (in-memory cache when empty)",
		EnvVars: []string{"OFFLINE_DB"},
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "belfastbikes-offline").
		Logger()
}

// openStore opens the SQLite store at path, or a memory store when path is empty.
func openStore(ctx context.Context, path string) (offline.Store, error) {
	if path == "" {
		return offline.NewMemoryStore(), nil
	}
	store, err := offline.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	return store, nil
}
