package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/belfastbikes/belfastbikes/internal/gbfs"
	"github.com/belfastbikes/belfastbikes/internal/telemetry"
)

// ErrUpstreamUnavailable is returned when either feed could not be fetched.
// Parse failures are returned as gbfs.ErrParse instead.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Debug sample bounds.
const (
	DefaultSampleSize = 5
	MaxSampleSize     = 100
)

// FeedReader reads the two GBFS feeds the aggregate is built from.
type FeedReader interface {
	StationInformation(ctx context.Context) ([]gbfs.StationInfo, error)
	StationStatus(ctx context.Context) ([]gbfs.StationStatus, error)
}

// ServiceConfig holds configuration for the station service.
type ServiceConfig struct {
	// Feeds is the upstream GBFS reader.
	Feeds FeedReader

	// VehicleTypes maps provider codes to output counters (default: Beryl codes).
	VehicleTypes *VehicleTypes

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service builds the merged station list. It holds no per-request state.
type Service struct {
	feeds  FeedReader
	types  VehicleTypes
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewService creates a new station service.
func NewService(cfg ServiceConfig) *Service {
	types := DefaultVehicleTypes()
	if cfg.VehicleTypes != nil {
		types = *cfg.VehicleTypes
	}

	return &Service{
		feeds:  cfg.Feeds,
		types:  types,
		tracer: telemetry.Tracer("github.com/belfastbikes/belfastbikes/internal/station"),
		logger: cfg.Logger,
	}
}

// Network fetches both feeds concurrently and returns the merged stations.
// It fails as a whole if either feed fails.
func (s *Service) Network(ctx context.Context) (*NetworkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "station.Network")
	defer span.End()

	var (
		infos    []gbfs.StationInfo
		statuses []gbfs.StationStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		infos, err = s.feeds.StationInformation(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		statuses, err = s.feeds.StationStatus(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetching feeds")
		s.logger.Error().Err(err).Msg("failed to fetch station feeds")
		return nil, classify(err)
	}

	stations := Merge(infos, statuses, s.types)
	span.SetAttributes(
		attribute.Int("station.info_count", len(infos)),
		attribute.Int("station.status_count", len(statuses)),
	)

	return &NetworkResponse{Network: Network{Stations: stations}}, nil
}

// StatusSample returns the first limit raw status records. limit is clamped
// to [1, MaxSampleSize]; zero or negative selects DefaultSampleSize.
func (s *Service) StatusSample(ctx context.Context, limit int) ([]gbfs.StationStatus, error) {
	switch {
	case limit <= 0:
		limit = DefaultSampleSize
	case limit > MaxSampleSize:
		limit = MaxSampleSize
	}

	statuses, err := s.feeds.StationStatus(ctx)
	if err != nil {
		return nil, classify(err)
	}

	if len(statuses) > limit {
		statuses = statuses[:limit]
	}
	return statuses, nil
}

func classify(err error) error {
	if errors.Is(err, gbfs.ErrParse) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}
