package gbfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/internal/telemetry"
)

const (
	// ProviderName identifies this provider in metrics.
	ProviderName = "gbfs"

	// DefaultBaseURL is the Beryl Belfast GBFS v2.2 feed.
	DefaultBaseURL = "https://gbfs.beryl.cc/v2_2/Belfast"
)

// ClientConfig holds configuration for the GBFS client.
type ClientConfig struct {
	// BaseURL is the feed root, without trailing slash (optional).
	BaseURL string

	// Timeout bounds each feed request. Default: 10 seconds
	Timeout time.Duration

	// Registry receives one entry per feed so /api/status can report them (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches station_information and station_status. Each feed has its
// own circuit breaker so one failing file does not mask the other.
type Client struct {
	baseURL string
	info    *feedClient
	status  *feedClient
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

// feedClient is the breaker-guarded client for one feed file.
type feedClient struct {
	name string
	http *resilience.Client

	// lastStatus is the most recent non-2xx status, 0 otherwise.
	lastStatus atomic.Int32
}

// NewClient creates a new GBFS client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	newFeedClient := func(feed string) *feedClient {
		rc := resilience.DefaultClientConfig(feed)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Registry = cfg.Registry
		return &feedClient{name: feed, http: resilience.NewClient(rc)}
	}

	return &Client{
		baseURL: baseURL,
		info:    newFeedClient(FeedStationInformation),
		status:  newFeedClient(FeedStationStatus),
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// StationInformation fetches the static station records.
func (c *Client) StationInformation(ctx context.Context) ([]StationInfo, error) {
	var env envelope[StationInfo]
	if err := c.fetch(ctx, c.info, &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Stations == nil {
		return nil, fmt.Errorf("%w: %s: missing data.stations", ErrParse, FeedStationInformation)
	}
	return env.Data.Stations, nil
}

// StationStatus fetches the live station records.
func (c *Client) StationStatus(ctx context.Context) ([]StationStatus, error) {
	var env envelope[StationStatus]
	if err := c.fetch(ctx, c.status, &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Stations == nil {
		return nil, fmt.Errorf("%w: %s: missing data.stations", ErrParse, FeedStationStatus)
	}
	return env.Data.Stations, nil
}

func (c *Client) fetch(ctx context.Context, fc *feedClient, out any) (err error) {
	feed := fc.name
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, ProviderName, feed, time.Since(start), err)
	}()

	url := fmt.Sprintf("%s/%s.json", c.baseURL, feed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := fc.http.Do(req)
	if err != nil {
		// An open breaker still reports the status that tripped it.
		if errors.Is(err, resilience.ErrCircuitOpen) {
			if code := fc.lastStatus.Load(); code != 0 {
				return &UpstreamError{Feed: feed, StatusCode: int(code), Err: err}
			}
		} else {
			fc.lastStatus.Store(0)
		}
		return fmt.Errorf("fetching %s: %w", feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fc.lastStatus.Store(int32(resp.StatusCode))
		return &UpstreamError{Feed: feed, StatusCode: resp.StatusCode}
	}
	fc.lastStatus.Store(0)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, feed, err)
	}

	c.logger.Debug().
		Str("feed", feed).
		Dur("duration", time.Since(start)).
		Msg("feed fetched")

	return nil
}
