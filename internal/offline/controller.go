package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/internal/telemetry"
)

const (
	// DefaultCacheName is the current cache generation.
	DefaultCacheName = "belfast-bikes-v1"

	// DefaultAPIMarker marks requests that must never be served from cache.
	DefaultAPIMarker = "/api/"
)

// defaultAPITimeout bounds API requests forwarded to the origin.
const defaultAPITimeout = 10 * time.Second

// offlineBody is returned for API requests when the network is unreachable.
var offlineBody = []byte(`{"error":"offline"}`)

// DefaultManifest returns the assets stored on install.
func DefaultManifest() []string {
	return []string{"/", "/index.html", "/manifest.json", "/icon.svg"}
}

// Fetcher performs network requests. *http.Client and *resilience.Client
// both satisfy it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// OriginClientConfig returns the resilience settings for asset requests.
// Upstream 5xx responses are passed through without tripping the breaker.
func OriginClientConfig() resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig("origin")
	cfg.PassServerErrors = true
	return cfg
}

// Config holds configuration for the cache controller.
type Config struct {
	// Origin is the base URL requests are forwarded to.
	Origin string

	// CacheName is the live cache generation (default: DefaultCacheName).
	CacheName string

	// Manifest lists the paths fetched on install (default: DefaultManifest).
	Manifest []string

	// APIMarker is matched against the request URI (default: DefaultAPIMarker).
	APIMarker string

	// Fetcher performs asset requests (default: a resilience client that
	// only trips on transport errors).
	Fetcher Fetcher

	// APIFetcher performs API requests. It must not short-circuit, since
	// every API request goes to the network (default: a plain HTTP client).
	APIFetcher Fetcher

	// Store holds the cache buckets.
	Store Store

	// Metrics records cache hits and misses (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for controller operations.
	Logger zerolog.Logger
}

// Controller decides per request whether to answer from cache, from the
// network, or both.
type Controller struct {
	origin    *url.URL
	cacheName string
	manifest  []string
	apiMarker string
	fetcher   Fetcher
	api       Fetcher
	store     Store
	metrics   *telemetry.ProviderMetrics
	logger    zerolog.Logger
	now       func() time.Time

	pending sync.WaitGroup
}

// NewController creates a cache controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("offline: store is required")
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parsing origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute URL", cfg.Origin)
	}

	c := &Controller{
		origin:    origin,
		cacheName: cfg.CacheName,
		manifest:  cfg.Manifest,
		apiMarker: cfg.APIMarker,
		fetcher:   cfg.Fetcher,
		api:       cfg.APIFetcher,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if c.cacheName == "" {
		c.cacheName = DefaultCacheName
	}
	if c.manifest == nil {
		c.manifest = DefaultManifest()
	}
	if c.apiMarker == "" {
		c.apiMarker = DefaultAPIMarker
	}
	if c.fetcher == nil {
		c.fetcher = resilience.NewClient(OriginClientConfig())
	}
	if c.api == nil {
		c.api = &http.Client{Timeout: defaultAPITimeout}
	}

	return c, nil
}

// CacheName returns the live cache generation.
func (c *Controller) CacheName() string {
	return c.cacheName
}

// Install fetches every manifest path and stores them in the live bucket.
// Nothing is stored unless every fetch succeeds.
func (c *Controller) Install(ctx context.Context) error {
	entries := make([]*CachedResponse, len(c.manifest))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range c.manifest {
		i, path := i, path
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, c.resolve(path), http.NoBody)
			if err != nil {
				return fmt.Errorf("creating request for %s: %w", path, err)
			}

			resp, err := c.fetcher.Do(req)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", path, err)
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				resp.Body.Close()
				return fmt.Errorf("fetching %s: unexpected status code: %d", path, resp.StatusCode)
			}

			entry, err := newCachedResponse(resp, c.now())
			if err != nil {
				return fmt.Errorf("fetching %s: %w", path, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("install %s: %w", c.cacheName, err)
	}

	bucket, err := c.store.Open(ctx, c.cacheName)
	if err != nil {
		return fmt.Errorf("install %s: %w", c.cacheName, err)
	}
	for i, path := range c.manifest {
		if err := bucket.Put(ctx, path, entries[i]); err != nil {
			return fmt.Errorf("install %s: storing %s: %w", c.cacheName, path, err)
		}
	}

	c.logger.Info().
		Str("cache", c.cacheName).
		Int("assets", len(c.manifest)).
		Msg("offline cache installed")

	return nil
}

// Activate deletes every bucket other than the live one and returns the
// names it purged.
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	names, err := c.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}

	var purged []string
	for _, name := range names {
		if name == c.cacheName {
			continue
		}
		if _, err := c.store.Delete(ctx, name); err != nil {
			return purged, fmt.Errorf("deleting cache %s: %w", name, err)
		}
		purged = append(purged, name)
	}

	if len(purged) > 0 {
		c.logger.Info().
			Str("cache", c.cacheName).
			Strs("purged", purged).
			Msg("offline cache activated")
	}

	return purged, nil
}

// Fetch answers r. API requests always go to the network and degrade to an
// offline JSON body. Other GET requests are served from cache when possible;
// on a miss the network response is stored in the background.
func (c *Controller) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	if c.isAPI(r) {
		return c.fetchAPI(ctx, r)
	}

	if r.Method != http.MethodGet {
		return c.network(ctx, c.fetcher, r)
	}

	key := cacheKey(r)
	if cached := c.match(ctx, key); cached != nil {
		c.metrics.RecordCacheHit(ctx, c.cacheName)
		return cached.Response(r), nil
	}
	c.metrics.RecordCacheMiss(ctx, c.cacheName)

	resp, err := c.network(ctx, c.fetcher, r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		entry, err := newCachedResponse(resp, c.now())
		if err != nil {
			return nil, err
		}
		c.storeAsync(ctx, key, entry)
	}

	return resp, nil
}

// Wait blocks until background cache writes have finished.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// ServeHTTP proxies r through Fetch.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := c.Fetch(r.Context(), r)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("asset unavailable")
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	// Upstream headers replace any set by wrapping middleware (X-Request-Id).
	for k, values := range resp.Header {
		w.Header()[k] = append([]string(nil), values...)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		c.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("copying response body")
	}
}

func (c *Controller) isAPI(r *http.Request) bool {
	return strings.Contains(r.URL.RequestURI(), c.apiMarker)
}

func (c *Controller) fetchAPI(ctx context.Context, r *http.Request) (*http.Response, error) {
	resp, err := c.network(ctx, c.api, r)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("api unreachable, answering offline")

	offline := &CachedResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       offlineBody,
	}
	return offline.Response(r), nil
}

// match looks up key in the live bucket first, then in any older bucket
// still present. Store errors count as a miss.
func (c *Controller) match(ctx context.Context, key string) *CachedResponse {
	names, err := c.store.Keys(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("listing caches")
		return nil
	}

	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if name == c.cacheName {
			ordered = append([]string{name}, ordered...)
			continue
		}
		ordered = append(ordered, name)
	}

	for _, name := range ordered {
		bucket, err := c.store.Open(ctx, name)
		if err != nil {
			c.logger.Warn().Err(err).Str("cache", name).Msg("opening cache")
			continue
		}
		cached, err := bucket.Match(ctx, key)
		if errors.Is(err, ErrNotCached) {
			continue
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("cache", name).Str("key", key).Msg("reading cache")
			continue
		}
		return cached
	}
	return nil
}

func (c *Controller) storeAsync(ctx context.Context, key string, entry *CachedResponse) {
	ctx = context.WithoutCancel(ctx)

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		bucket, err := c.store.Open(ctx, c.cacheName)
		if err != nil {
			c.logger.Warn().Err(err).Str("cache", c.cacheName).Msg("opening cache")
			return
		}
		if err := bucket.Put(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("cache", c.cacheName).Str("key", key).Msg("writing cache")
		}
	}()
}

func (c *Controller) network(ctx context.Context, f Fetcher, r *http.Request) (*http.Response, error) {
	out := r.Clone(ctx)
	out.RequestURI = ""
	out.URL = c.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	out.Host = c.origin.Host
	out.Header.Del("Connection")

	resp, err := f.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", r.URL.Path, err)
	}
	return resp, nil
}

func (c *Controller) resolve(path string) string {
	return c.origin.ResolveReference(&url.URL{Path: path}).String()
}

func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}
