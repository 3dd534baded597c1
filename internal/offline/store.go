// Package offline serves the web front end cache-first while always sending
// API traffic to the network. Cached assets live in named buckets, one per
// cache generation, and activating a generation purges all others.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrNotCached is returned by Bucket.Match when no entry exists for a key.
var ErrNotCached = errors.New("not cached")

// Store holds named cache buckets.
type Store interface {
	// Open returns the named bucket, creating it if needed.
	Open(ctx context.Context, name string) (Bucket, error)

	// Keys lists bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a bucket and its entries. It reports whether the bucket existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Close releases store resources.
	Close() error
}

// Bucket is one cache generation.
type Bucket interface {
	Name() string
	Match(ctx context.Context, key string) (*CachedResponse, error)
	Put(ctx context.Context, key string, resp *CachedResponse) error
}

// CachedResponse is a fully buffered HTTP response.
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// newCachedResponse buffers resp's body. resp.Body is replaced with a fresh
// reader over the same bytes so the caller can still return resp.
func newCachedResponse(resp *http.Response, now time.Time) (*CachedResponse, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   now,
	}, nil
}

// Response builds an *http.Response for req from the cached copy.
func (c *CachedResponse) Response(req *http.Request) *http.Response {
	header := c.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(c.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", c.StatusCode, http.StatusText(c.StatusCode)),
		StatusCode:    c.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}
