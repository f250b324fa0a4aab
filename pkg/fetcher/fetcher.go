// Package fetcher defines the HTTP client harvest uses to talk to proxy
// relays. Implement the Fetcher interface to swap the transport (tests use
// an in-memory fake; the CLI uses the colly-backed StaticFetcher).
package fetcher

import (
	"context"
	"errors"
	"time"
)

// Fetcher performs a single HTTP request.
type Fetcher interface {
	// Fetch requests url and returns the raw response. A non-2xx status is
	// reported as an error wrapping ErrHTTPStatus, with Content.StatusCode set.
	Fetch(ctx context.Context, url string, opts Options) (Content, error)

	// Close releases any resources.
	Close() error

	// Type returns a string identifying the fetcher type (e.g., "static").
	Type() string
}

// Options controls a single request.
type Options struct {
	Method    string // GET when empty
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// Content is a fetched response.
type Content struct {
	URL         string
	Body        string
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
	Duration    time.Duration
}

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, fetcher.ErrHTTPStatus).
var (
	// ErrHTTPStatus indicates the relay answered with a non-success status.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrTimeout indicates the request did not finish within its timeout.
	ErrTimeout = errors.New("request timed out")
)

// Standard request headers for page fetches through a relay.
const (
	HeaderAccept       = "Accept"
	HeaderCacheControl = "Cache-Control"
	AcceptHTML         = "text/html,application/xhtml+xml"
	NoStore            = "no-store"
)
