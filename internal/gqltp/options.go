package gqltp

import (
	"net/http"
	"time"
)

// Options configures the GraphQL HTTP transport behavior.
//
// Defaults:
// - RequestTimeout: 10s (used only if incoming context has no deadline)
// - HTTPClient:     pooled client with keep-alive connections per backend
// - UserAgent:      "graphgate"
//
// All options are safe to leave zero-valued to use defaults.

type Options struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	UserAgent      string

	// MaxResponseBytes caps how much of a backend response body is read.
	// Zero means no cap.
	MaxResponseBytes int64
}

// Option mutates Options
//
// Use WithX helpers below.

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		RequestTimeout: 10 * time.Second,
		UserAgent:      "graphgate",
	}
}

func WithHTTPClient(c *http.Client) Option   { return func(o *Options) { o.HTTPClient = c } }
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) { o.RequestTimeout = d }
}
func WithUserAgent(ua string) Option { return func(o *Options) { o.UserAgent = ua } }
func WithMaxResponseBytes(n int64) Option {
	return func(o *Options) { o.MaxResponseBytes = n }
}
