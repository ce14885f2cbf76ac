// Package geocode resolves free-form addresses to coordinates via the
// US Census Geocoder.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a single free-form address. An unmatched address
	// is not an error: the returned Result has Matched=false.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census"
	Quality   string // "rooftop" (exact match) or "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client for Census requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for Census API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithBaseURL overrides the Census Geocoder endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithDefaultCity appends a city/state suffix to addresses that lack one,
// e.g. "Boston, MA". Residents rarely spell out the city in a 311 request.
func WithDefaultCity(suffix string) Option {
	return func(g *geocoder) {
		g.citySuffix = suffix
	}
}

type geocoder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	citySuffix string
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
		baseURL:    censusOneLineURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
