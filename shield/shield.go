// Package shield provides the HTTP middleware in front of the pricewatch
// JSON API: security headers, request body limits, per-client rate limits
// and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(cfg, logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
	"time"
)

// Config configures APIStack.
type Config struct {
	// MaxBodyBytes caps JSON request bodies. Default: 64 KiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RateLimits maps "METHOD /path" to its per-client rule.
	RateLimits map[string]Rule `yaml:"rate_limits"`
}

// DefaultMaxBodyBytes is the JSON body cap when none is configured.
const DefaultMaxBodyBytes = 64 << 10

// DefaultConfig limits tracking, which triggers a live scrape, to 60
// requests per minute per client.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: DefaultMaxBodyBytes,
		RateLimits: map[string]Rule{
			"POST /track": {MaxRequests: 60, Window: time.Minute},
		},
	}
}

// APIStack returns the middleware stack for the JSON API, outermost first:
// HeadToGet, SecurityHeaders, MaxJSONBody, then the rate limiter.
func APIStack(cfg Config, logger *slog.Logger) []func(http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	rl := NewRateLimiter(cfg.RateLimits, WithLogger(logger))
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(cfg.MaxBodyBytes),
		rl.Middleware,
	}
}
