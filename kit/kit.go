// Package kit holds the transport-neutral endpoint shape shared by the MCP
// tools and the HTTP routes of the pricewatch service.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one given is the outermost.
func Chain(outer ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(outer) - 1; i >= 0; i-- {
			next = outer[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named name with its duration.
// Failures are logged at Warn.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint done", attrs...)
			}
			return resp, err
		}
	}
}
