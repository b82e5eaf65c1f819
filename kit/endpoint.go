// CLAUDE:SUMMARY Transport-agnostic Endpoint/Middleware types shared by the HTTP and MCP surfaces.
// Package kit holds the transport-agnostic plumbing used by the coursesync
// surfaces: the Endpoint/Middleware pair, request-scoped context values and
// the MCP tool bridge.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one business operation, independent of the transport that
// carries it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every endpoint invocation with its duration and error.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := append([]any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}, Attrs(ctx)...)
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: endpoint ok", attrs...)
			}
			return resp, err
		}
	}
}
