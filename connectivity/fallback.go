package connectivity

import (
	"context"
	"log/slog"
)

// WithFallback retries a failed remote call on local. A remote PDF cleaner
// that is down degrades to the in-process pdfcpu one. Caller cancellation is
// not retried.
func WithFallback(local Handler, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil || ctx.Err() != nil {
				return resp, err
			}
			if logger != nil {
				logger.WarnContext(ctx, "connectivity: remote failed, falling back to local",
					"service", service,
					"remote_error", err)
			}
			return local(ctx, payload)
		}
	}
}

// WithLocalFallback is WithFallback with the local handler looked up on r at
// call time, so handlers registered after the route was built still count.
// Without a local handler the remote error is returned unchanged.
func WithLocalFallback(r *Router, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if local := r.LocalHandler(service); local != nil {
				return WithFallback(local, service, logger)(next)(ctx, payload)
			}
			return next(ctx, payload)
		}
	}
}

// LocalHandler returns the registered local handler for service, or nil.
func (r *Router) LocalHandler(service string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localHandlers[service]
}
