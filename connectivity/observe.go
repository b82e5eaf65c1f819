package connectivity

import (
	"context"
	"time"
)

// Observer receives one event per service call. The metrics package
// implements it with Prometheus collectors.
type Observer interface {
	ObserveCall(service, strategy string, d time.Duration, err error)
}

// WithObserver reports every call to obs.
func WithObserver(obs Observer, service, strategy string) HandlerMiddleware {
	return func(next Handler) Handler {
		if obs == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			obs.ObserveCall(service, strategy, time.Since(start), err)
			return resp, err
		}
	}
}
