package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// RouteConfig is the per-route JSON stored in the routes config column.
//
//	{"timeout_ms": 120000, "max_retries": 2, "backoff_ms": 500, "bearer_token": "..."}
type RouteConfig struct {
	TimeoutMs   int64  `json:"timeout_ms"`
	MaxRetries  int    `json:"max_retries"`
	BackoffMs   int64  `json:"backoff_ms"`
	ContentType string `json:"content_type"`
	BearerToken string `json:"bearer_token"`
	ToolName    string `json:"tool_name"`
}

// ParseRouteConfig decodes cfg; malformed or empty JSON yields the zero value.
func ParseRouteConfig(cfg json.RawMessage) RouteConfig {
	var rc RouteConfig
	if len(cfg) > 0 {
		_ = json.Unmarshal(cfg, &rc)
	}
	return rc
}

// Timeout returns the configured timeout or def when unset.
func (rc RouteConfig) Timeout(def time.Duration) time.Duration {
	if rc.TimeoutMs > 0 {
		return time.Duration(rc.TimeoutMs) * time.Millisecond
	}
	return def
}

// Backoff returns the configured base backoff or def when unset.
func (rc RouteConfig) Backoff(def time.Duration) time.Duration {
	if rc.BackoffMs > 0 {
		return time.Duration(rc.BackoffMs) * time.Millisecond
	}
	return def
}

// WithRetry retries failed calls with exponential backoff starting at
// baseBackoff. Context cancellation stops retrying, and open circuits and
// 4xx remote answers are never retried.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if maxRetries <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || !retryable(err) {
					return nil, lastErr
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "connectivity: retrying call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					t := time.NewTimer(wait)
					select {
					case <-ctx.Done():
						t.Stop()
						return nil, lastErr
					case <-t.C:
					}
				}
			}
			return nil, lastErr
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if status, ok := RemoteStatus(err); ok && status >= 400 && status < 500 && status != 429 {
		return false
	}
	return true
}
