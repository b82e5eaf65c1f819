package connectivity

import (
	"encoding/json"
	"log/slog"
	"time"
)

// ResilienceConfig holds the defaults applied by StandardWrapper. Each route
// may override timeout, retries and backoff through its config JSON.
type ResilienceConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	Backoff          time.Duration `yaml:"backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

func (c *ResilienceConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
}

// StandardWrapper builds the per-service middleware stack:
//
//	Observer -> Logging -> Recovery -> [Fallback] -> Breaker -> Retry -> Timeout -> handler
//
// Remote handlers fall back to the local handler of the same service when
// one is registered. Local handlers skip retry and breaker.
func StandardWrapper(r *Router, cfg ResilienceConfig, obs Observer, logger *slog.Logger) Wrapper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return func(service, strategy string, config json.RawMessage, h Handler) Handler {
		rc := ParseRouteConfig(config)
		timeout := Timeout(rc.Timeout(cfg.Timeout), service)

		if strategy == "local" {
			return Chain(
				WithObserver(obs, service, strategy),
				Logging(logger, service),
				Recovery(logger),
				timeout,
			)(h)
		}

		retries := cfg.MaxRetries
		if rc.MaxRetries > 0 {
			retries = rc.MaxRetries
		}
		breaker := NewCircuitBreaker(
			WithBreakerThreshold(cfg.BreakerThreshold),
			WithBreakerResetTimeout(cfg.BreakerReset),
		)
		return Chain(
			WithObserver(obs, service, strategy),
			Logging(logger, service),
			Recovery(logger),
			WithLocalFallback(r, service, logger),
			WithCircuitBreaker(breaker, service),
			WithRetry(retries, rc.Backoff(cfg.Backoff), logger),
			timeout,
		)(h)
	}
}
