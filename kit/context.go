package kit

import "context"

type ctxKey uint8

const (
	transportKey ctxKey = iota
	traceIDKey
	runIDKey
)

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithTransport records the surface ("http", "mcp", "connectivity", "cli")
// that carried the request.
func WithTransport(ctx context.Context, t string) context.Context {
	return withValue(ctx, transportKey, t)
}

// GetTransport returns the recorded transport, "http" when unset.
func GetTransport(ctx context.Context) string {
	if v := value(ctx, transportKey); v != "" {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return withValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string { return value(ctx, traceIDKey) }

// WithRunID tags ctx with the pipeline run it belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey, id)
}

func GetRunID(ctx context.Context) string { return value(ctx, runIDKey) }

// Attrs returns the correlation ids carried by ctx as slog key/value pairs.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := GetTraceID(ctx); id != "" {
		attrs = append(attrs, "trace_id", id)
	}
	if id := GetRunID(ctx); id != "" {
		attrs = append(attrs, "run_id", id)
	}
	return attrs
}
