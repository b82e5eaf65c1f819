// CLAUDE:SUMMARY Routes processing-service calls (pdf_clean, video_transcode, file_copy) to local handlers or remote transports from a hot-reloaded SQLite routes table.
// Package connectivity routes processing-service calls either to an
// in-process handler or to a remote processor, based on a SQLite routes
// table reloaded at runtime.
//
// The pipeline calls services by name and never knows where they run:
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("pdf_clean", pdfService.Handle)
//	go router.Watch(ctx, db, time.Second)
//
//	resp, err := router.Call(ctx, "pdf_clean", payload)
//
// Moving the PDF cleaner to a dedicated box is one UPDATE on the routes
// table; the next Call picks up the new route without a restart.
package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Local Go functions and remote clients both implement this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. It receives the
// endpoint (e.g. "https://pdf.internal/clean") and the per-route config JSON.
// The close function is called when the route is removed or replaced; it may
// be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Wrapper decorates a handler for one service. It is applied once when the
// handler is built, so stateful middleware (breakers) lives as long as the
// route.
type Wrapper func(service, strategy string, config json.RawMessage, h Handler) Handler

// Route is one row of the routes table.
type Route struct {
	ServiceName string
	Strategy    string
	Endpoint    string
	Config      json.RawMessage
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls. Reads take the read lock, reloads the
// write lock.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routeSnap     map[string]Route
	factories     map[string]TransportFactory
	wrap          Wrapper
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWrapper installs a Wrapper applied to every local and remote handler.
func WithWrapper(w Wrapper) Option {
	return func(r *Router) { r.wrap = w }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routeSnap:     make(map[string]Route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for a service. It serves the
// service when the route says "local" or when no route exists.
func (r *Router) RegisterLocal(service string, h Handler) {
	if r.wrap != nil {
		h = r.wrap(service, "local", nil, h)
	}
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a strategy such as "http" or "mcp".
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Call dispatches a service call. Resolution order:
//  1. noop route: succeeds with a nil response.
//  2. remote route built from the routes table.
//  3. local handler.
//  4. ErrNotRoutable.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	snap, hasRoute := r.routeSnap[service]
	r.mu.RUnlock()

	if hasRoute && snap.Strategy == "noop" {
		r.logger.DebugContext(ctx, "connectivity: routing noop", "service", service)
		return nil, nil
	}

	if hasRemote {
		r.logger.DebugContext(ctx, "connectivity: routing remote",
			"service", service, "strategy", snap.Strategy, "endpoint", snap.Endpoint)
		return entry.handler(ctx, payload)
	}

	if localH != nil {
		r.logger.DebugContext(ctx, "connectivity: routing local", "service", service)
		return localH(ctx, payload)
	}

	return nil, &Error{Kind: ErrNotRoutable, Service: service}
}

// Reload reads the routes table and applies it with SetRoutes.
func (r *Router) Reload(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}') FROM routes`)
	if err != nil {
		return fmt.Errorf("connectivity: query routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var rt Route
		var cfgStr string
		if err := rows.Scan(&rt.ServiceName, &rt.Strategy, &rt.Endpoint, &cfgStr); err != nil {
			return fmt.Errorf("connectivity: scan route: %w", err)
		}
		rt.Config = json.RawMessage(cfgStr)
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("connectivity: rows: %w", err)
	}
	return r.SetRoutes(routes)
}

// SetRoutes replaces the route snapshot. Only routes whose strategy,
// endpoint or config changed are rebuilt; unchanged remote handlers keep
// their connections. Routes that cannot be built are skipped and reported
// in the joined error, while every buildable route is still applied.
func (r *Router) SetRoutes(routes []Route) error {
	newRoutes := make(map[string]Route, len(routes))
	for _, rt := range routes {
		if len(rt.Config) == 0 {
			rt.Config = json.RawMessage(`{}`)
		}
		newRoutes[rt.ServiceName] = rt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	newEntries := make(map[string]remoteEntry, len(newRoutes))
	var errs []error

	for name, rt := range newRoutes {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routeSnap[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, exists := r.remoteEntries[name]; exists {
				newEntries[name] = existing
				continue
			}
		}

		factory, ok := r.factories[rt.Strategy]
		if !ok {
			errs = append(errs, &Error{Kind: ErrNoTransport, Service: name, Strategy: rt.Strategy})
			continue
		}
		h, closeFn, err := factory(rt.Endpoint, rt.Config)
		if err != nil {
			errs = append(errs, &Error{Kind: ErrTransportBuild, Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err})
			continue
		}
		if r.wrap != nil {
			h = r.wrap(name, rt.Strategy, rt.Config, h)
		}
		newEntries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("connectivity: route built",
			"service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remoteEntries {
		if old.close == nil {
			continue
		}
		if _, still := newEntries[name]; !still || r.routeSnap[name].fingerprint() != newRoutes[name].fingerprint() {
			old.close()
		}
	}

	r.remoteEntries = newEntries
	r.routeSnap = newRoutes

	r.logger.Info("connectivity: routes applied",
		"total", len(newRoutes),
		"remote", len(newEntries),
		"failed", len(errs))

	for _, err := range errs {
		r.logger.Warn("connectivity: route skipped", "error", err)
	}
	return errors.Join(errs...)
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routeSnap = make(map[string]Route)
	return nil
}
