package connectivity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Strategies accepted by the routes table.
var Strategies = []string{"local", "http", "mcp", "noop"}

// ErrRouteNotFound is returned when an admin operation targets a missing route.
var ErrRouteNotFound = errors.New("connectivity: route not found")

// ErrInvalidStrategy is returned for a strategy outside Strategies.
var ErrInvalidStrategy = errors.New("connectivity: invalid strategy")

// Admin provides CRUD on the routes table for the HTTP and MCP surfaces.
// OnChange, when set, runs after every successful mutation so the writer's
// own router reloads without waiting for Watch.
type Admin struct {
	db       *sql.DB
	OnChange func(ctx context.Context)
}

// NewAdmin creates an Admin backed by db, which must carry Schema.
func NewAdmin(db *sql.DB) *Admin {
	return &Admin{db: db}
}

// RouteRow is a routes table row as exposed to operators.
type RouteRow struct {
	ServiceName string          `json:"service_name"`
	Strategy    string          `json:"strategy"`
	Endpoint    string          `json:"endpoint,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	UpdatedAt   int64           `json:"updated_at"`
}

// ListRoutes returns all routes ordered by service name.
func (a *Admin) ListRoutes(ctx context.Context) ([]RouteRow, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("connectivity: list routes: %w", err)
	}
	defer rows.Close()

	var result []RouteRow
	for rows.Next() {
		var r RouteRow
		var cfgStr string
		if err := rows.Scan(&r.ServiceName, &r.Strategy, &r.Endpoint, &cfgStr, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("connectivity: scan route: %w", err)
		}
		r.Config = json.RawMessage(cfgStr)
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRoute returns a single route, or ErrRouteNotFound.
func (a *Admin) GetRoute(ctx context.Context, serviceName string) (*RouteRow, error) {
	var r RouteRow
	var cfgStr string
	err := a.db.QueryRowContext(ctx,
		`SELECT service_name, strategy, COALESCE(endpoint, ''), COALESCE(config, '{}'), updated_at FROM routes WHERE service_name = ?`,
		serviceName).Scan(&r.ServiceName, &r.Strategy, &r.Endpoint, &cfgStr, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("connectivity: get route: %w", err)
	}
	r.Config = json.RawMessage(cfgStr)
	return &r, nil
}

// UpsertRoute inserts or replaces the route for serviceName.
func (a *Admin) UpsertRoute(ctx context.Context, serviceName, strategy, endpoint string, config json.RawMessage) error {
	if serviceName == "" {
		return fmt.Errorf("connectivity: service name required")
	}
	if !slices.Contains(Strategies, strategy) {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	if !json.Valid(config) {
		return fmt.Errorf("connectivity: route config is not valid JSON")
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO routes (service_name, strategy, endpoint, config)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(service_name) DO UPDATE SET
		     strategy = excluded.strategy,
		     endpoint = excluded.endpoint,
		     config   = excluded.config`,
		serviceName, strategy, endpoint, string(config))
	if err != nil {
		return fmt.Errorf("connectivity: upsert route: %w", err)
	}
	a.changed(ctx)
	return nil
}

// DeleteRoute removes a route. The service falls back to its local handler
// if one is registered.
func (a *Admin) DeleteRoute(ctx context.Context, serviceName string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM routes WHERE service_name = ?`, serviceName)
	if err != nil {
		return fmt.Errorf("connectivity: delete route: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrRouteNotFound
	}
	a.changed(ctx)
	return nil
}

func (a *Admin) changed(ctx context.Context) {
	if a.OnChange != nil {
		a.OnChange(ctx)
	}
}
