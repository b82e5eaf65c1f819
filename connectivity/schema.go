package connectivity

import "database/sql"

// Schema defines the routes table.
//
// Strategies:
//   - "local": in-process handler registered with RegisterLocal.
//   - "http":  JSON POST to endpoint (HTTPFactory).
//   - "mcp":   MCP tool call over streamable HTTP (MCPFactory).
//   - "noop":  succeed without doing anything.
//
// Any write bumps PRAGMA data_version, which Watch polls.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'mcp', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TRIGGER IF NOT EXISTS trg_routes_updated_at
AFTER UPDATE OF strategy, endpoint, config ON routes
FOR EACH ROW
BEGIN
    UPDATE routes SET updated_at = strftime('%s', 'now') WHERE service_name = NEW.service_name;
END;
`

// Init creates the routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
