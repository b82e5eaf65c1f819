// CLAUDE:SUMMARY Opens the coursesync SQLite database (modernc driver) with per-connection pragmas in the DSN and inline schemas.
// Package dbopen opens SQLite databases for coursesync.
//
// Pragmas travel in the DSN as _pragma parameters, so the driver applies
// them to every pooled connection, not only the first one:
//
//	foreign_keys = 1
//	journal_mode = WAL   (files only)
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Usage:
//
//	db, err := dbopen.Open("data/coursesync.db", dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const memory = ":memory:"

type config struct {
	busyTimeout int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	maxConns    int
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets busy_timeout in milliseconds. Default 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets the synchronous mode. Default NORMAL.
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithoutForeignKeys disables foreign key enforcement.
func WithoutForeignKeys() Option { return func(c *config) { c.foreignKeys = false } }

// WithMkdirAll creates the parent directories of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option { return func(c *config) { c.maxConns = n } }

// WithSchema queues SQL run once after opening, in the order added.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// DSN returns the driver data source name for path with the pragmas of opts.
func DSN(path string, opts ...Option) string {
	cfg := build(opts)
	return cfg.dsn(path)
}

func build(opts []Option) config {
	cfg := config{busyTimeout: 10_000, synchronous: "NORMAL", foreignKeys: true}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (c config) dsn(path string) string {
	fk := 0
	if c.foreignKeys {
		fk = 1
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("foreign_keys(%d)", fk))
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", c.synchronous))
	if path != memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Open opens the SQLite database at path and runs the queued schemas.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := build(opts)
	if cfg.mkdirAll && path != memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if cfg.maxConns > 0 {
		db.SetMaxOpenConns(cfg.maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	for i, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed with the test. Every
// connection to :memory: is a distinct database, so the pool holds one.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memory, append(opts, WithMaxOpenConns(1))...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
