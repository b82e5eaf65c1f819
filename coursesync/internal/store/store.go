// CLAUDE:SUMMARY SQLite database handle for coursesync: opens DB via dbopen and applies schema.
// Package store provides the SQLite persistence layer for coursesync:
// registered course sheets and the history of their runs.
package store

import (
	"database/sql"

	"github.com/hazyhaar/coursesync/dbopen"
)

// Store is the coursesync database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the coursesync SQLite database at path,
// and applies the coursesync schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
