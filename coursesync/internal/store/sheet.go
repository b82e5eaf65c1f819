// CLAUDE:SUMMARY CRUD operations for the sheets table: course spreadsheets registered for processing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/coursesync/dbopen"
)

// Sheet is a registered course spreadsheet tab.
type Sheet struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name,omitempty"`
	CourseName    string `json:"course_name,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

const sheetCols = `id, name, spreadsheet_id, sheet_name, course_name, created_at, updated_at`

// InsertSheet registers a new sheet.
func (s *Store) InsertSheet(ctx context.Context, sh *Sheet) error {
	now := time.Now().UnixMilli()
	if sh.CreatedAt == 0 {
		sh.CreatedAt = now
	}
	sh.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sheets (`+sheetCols+`)
		VALUES (?,?,?,?,?,?,?)`,
		sh.ID, sh.Name, sh.SpreadsheetID, sh.SheetName, sh.CourseName, sh.CreatedAt, sh.UpdatedAt,
	)
	return err
}

// GetSheet retrieves a sheet by ID. It returns nil, nil when none exists.
func (s *Store) GetSheet(ctx context.Context, id string) (*Sheet, error) {
	sh := &Sheet{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT `+sheetCols+` FROM sheets WHERE id = ?`, id).Scan(
		&sh.ID, &sh.Name, &sh.SpreadsheetID, &sh.SheetName, &sh.CourseName, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sh, nil
}

// ListSheets returns all sheets ordered by name.
func (s *Store) ListSheets(ctx context.Context) ([]*Sheet, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sheetCols+` FROM sheets ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []*Sheet
	for rows.Next() {
		sh := &Sheet{}
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.SpreadsheetID, &sh.SheetName, &sh.CourseName, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
			return nil, err
		}
		sheets = append(sheets, sh)
	}
	return sheets, rows.Err()
}

// UpdateSheet updates a sheet's name, target and course name.
func (s *Store) UpdateSheet(ctx context.Context, sh *Sheet) error {
	sh.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sheets SET name=?, spreadsheet_id=?, sheet_name=?, course_name=?, updated_at=?
		WHERE id=?`,
		sh.Name, sh.SpreadsheetID, sh.SheetName, sh.CourseName, sh.UpdatedAt, sh.ID,
	)
	return err
}

// DeleteSheet removes a sheet; its runs go with it through ON DELETE
// CASCADE. It reports whether a row was deleted.
func (s *Store) DeleteSheet(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sheets WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}
