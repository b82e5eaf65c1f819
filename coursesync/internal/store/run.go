// CLAUDE:SUMMARY CRUD operations for the runs table: processing history with the JSON report of each run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Run statuses. A finished run takes the status computed from its report.
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunPartial = "partial"
	RunError   = "error"
)

// Run is one processing run of a sheet.
type Run struct {
	ID         string          `json:"id"`
	SheetID    string          `json:"sheet_id"`
	Status     string          `json:"status"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	Failed     int             `json:"failed"`
	Report     json.RawMessage `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
}

const runCols = `id, sheet_id, status, total, processed, failed, report, error, started_at, finished_at`

// InsertRun records the start of a run.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, sheet_id, status, started_at)
		VALUES (?,?,?,?)`,
		r.ID, r.SheetID, r.Status, r.StartedAt,
	)
	return err
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	if r.FinishedAt == 0 {
		r.FinishedAt = time.Now().UnixMilli()
	}
	var report sql.NullString
	if len(r.Report) > 0 {
		report = sql.NullString{String: string(r.Report), Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status=?, total=?, processed=?, failed=?, report=?, error=?, finished_at=?
		WHERE id=?`,
		r.Status, r.Total, r.Processed, r.Failed, report, nullStr(r.Error), r.FinishedAt, r.ID,
	)
	return err
}

// GetRun retrieves a run by ID. It returns nil, nil when none exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the runs of a sheet, most recent first. The reports are
// left out; limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, sheetID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, sheet_id, status, total, processed, failed, NULL, error, started_at, finished_at
		FROM runs WHERE sheet_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, sheetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AbandonRunning marks runs left in the running state, by a crash, as
// errors. It returns the number of rows changed.
func (s *Store) AbandonRunning(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status=?, error='interrupted', finished_at=?
		WHERE status=?`, RunError, time.Now().UnixMilli(), RunRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var report, errMsg sql.NullString
	var finished sql.NullInt64
	if err := sc.Scan(&r.ID, &r.SheetID, &r.Status, &r.Total, &r.Processed, &r.Failed,
		&report, &errMsg, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if report.Valid {
		r.Report = json.RawMessage(report.String)
	}
	r.Error = errMsg.String
	r.FinishedAt = finished.Int64
	return r, nil
}
