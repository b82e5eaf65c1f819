package linkproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NoteTimeLayout is the timestamp layout inside the processed note.
const NoteTimeLayout = "2006-01-02 15:04:05"

// ProcessedNote is the note written on a processed cell. It carries both
// markers IsProcessedNote looks for.
func ProcessedNote(originalURL string, at time.Time) string {
	return MarkerOriginalLink + " " + originalURL + "\n" + MarkerProcessedAt + " " + at.Format(NoteTimeLayout)
}

// WriteError reports a cell whose write could not be completed. Stage is
// "value" when neither the formatted nor the plain write landed, "note" when
// the value landed but the note did not.
type WriteError struct {
	Stage string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("linkproc: cell write failed at %s: %v", e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer applies an outcome to one cell.
type Writer struct {
	sheets      SheetService
	noteRetries int
	retryDelay  time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// Write rewrites the cell at cand to point at newURL, keeping its display
// text, applying ProcessedStyle and the processed note. If the formatted
// write fails it falls back to a plain value write followed by a note-only
// write retried noteRetries times. A cell whose value or note could not be
// written returns *WriteError.
func (w *Writer) Write(ctx context.Context, ref SheetRef, cand LinkCandidate, newURL, originalURL string) error {
	text := cand.RawText
	note := ProcessedNote(originalURL, w.now())

	err := w.sheets.WriteCell(ctx, ref, CellUpdate{
		Row: cand.Row, Col: cand.Col,
		Text: text, URL: newURL, Note: note,
		Style: ProcessedStyle,
	})
	if err == nil {
		return nil
	}
	w.logger.WarnContext(ctx, "linkproc: formatted write failed, using fallback",
		"cell", CellName(cand.Row, cand.Col), "error", err)

	if verr := w.sheets.WriteValue(ctx, ref, cand.Row, cand.Col, text, newURL); verr != nil {
		return &WriteError{Stage: "value", Err: errors.Join(err, verr)}
	}

	var nerr error
	for attempt := 0; attempt < w.noteRetries; attempt++ {
		if attempt > 0 {
			if serr := w.sleep(ctx, w.retryDelay*time.Duration(attempt)); serr != nil {
				nerr = errors.Join(nerr, serr)
				break
			}
		}
		if nerr = w.sheets.WriteNote(ctx, ref, cand.Row, cand.Col, note); nerr == nil {
			return nil
		}
		w.logger.WarnContext(ctx, "linkproc: note write failed",
			"cell", CellName(cand.Row, cand.Col), "attempt", attempt+1, "error", nerr)
	}
	if nerr == nil {
		nerr = errors.New("no note write attempted")
	}
	return &WriteError{Stage: "note", Err: nerr}
}
