package sheetsvc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/coursesync/linkproc"
)

// DefaultNoteAuthor signs the comments written on processed cells.
const DefaultNoteAuthor = "coursesync"

// XLSX is the local workbook adapter. Cell comments play the role of
// notes. SheetRef.SpreadsheetID is ignored; an empty SheetName means the
// first tab. Writes stay in memory until Save.
type XLSX struct {
	mu     sync.Mutex
	f      *excelize.File
	path   string
	author string
	styles map[linkproc.CellStyle]int
}

// OpenXLSX opens the workbook at path.
func OpenXLSX(path string) (*XLSX, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheetsvc: open %s: %w", path, err)
	}
	return NewXLSX(f, path), nil
}

// NewXLSX wraps an open workbook; Save writes it to path.
func NewXLSX(f *excelize.File, path string) *XLSX {
	return &XLSX{f: f, path: path, author: DefaultNoteAuthor, styles: make(map[linkproc.CellStyle]int)}
}

// Save writes the workbook back to its path.
func (x *XLSX) Save() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.f.SaveAs(x.path); err != nil {
		return fmt.Errorf("sheetsvc: save %s: %w", x.path, err)
	}
	return nil
}

// Close releases the workbook without saving.
func (x *XLSX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.f.Close()
}

func (x *XLSX) sheet(ref linkproc.SheetRef) (string, error) {
	if ref.SheetName == "" {
		list := x.f.GetSheetList()
		if len(list) == 0 {
			return "", ErrSheetNotFound
		}
		return list[0], nil
	}
	idx, err := x.f.GetSheetIndex(ref.SheetName)
	if err != nil || idx < 0 {
		return "", fmt.Errorf("%w: %q", ErrSheetNotFound, ref.SheetName)
	}
	return ref.SheetName, nil
}

// ReadGrid reads the values, hyperlinks and comments of one tab.
func (x *XLSX) ReadGrid(_ context.Context, ref linkproc.SheetRef) (*linkproc.Grid, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	sheet, err := x.sheet(ref)
	if err != nil {
		return nil, err
	}
	rows, err := x.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheetsvc: rows of %s: %w", sheet, err)
	}
	comments, err := x.f.GetComments(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheetsvc: comments of %s: %w", sheet, err)
	}
	notes := make(map[string]string, len(comments))
	for _, c := range comments {
		notes[c.Cell] = commentText(c)
	}

	grid := &linkproc.Grid{Values: rows, Rich: make([][]*linkproc.RichCell, len(rows))}
	for r, row := range rows {
		grid.Rich[r] = make([]*linkproc.RichCell, len(row))
		for c := range row {
			name := linkproc.CellName(r, c)
			has, target, err := x.f.GetCellHyperLink(sheet, name)
			if err != nil {
				has = false
			}
			note := notes[name]
			if (has && target != "") || note != "" {
				grid.Rich[r][c] = &linkproc.RichCell{Hyperlink: target, Note: note}
			}
		}
	}
	return grid, nil
}

func commentText(c excelize.Comment) string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, run := range c.Paragraph {
		b.WriteString(run.Text)
	}
	return b.String()
}

// WriteCell sets value, hyperlink, style and comment.
func (x *XLSX) WriteCell(_ context.Context, ref linkproc.SheetRef, u linkproc.CellUpdate) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sheet, err := x.sheet(ref)
	if err != nil {
		return err
	}
	cell := linkproc.CellName(u.Row, u.Col)
	if err := x.setValue(sheet, cell, u.Text, u.URL); err != nil {
		return err
	}
	style, err := x.style(u.Style)
	if err != nil {
		return err
	}
	if err := x.f.SetCellStyle(sheet, cell, cell, style); err != nil {
		return fmt.Errorf("sheetsvc: style %s: %w", cell, err)
	}
	return x.setNote(sheet, cell, u.Note)
}

// WriteValue sets value and hyperlink only.
func (x *XLSX) WriteValue(_ context.Context, ref linkproc.SheetRef, row, col int, text, url string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sheet, err := x.sheet(ref)
	if err != nil {
		return err
	}
	return x.setValue(sheet, linkproc.CellName(row, col), text, url)
}

// WriteNote replaces the comment of one cell.
func (x *XLSX) WriteNote(_ context.Context, ref linkproc.SheetRef, row, col int, note string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	sheet, err := x.sheet(ref)
	if err != nil {
		return err
	}
	return x.setNote(sheet, linkproc.CellName(row, col), note)
}

func (x *XLSX) setValue(sheet, cell, text, url string) error {
	if err := x.f.SetCellValue(sheet, cell, text); err != nil {
		return fmt.Errorf("sheetsvc: value %s: %w", cell, err)
	}
	if err := x.f.SetCellHyperLink(sheet, cell, url, "External"); err != nil {
		return fmt.Errorf("sheetsvc: hyperlink %s: %w", cell, err)
	}
	return nil
}

func (x *XLSX) setNote(sheet, cell, note string) error {
	if err := x.f.DeleteComment(sheet, cell); err != nil {
		return fmt.Errorf("sheetsvc: delete comment %s: %w", cell, err)
	}
	if err := x.f.AddComment(sheet, excelize.Comment{Cell: cell, Author: x.author, Text: note}); err != nil {
		return fmt.Errorf("sheetsvc: comment %s: %w", cell, err)
	}
	return nil
}

func (x *XLSX) style(s linkproc.CellStyle) (int, error) {
	if id, ok := x.styles[s]; ok {
		return id, nil
	}
	st := &excelize.Style{
		Font: &excelize.Font{Bold: s.Bold, Color: strings.TrimPrefix(s.Foreground, "#"), Underline: "single"},
	}
	if s.Background != "" {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(s.Background, "#")}}
	}
	id, err := x.f.NewStyle(st)
	if err != nil {
		return 0, fmt.Errorf("sheetsvc: new style: %w", err)
	}
	x.styles[s] = id
	return id, nil
}
