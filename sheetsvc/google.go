package sheetsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hazyhaar/coursesync/linkproc"
)

const (
	gridFields  = "sheets(properties(sheetId,title),data(startRow,startColumn,rowData(values(formattedValue,hyperlink,note,userEnteredValue,textFormatRuns(format(link))))))"
	propsFields = "sheets(properties(sheetId,title))"

	formattedFields = "userEnteredValue,userEnteredFormat.backgroundColor,userEnteredFormat.textFormat.foregroundColor,userEnteredFormat.textFormat.bold,note"
)

// Google is the Sheets v4 adapter.
type Google struct {
	svc    *sheets.Service
	logger *slog.Logger

	mu  sync.Mutex
	ids map[string]int64 // spreadsheet id + tab title -> numeric sheet id
}

// NewGoogle creates the adapter. opts carry the credentials, see
// Credentials.ClientOptions.
func NewGoogle(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Google, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheetsvc: new service: %w", err)
	}
	return NewGoogleFromService(svc, logger), nil
}

// NewGoogleFromService wraps an existing Sheets client.
func NewGoogleFromService(svc *sheets.Service, logger *slog.Logger) *Google {
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{svc: svc, logger: logger, ids: make(map[string]int64)}
}

// ReadGrid fetches the display values, hyperlinks and notes of one tab. An
// empty SheetName reads the first tab.
func (g *Google) ReadGrid(ctx context.Context, ref linkproc.SheetRef) (*linkproc.Grid, error) {
	call := g.svc.Spreadsheets.Get(ref.SpreadsheetID).
		IncludeGridData(true).
		Fields(gridFields).
		Context(ctx)
	if ref.SheetName != "" {
		call = call.Ranges(A1Sheet(ref.SheetName))
	}
	ss, err := call.Do()
	if err != nil {
		return nil, getError(ref.SpreadsheetID, err)
	}
	sh := findSheet(ss.Sheets, ref.SheetName)
	if sh == nil {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, ref.SheetName)
	}
	g.remember(ref, sh.Properties.SheetId)

	grid := &linkproc.Grid{}
	for _, data := range sh.Data {
		for i, row := range data.RowData {
			r := int(data.StartRow) + i
			for j, cd := range row.Values {
				if cd == nil {
					continue
				}
				setCell(grid, r, int(data.StartColumn)+j, cd)
			}
		}
	}
	return grid, nil
}

func setCell(grid *linkproc.Grid, r, c int, cd *sheets.CellData) {
	for len(grid.Values) <= r {
		grid.Values = append(grid.Values, nil)
	}
	for len(grid.Values[r]) <= c {
		grid.Values[r] = append(grid.Values[r], "")
	}
	grid.Values[r][c] = cd.FormattedValue

	link := cellLink(cd)
	if link == "" && cd.Note == "" {
		return
	}
	for len(grid.Rich) <= r {
		grid.Rich = append(grid.Rich, nil)
	}
	for len(grid.Rich[r]) <= c {
		grid.Rich[r] = append(grid.Rich[r], nil)
	}
	grid.Rich[r][c] = &linkproc.RichCell{Hyperlink: link, Note: cd.Note}
}

// cellLink prefers the cell hyperlink, then a =HYPERLINK() formula, then the
// first linked text run.
func cellLink(cd *sheets.CellData) string {
	if cd.Hyperlink != "" {
		return cd.Hyperlink
	}
	if v := cd.UserEnteredValue; v != nil && v.FormulaValue != nil {
		if link, ok := LinkFromFormula(*v.FormulaValue); ok {
			return link
		}
	}
	for _, run := range cd.TextFormatRuns {
		if run.Format != nil && run.Format.Link != nil && run.Format.Link.Uri != "" {
			return run.Format.Link.Uri
		}
	}
	return ""
}

func findSheet(list []*sheets.Sheet, title string) *sheets.Sheet {
	for _, sh := range list {
		if sh.Properties == nil {
			continue
		}
		if title == "" || sh.Properties.Title == title {
			return sh
		}
	}
	return nil
}

// WriteCell rewrites the cell as a hyperlink formula with style and note in
// one batch update.
func (g *Google) WriteCell(ctx context.Context, ref linkproc.SheetRef, u linkproc.CellUpdate) error {
	formula := HyperlinkFormula(u.URL, u.Text)
	cell := &sheets.CellData{
		UserEnteredValue: &sheets.ExtendedValue{FormulaValue: &formula},
		UserEnteredFormat: &sheets.CellFormat{
			BackgroundColor: hexColor(u.Style.Background),
			TextFormat: &sheets.TextFormat{
				ForegroundColor: hexColor(u.Style.Foreground),
				Bold:            u.Style.Bold,
			},
		},
		Note: u.Note,
	}
	return g.updateCell(ctx, ref, u.Row, u.Col, cell, formattedFields)
}

// WriteValue writes the hyperlink formula alone, through the values API.
func (g *Google) WriteValue(ctx context.Context, ref linkproc.SheetRef, row, col int, text, url string) error {
	_, err := g.svc.Spreadsheets.Values.Update(ref.SpreadsheetID, A1Range(ref.SheetName, row, col), &sheets.ValueRange{
		Values: [][]any{{HyperlinkFormula(url, text)}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheetsvc: update value %s: %w", A1Range(ref.SheetName, row, col), err)
	}
	return nil
}

// WriteNote replaces the note of one cell.
func (g *Google) WriteNote(ctx context.Context, ref linkproc.SheetRef, row, col int, note string) error {
	return g.updateCell(ctx, ref, row, col, &sheets.CellData{Note: note}, "note")
}

func (g *Google) updateCell(ctx context.Context, ref linkproc.SheetRef, row, col int, cell *sheets.CellData, fields string) error {
	sid, err := g.sheetID(ctx, ref)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		UpdateCells: &sheets.UpdateCellsRequest{
			Start:  &sheets.GridCoordinate{SheetId: sid, RowIndex: int64(row), ColumnIndex: int64(col)},
			Rows:   []*sheets.RowData{{Values: []*sheets.CellData{cell}}},
			Fields: fields,
		},
	}}}
	if _, err := g.svc.Spreadsheets.BatchUpdate(ref.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheetsvc: update cells %s: %w", A1Range(ref.SheetName, row, col), err)
	}
	return nil
}

func (g *Google) sheetID(ctx context.Context, ref linkproc.SheetRef) (int64, error) {
	key := ref.SpreadsheetID + "\x00" + ref.SheetName
	g.mu.Lock()
	id, ok := g.ids[key]
	g.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := g.svc.Spreadsheets.Get(ref.SpreadsheetID).Fields(propsFields).Context(ctx).Do()
	if err != nil {
		return 0, getError(ref.SpreadsheetID, err)
	}
	sh := findSheet(ss.Sheets, ref.SheetName)
	if sh == nil {
		return 0, fmt.Errorf("%w: %q", ErrSheetNotFound, ref.SheetName)
	}
	g.remember(ref, sh.Properties.SheetId)
	return sh.Properties.SheetId, nil
}

// getError wraps a spreadsheet fetch failure. A 404 from the API means the
// spreadsheet is gone or not shared with the service account.
func getError(spreadsheetID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("sheetsvc: get %s: %w", spreadsheetID, ErrSheetNotFound)
	}
	return fmt.Errorf("sheetsvc: get %s: %w", spreadsheetID, err)
}

func (g *Google) remember(ref linkproc.SheetRef, id int64) {
	g.mu.Lock()
	g.ids[ref.SpreadsheetID+"\x00"+ref.SheetName] = id
	g.mu.Unlock()
}

// hexColor converts #RRGGBB to a Sheets color. Invalid input gives nil,
// which leaves the color untouched.
func hexColor(hex string) *sheets.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return nil
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil
	}
	return &sheets.Color{
		Red:   float64(v>>16&0xff) / 255,
		Green: float64(v>>8&0xff) / 255,
		Blue:  float64(v&0xff) / 255,
	}
}
