// CLAUDE:SUMMARY Core types of the link pipeline: grid snapshot, candidates, groups, categories, outcomes and collaborator interfaces.
package linkproc

import (
	"context"
	"errors"
)

// ErrNoData is returned when the sheet has no cells at all.
var ErrNoData = errors.New("linkproc: sheet has no data")

// SheetRef names one sheet of one spreadsheet (or one workbook tab).
type SheetRef struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name"`
}

// RichCell is the per-cell metadata the extractor needs.
type RichCell struct {
	Hyperlink string
	Note      string
}

// Grid is an immutable snapshot of a sheet: display values and a parallel,
// possibly shorter or sparse, grid of rich metadata.
type Grid struct {
	Values [][]string
	Rich   [][]*RichCell
}

// RichAt returns the rich metadata of a cell, or nil.
func (g *Grid) RichAt(row, col int) *RichCell {
	if row < 0 || row >= len(g.Rich) || col < 0 || col >= len(g.Rich[row]) {
		return nil
	}
	return g.Rich[row][col]
}

// Empty reports whether the grid holds no cells.
func (g *Grid) Empty() bool {
	for _, row := range g.Values {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// LinkCandidate is one cell carrying a file-store link. Row and Col are
// 0-based grid coordinates.
type LinkCandidate struct {
	Row           int    `json:"row"`
	Col           int    `json:"col"`
	RawText       string `json:"rawText"`
	URL           string `json:"url"`
	LowConfidence bool   `json:"lowConfidence,omitempty"`
}

// ResourceKey identifies a linked resource: the extracted file id, or the
// raw URL when no id could be extracted.
type ResourceKey string

// LinkGroup is every cell pointing at one resource. Cells is never empty.
type LinkGroup struct {
	Key         ResourceKey
	ResourceID  string
	OriginalURL string
	Cells       []LinkCandidate
}

// FileCategory is the processing family of a resource.
type FileCategory string

const (
	CategoryFolder       FileCategory = "folder"
	CategoryPDF          FileCategory = "pdf"
	CategoryVideo        FileCategory = "video"
	CategoryImage        FileCategory = "image"
	CategoryDocument     FileCategory = "document"
	CategorySpreadsheet  FileCategory = "spreadsheet"
	CategoryPresentation FileCategory = "presentation"
	CategoryAudio        FileCategory = "audio"
	CategoryArchive      FileCategory = "archive"
	CategoryOther        FileCategory = "other"
)

// Categories lists every FileCategory.
var Categories = []FileCategory{
	CategoryFolder, CategoryPDF, CategoryVideo, CategoryImage, CategoryDocument,
	CategorySpreadsheet, CategoryPresentation, CategoryAudio, CategoryArchive, CategoryOther,
}

// ProcessOutcome is the normalized result of processing one group.
// When KeepOriginalURL is set or Success is false, no cell of the group is
// written.
type ProcessOutcome struct {
	Success         bool         `json:"success"`
	NewURL          string       `json:"newUrl,omitempty"`
	KeepOriginalURL bool         `json:"keepOriginalUrl"`
	Error           string       `json:"error,omitempty"`
	Category        FileCategory `json:"fileCategory"`
	Detail          string       `json:"processDetail,omitempty"`
	Partial         bool         `json:"partial,omitempty"`
	NestedErrors    []string     `json:"nestedErrors,omitempty"`
}

// Applies reports whether the outcome should be written to the sheet.
func (o ProcessOutcome) Applies() bool {
	return o.Success && !o.KeepOriginalURL && o.NewURL != ""
}

func keepOriginal(cat FileCategory, msg, detail string) ProcessOutcome {
	return ProcessOutcome{
		Success:         false,
		KeepOriginalURL: true,
		Error:           msg,
		Category:        cat,
		Detail:          detail,
	}
}

// CellStyle is the highlight applied to processed cells. Colors are #RRGGBB.
type CellStyle struct {
	Background string
	Foreground string
	Bold       bool
}

// ProcessedStyle flags a cell as processed.
var ProcessedStyle = CellStyle{Background: "#D9EAD3", Foreground: "#1155CC", Bold: true}

// CellUpdate is one formatted write: display text, hyperlink, style and note.
type CellUpdate struct {
	Row   int
	Col   int
	Text  string
	URL   string
	Note  string
	Style CellStyle
}

// SheetService reads and writes the backing spreadsheet.
type SheetService interface {
	ReadGrid(ctx context.Context, ref SheetRef) (*Grid, error)
	// WriteCell performs the formatted write: value, hyperlink, style, note.
	WriteCell(ctx context.Context, ref SheetRef, u CellUpdate) error
	// WriteValue writes only the text and hyperlink.
	WriteValue(ctx context.Context, ref SheetRef, row, col int, text, url string) error
	// WriteNote writes only the note.
	WriteNote(ctx context.Context, ref SheetRef, row, col int, note string) error
}

// FileMeta is what the file store knows about a resource.
type FileMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	WebViewLink string `json:"webViewLink,omitempty"`
}

// MetadataService resolves resource ids.
type MetadataService interface {
	Metadata(ctx context.Context, id string) (*FileMeta, error)
}

// FolderStore is the part of the file store the folder processor needs.
type FolderStore interface {
	ListChildren(ctx context.Context, folderID string) ([]FileMeta, error)
	// CreateFolder creates name under parentID ("" for the root) and returns it.
	CreateFolder(ctx context.Context, name, parentID string) (*FileMeta, error)
}

// ServiceCaller invokes a named processing service. connectivity.Router
// implements it.
type ServiceCaller interface {
	Call(ctx context.Context, service string, payload []byte) ([]byte, error)
}
