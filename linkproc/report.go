package linkproc

import (
	"time"

	"github.com/xuri/excelize/v2"
)

// ProcessedCell records one cell rewritten during a run. Row and Col are
// 1-based sheet coordinates.
type ProcessedCell struct {
	Row             int          `json:"row"`
	Col             int          `json:"col"`
	Cell            string       `json:"cell"`
	OriginalText    string       `json:"originalText"`
	OriginalURL     string       `json:"originalUrl"`
	NewURL          string       `json:"newUrl"`
	FileCategory    FileCategory `json:"fileCategory"`
	ProcessDetail   string       `json:"processDetail,omitempty"`
	SharedWithCells int          `json:"sharedWithCells"`
	LowConfidence   bool         `json:"lowConfidence,omitempty"`
	Partial         bool         `json:"partial,omitempty"`
	NestedErrors    []string     `json:"nestedErrors,omitempty"`
}

// CellError records one cell left unchanged (or, with WriteError, written
// inconsistently) during a run.
type CellError struct {
	Row          int          `json:"row"`
	Col          int          `json:"col"`
	Cell         string       `json:"cell"`
	OriginalText string       `json:"originalText"`
	OriginalURL  string       `json:"originalUrl"`
	FileCategory FileCategory `json:"fileCategory,omitempty"`
	Error        string       `json:"error"`
	NoChangeMade bool         `json:"noChangeMade"`
	WriteError   bool         `json:"writeError,omitempty"`
	ManualReview bool         `json:"manualReview,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// RunReport is the result of one pipeline run.
// TotalCells == len(ProcessedCells) + len(Errors).
type RunReport struct {
	TotalCells     int             `json:"totalCells"`
	UniqueLinks    int             `json:"uniqueLinks"`
	Processed      int             `json:"processed"`
	Failed         int             `json:"failed"`
	ProcessedCells []ProcessedCell `json:"processedCells"`
	Errors         []CellError     `json:"errors"`
	Timestamp      time.Time       `json:"timestamp"`
}

func newReport(groups []LinkGroup) *RunReport {
	return &RunReport{
		TotalCells:     CellCount(groups),
		UniqueLinks:    len(groups),
		ProcessedCells: []ProcessedCell{},
		Errors:         []CellError{},
	}
}

func (r *RunReport) addProcessed(pc ProcessedCell) {
	r.ProcessedCells = append(r.ProcessedCells, pc)
	r.Processed = len(r.ProcessedCells)
}

func (r *RunReport) addError(ce CellError) {
	r.Errors = append(r.Errors, ce)
	r.Failed = len(r.Errors)
}

// CellName converts 0-based grid coordinates to an A1 reference.
func CellName(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return name
}
