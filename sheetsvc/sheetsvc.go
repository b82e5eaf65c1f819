// CLAUDE:SUMMARY Sheet service adapters for the link pipeline: Google Sheets v4 and local .xlsx workbooks.
// Package sheetsvc implements linkproc.SheetService over Google Sheets
// (Google) and over a local Excel workbook (XLSX).
package sheetsvc

import (
	"errors"
	"regexp"
	"strings"

	"github.com/hazyhaar/coursesync/linkproc"
)

// ErrSheetNotFound is returned when the named tab does not exist.
var ErrSheetNotFound = errors.New("sheetsvc: sheet not found")

// HyperlinkFormula builds the cell formula linking text to url.
func HyperlinkFormula(url, text string) string {
	if text == "" || text == url {
		return `=HYPERLINK("` + escapeFormula(url) + `")`
	}
	return `=HYPERLINK("` + escapeFormula(url) + `","` + escapeFormula(text) + `")`
}

func escapeFormula(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

var hyperlinkFormulaRe = regexp.MustCompile(`(?i)^\s*=\s*HYPERLINK\s*\(\s*"((?:[^"]|"")+)"`)

// LinkFromFormula extracts the target of a =HYPERLINK() formula.
func LinkFromFormula(formula string) (string, bool) {
	m := hyperlinkFormulaRe.FindStringSubmatch(formula)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], `""`, `"`), true
}

// A1Range is the A1 reference of one cell of sheet, with the sheet name
// quoted.
func A1Range(sheet string, row, col int) string {
	cell := linkproc.CellName(row, col)
	if sheet == "" {
		return cell
	}
	return A1Sheet(sheet) + "!" + cell
}

// A1Sheet quotes a tab title for use as a range.
func A1Sheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

var _ linkproc.SheetService = (*Google)(nil)
var _ linkproc.SheetService = (*XLSX)(nil)
