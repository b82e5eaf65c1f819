package linkproc

import (
	"log/slog"
	"regexp"
	"strings"
)

// Markers written into the note of a processed cell. Either one latches the
// cell as done for every later run.
const (
	MarkerOriginalLink = "Link gốc:"
	MarkerProcessedAt  = "Đã xử lý lúc:"
)

var (
	urlRe     = regexp.MustCompile(`https?://\S+`)
	idTokenRe = regexp.MustCompile(idChars + `{25,}`)
)

// IsProcessedNote reports whether note carries a processed marker.
func IsProcessedNote(note string) bool {
	return strings.Contains(note, MarkerOriginalLink) || strings.Contains(note, MarkerProcessedAt)
}

// Extract scans grid for file-store links. Row 0 is the header and is
// skipped. A cell yields at most one candidate: its rich hyperlink, else the
// first URL in its text, else a file-view URL synthesized from an id-like
// token (flagged LowConfidence). Only store-shaped URLs are kept.
func Extract(grid *Grid, logger *slog.Logger) []LinkCandidate {
	if logger == nil {
		logger = slog.Default()
	}
	var out []LinkCandidate
	for r := 1; r < len(grid.Values); r++ {
		for c, text := range grid.Values[r] {
			cand, ok := extractCell(grid, r, c, text, logger)
			if ok {
				out = append(out, cand)
			}
		}
	}
	return out
}

func extractCell(grid *Grid, r, c int, text string, logger *slog.Logger) (cand LinkCandidate, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("linkproc: skipping malformed cell", "row", r, "col", c, "panic", rec)
			ok = false
		}
	}()

	rich := grid.RichAt(r, c)
	if strings.TrimSpace(text) == "" {
		return LinkCandidate{}, false
	}
	if rich != nil && IsProcessedNote(rich.Note) {
		return LinkCandidate{}, false
	}

	cand = LinkCandidate{Row: r, Col: c, RawText: text}
	switch {
	case rich != nil && rich.Hyperlink != "":
		cand.URL = rich.Hyperlink
	default:
		if m := urlRe.FindString(text); m != "" {
			cand.URL = trimURL(m)
		} else if tok := idTokenRe.FindString(text); tok != "" {
			cand.URL = FileViewURL(tok)
			cand.LowConfidence = true
		}
	}
	if cand.URL == "" || !IsStoreURL(cand.URL) {
		return LinkCandidate{}, false
	}
	return cand, true
}

// trimURL drops punctuation that commonly trails a URL pasted into prose.
func trimURL(u string) string {
	return strings.TrimRight(u, `)],.;:!?"'>`)
}
