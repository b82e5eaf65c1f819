package linkproc

import (
	"net/url"
	"regexp"
	"strings"
)

// URLShape is one supported file-store URL layout.
type URLShape struct {
	Name string
	// Hint is the category implied by the shape alone, or "" when the shape
	// says nothing about the content.
	Hint FileCategory
	re   *regexp.Regexp
}

// idChars is the alphabet of file-store resource ids.
const idChars = `[A-Za-z0-9_-]`

// shapes is the single table of supported URL layouts, matched in order.
var shapes = []URLShape{
	{Name: "file", re: regexp.MustCompile(`/file/(?:u/\d+/)?d/(` + idChars + `+)`)},
	{Name: "folder", Hint: CategoryFolder, re: regexp.MustCompile(`/drive/(?:u/\d+/)?folders/(` + idChars + `+)`)},
	{Name: "document", Hint: CategoryDocument, re: regexp.MustCompile(`/document/(?:u/\d+/)?d/(` + idChars + `+)`)},
	{Name: "spreadsheet", Hint: CategorySpreadsheet, re: regexp.MustCompile(`/spreadsheets/(?:u/\d+/)?d/(` + idChars + `+)`)},
	{Name: "presentation", Hint: CategoryPresentation, re: regexp.MustCompile(`/presentation/(?:u/\d+/)?d/(` + idChars + `+)`)},
	{Name: "form", re: regexp.MustCompile(`/forms/(?:u/\d+/)?d/(?:e/)?(` + idChars + `+)`)},
	{Name: "query", re: regexp.MustCompile(`[?&]id=(` + idChars + `+)`)},
}

var storeHosts = map[string]bool{
	"drive.google.com": true,
	"docs.google.com":  true,
}

// ExtractResourceID returns the resource id embedded in rawURL and the shape
// that matched.
func ExtractResourceID(rawURL string) (string, URLShape, bool) {
	for _, s := range shapes {
		if m := s.re.FindStringSubmatch(rawURL); m != nil {
			return m[1], s, true
		}
	}
	return "", URLShape{}, false
}

// IsStoreURL reports whether rawURL is a file-store link this pipeline
// handles: a known host and a known shape.
func IsStoreURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !storeHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	_, _, ok := ExtractResourceID(rawURL)
	return ok
}

// IsFolderURL reports whether rawURL has a folder shape.
func IsFolderURL(rawURL string) bool {
	_, s, ok := ExtractResourceID(rawURL)
	return ok && s.Hint == CategoryFolder
}

// FileViewURL is the canonical view link of a file id.
func FileViewURL(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view"
}

// FolderViewURL is the canonical view link of a folder id.
func FolderViewURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}

// KeyFor derives the deduplication key of rawURL.
func KeyFor(rawURL string) ResourceKey {
	if id, _, ok := ExtractResourceID(rawURL); ok {
		return ResourceKey(id)
	}
	return ResourceKey(rawURL)
}
