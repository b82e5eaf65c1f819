package linkproc

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// Classification is the classifier verdict for one group.
type Classification struct {
	Category    FileCategory `json:"category"`
	Description string       `json:"description"`
	MimeType    string       `json:"mimeType,omitempty"`
	Name        string       `json:"name,omitempty"`
	// Source is "metadata", "extension", "shape" or "default".
	Source string `json:"source"`
}

// FolderMIME is the file store's folder MIME type.
const FolderMIME = "application/vnd.google-apps.folder"

var descriptions = map[FileCategory]string{
	CategoryFolder:       "Thư mục",
	CategoryPDF:          "Tài liệu PDF",
	CategoryVideo:        "Video",
	CategoryImage:        "Hình ảnh",
	CategoryDocument:     "Tài liệu",
	CategorySpreadsheet:  "Bảng tính",
	CategoryPresentation: "Bản trình chiếu",
	CategoryAudio:        "Âm thanh",
	CategoryArchive:      "Tệp nén",
	CategoryOther:        "Tệp khác",
}

// Describe returns the human label of a category.
func Describe(c FileCategory) string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return descriptions[CategoryOther]
}

var nativeMIME = map[string]FileCategory{
	FolderMIME:                                 CategoryFolder,
	"application/vnd.google-apps.document":     CategoryDocument,
	"application/vnd.google-apps.spreadsheet":  CategorySpreadsheet,
	"application/vnd.google-apps.presentation": CategoryPresentation,
	"application/vnd.google-apps.video":        CategoryVideo,
	"application/vnd.google-apps.audio":        CategoryAudio,
	"application/vnd.google-apps.photo":        CategoryImage,
	"application/vnd.google-apps.drawing":      CategoryImage,
}

// CategoryFromMIME maps a MIME type to a category. The second result is
// false for generic types (empty or octet-stream) that say nothing about the
// content.
func CategoryFromMIME(mime string) (FileCategory, bool) {
	m := strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if isGenericMIME(m) {
		return CategoryOther, false
	}
	if c, ok := nativeMIME[m]; ok {
		return c, true
	}
	switch {
	case strings.Contains(m, "folder"):
		return CategoryFolder, true
	case strings.Contains(m, "pdf"):
		return CategoryPDF, true
	case strings.HasPrefix(m, "video/"):
		return CategoryVideo, true
	case strings.HasPrefix(m, "image/"):
		return CategoryImage, true
	case strings.HasPrefix(m, "audio/"):
		return CategoryAudio, true
	case containsAny(m, "spreadsheet", "csv", "excel"):
		return CategorySpreadsheet, true
	case containsAny(m, "presentation", "powerpoint"):
		return CategoryPresentation, true
	case containsAny(m, "document", "word", "text"):
		return CategoryDocument, true
	case containsAny(m, "zip", "archive", "compressed", "x-rar", "x-7z", "x-tar", "gzip"):
		return CategoryArchive, true
	}
	return CategoryOther, true
}

func isGenericMIME(m string) bool {
	return m == "" || m == "application/octet-stream" || m == "binary/octet-stream" || m == "application/unknown"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var extensions = map[string]FileCategory{}

func init() {
	sets := map[FileCategory][]string{
		CategoryPDF:          {"pdf"},
		CategoryVideo:        {"mp4", "mov", "avi", "mkv", "webm", "m4v", "wmv", "flv", "mpeg", "mpg", "3gp"},
		CategoryImage:        {"jpg", "jpeg", "png", "gif", "bmp", "webp", "svg", "tif", "tiff", "heic"},
		CategoryAudio:        {"mp3", "wav", "m4a", "aac", "ogg", "flac", "wma"},
		CategorySpreadsheet:  {"xls", "xlsx", "xlsm", "csv", "ods", "tsv"},
		CategoryPresentation: {"ppt", "pptx", "pps", "ppsx", "odp", "key"},
		CategoryDocument:     {"doc", "docx", "odt", "rtf", "txt", "md", "pages"},
		CategoryArchive:      {"zip", "rar", "7z", "tar", "gz", "tgz", "bz2", "xz"},
	}
	for cat, exts := range sets {
		for _, e := range exts {
			extensions[e] = cat
		}
	}
}

// CategoryFromExtension classifies a file name or URL path by its suffix.
func CategoryFromExtension(name string) (FileCategory, bool) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	if ext == "" {
		return CategoryOther, false
	}
	c, ok := extensions[ext]
	return c, ok
}

// Classifier assigns a FileCategory to a group. It never fails: an
// unresolvable resource is "other".
type Classifier struct {
	meta   MetadataService
	logger *slog.Logger
}

// NewClassifier creates a classifier. meta may be nil for offline use.
func NewClassifier(meta MetadataService, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{meta: meta, logger: logger}
}

// Classify resolves the group's resource. Order: metadata MIME type, then
// the metadata file name extension, then the URL suffix, then URL shape,
// then "other". A panicking MetadataService degrades to "other".
func (c *Classifier) Classify(ctx context.Context, g LinkGroup) (out Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "linkproc: classifier panic",
				"resource_id", g.ResourceID, "panic", fmt.Sprint(r))
			out = c.done(Classification{}, CategoryOther, "default")
		}
	}()
	var res Classification
	if c.meta != nil && g.ResourceID != "" {
		meta, err := c.meta.Metadata(ctx, g.ResourceID)
		if err != nil {
			c.logger.DebugContext(ctx, "linkproc: metadata lookup failed",
				"resource_id", g.ResourceID, "error", err)
		} else if meta != nil {
			res.MimeType, res.Name = meta.MimeType, meta.Name
			if cat, ok := CategoryFromMIME(meta.MimeType); ok {
				return c.done(res, cat, "metadata")
			}
			if cat, ok := CategoryFromExtension(meta.Name); ok {
				return c.done(res, cat, "extension")
			}
		}
	}

	if cat, ok := CategoryFromExtension(urlPath(g.OriginalURL)); ok {
		return c.done(res, cat, "extension")
	}
	if cat, ok := CategoryFromExtension(g.OriginalURL); ok {
		return c.done(res, cat, "extension")
	}
	if _, shape, ok := ExtractResourceID(g.OriginalURL); ok && shape.Hint != "" {
		return c.done(res, shape.Hint, "shape")
	}
	return c.done(res, CategoryOther, "default")
}

func (c *Classifier) done(res Classification, cat FileCategory, source string) Classification {
	res.Category = cat
	res.Description = Describe(cat)
	res.Source = source
	return res
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}
