package linkproc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursesync/kit"
)

// RegisterMCP registers the link inspection tools on srv. c classifies
// through its metadata service when it has one; nil means offline.
func RegisterMCP(srv *mcp.Server, c *Classifier) {
	if c == nil {
		c = NewClassifier(nil, nil)
	}
	registerClassifyTool(srv, c)
	registerExtractIDsTool(srv, c.logger)
}

type classifyReq struct {
	URL string `json:"url"`
}

// URLInfo describes one link.
type URLInfo struct {
	URL            string         `json:"url"`
	ResourceID     string         `json:"resourceId,omitempty"`
	IsStoreURL     bool           `json:"isStoreUrl"`
	Classification Classification `json:"classification"`
}

func registerClassifyTool(srv *mcp.Server, c *Classifier) {
	tool := &mcp.Tool{
		Name:        "linkproc_classify_url",
		Description: "Classify a Google Drive/Docs link into a file category (folder, pdf, video, image, document, spreadsheet, presentation, audio, archive, other).",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Link to classify"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*classifyReq)
		if r.URL == "" {
			return nil, errors.New("url is required")
		}
		return ClassifyURL(ctx, c, r.URL), nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[classifyReq](), kit.Logging(c.logger, tool.Name))
}

// ClassifyURL classifies a single link as the pipeline would.
func ClassifyURL(ctx context.Context, c *Classifier, rawURL string) URLInfo {
	id, _, _ := ExtractResourceID(rawURL)
	g := LinkGroup{Key: KeyFor(rawURL), ResourceID: id, OriginalURL: rawURL}
	return URLInfo{
		URL:            rawURL,
		ResourceID:     id,
		IsStoreURL:     IsStoreURL(rawURL),
		Classification: c.Classify(ctx, g),
	}
}

type extractIDsReq struct {
	Text string   `json:"text"`
	URLs []string `json:"urls"`
}

type extractedID struct {
	URL        string `json:"url"`
	ResourceID string `json:"resourceId,omitempty"`
	Shape      string `json:"shape,omitempty"`
	IsStoreURL bool   `json:"isStoreUrl"`
}

func registerExtractIDsTool(srv *mcp.Server, logger *slog.Logger) {
	tool := &mcp.Tool{
		Name:        "linkproc_extract_ids",
		Description: "Extract file-store resource ids from a list of URLs or from free text.",
		InputSchema: kit.InputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Free text to scan for links"},
			"urls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*extractIDsReq)
		urls := append([]string(nil), r.URLs...)
		for _, m := range urlRe.FindAllString(r.Text, -1) {
			urls = append(urls, trimURL(m))
		}
		out := make([]extractedID, 0, len(urls))
		for _, u := range urls {
			id, shape, _ := ExtractResourceID(u)
			out = append(out, extractedID{URL: u, ResourceID: id, Shape: shape.Name, IsStoreURL: IsStoreURL(u)})
		}
		return map[string]any{"ids": out}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[extractIDsReq](), kit.Logging(logger, tool.Name))
}
