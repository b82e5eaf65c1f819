// CLAUDE:SUMMARY Registers coursesync MCP tools: process, scan, register and list sheets, list runs, plus the linkproc link tools.
package coursesync

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursesync/kit"
	"github.com/hazyhaar/coursesync/linkproc"
)

// RegisterMCP registers coursesync tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerProcessTool(srv)
	s.registerScanTool(srv)
	s.registerRegisterSheetTool(srv)
	s.registerListSheetsTool(srv)
	s.registerListRunsTool(srv)
	linkproc.RegisterMCP(srv, linkproc.NewClassifier(s.backends.Metadata, s.logger))
}

var errSheetIDRequired = errors.New("sheet_id is required")

type sheetReq struct {
	SheetID       string `json:"sheet_id"`
	TestDriveLink string `json:"test_drive_link,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

var sheetIDProp = map[string]any{"type": "string", "description": "Registered sheet id (sht_...)"}

func (s *Service) registerProcessTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursesync_process_sheet",
		Description: "Re-host every Drive link of a registered course sheet and write the new links back. Returns the run report.",
		InputSchema: kit.InputSchema(map[string]any{
			"sheet_id":        sheetIDProp,
			"test_drive_link": map[string]any{"type": "string", "description": "Link injected at A2 when the sheet has no link (debug aid)"},
		}, []string{"sheet_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sheetReq)
		if r.SheetID == "" {
			return nil, errSheetIDRequired
		}
		return s.ProcessSheet(ctx, r.SheetID, r.TestDriveLink)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[sheetReq](), kit.Logging(s.logger, tool.Name))
}

func (s *Service) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursesync_scan_sheet",
		Description: "List the links a run would process, grouped and classified, without changing the sheet.",
		InputSchema: kit.InputSchema(map[string]any{"sheet_id": sheetIDProp}, []string{"sheet_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sheetReq)
		if r.SheetID == "" {
			return nil, errSheetIDRequired
		}
		return s.ScanSheet(ctx, r.SheetID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[sheetReq](), kit.Logging(s.logger, tool.Name))
}

func (s *Service) registerRegisterSheetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursesync_register_sheet",
		Description: "Register a spreadsheet tab for processing.",
		InputSchema: kit.InputSchema(map[string]any{
			"spreadsheet_id": map[string]any{"type": "string"},
			"sheet_name":     map[string]any{"type": "string", "description": "Tab title; empty means the first tab"},
			"name":           map[string]any{"type": "string"},
			"course_name":    map[string]any{"type": "string", "description": "Course label passed to the processors"},
		}, []string{"spreadsheet_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.RegisterSheet(ctx, *req.(*SheetInput))
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[SheetInput](), kit.Logging(s.logger, tool.Name))
}

func (s *Service) registerListSheetsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursesync_list_sheets",
		Description: "List registered course sheets.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		sheets, err := s.ListSheets(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sheets": sheets}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[struct{}](), kit.Logging(s.logger, tool.Name))
}

func (s *Service) registerListRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "coursesync_list_runs",
		Description: "List the processing runs of a sheet, most recent first.",
		InputSchema: kit.InputSchema(map[string]any{
			"sheet_id": sheetIDProp,
			"limit":    map[string]any{"type": "integer", "description": "Max runs (default 50)"},
		}, []string{"sheet_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sheetReq)
		if r.SheetID == "" {
			return nil, errSheetIDRequired
		}
		runs, err := s.ListRuns(ctx, r.SheetID, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[sheetReq](), kit.Logging(s.logger, tool.Name))
}
