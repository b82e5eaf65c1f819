// CLAUDE:SUMMARY Registers coursesync service handlers (process, scan, list sheets) on a connectivity Router.
package coursesync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/coursesync/connectivity"
)

// RegisterConnectivity registers coursesync service handlers on a
// connectivity Router so other services can trigger runs.
//
// Registered services:
//
//	coursesync_process_sheet  run the link pipeline over a sheet
//	coursesync_scan_sheet     preview the links of a sheet
//	coursesync_list_sheets    list registered sheets
func (s *Service) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("coursesync_process_sheet", s.handleProcessCall)
	router.RegisterLocal("coursesync_scan_sheet", s.handleScanCall)
	router.RegisterLocal("coursesync_list_sheets", s.handleListSheetsCall)
}

func (s *Service) handleProcessCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req sheetReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if req.SheetID == "" {
		return nil, errSheetIDRequired
	}
	res, err := s.ProcessSheet(ctx, req.SheetID, req.TestDriveLink)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Service) handleScanCall(ctx context.Context, payload []byte) ([]byte, error) {
	var req sheetReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if req.SheetID == "" {
		return nil, errSheetIDRequired
	}
	res, err := s.ScanSheet(ctx, req.SheetID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Service) handleListSheetsCall(ctx context.Context, _ []byte) ([]byte, error) {
	sheets, err := s.ListSheets(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sheets)
}
