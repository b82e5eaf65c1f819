// CLAUDE:SUMMARY HTTP API for coursesync: chi routes for sheets, runs, processing trigger, route admin, health, metrics and MCP.
package coursesync

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursesync/connectivity"
	"github.com/hazyhaar/coursesync/metrics"
	"github.com/hazyhaar/coursesync/sheetsvc"
	"github.com/hazyhaar/coursesync/shield"
)

// Handler returns the HTTP API behind the shield stack. rl may be nil.
//
//	POST   /api/sheets/{sheetID}/process-all-links
//	GET    /api/sheets/{sheetID}/scan
//	GET    /api/sheets               POST /api/sheets
//	GET    /api/sheets/{sheetID}     DELETE /api/sheets/{sheetID}
//	GET    /api/sheets/{sheetID}/runs
//	GET    /api/runs/{runID}
//	GET    /api/routes               PUT/DELETE /api/routes/{service}
//	GET    /api/services
//	GET    /health  GET /metrics  /mcp
func (s *Service) Handler(rl *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(rl) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok", "sheets_backend": s.backends.Sheets != nil})
	})
	r.Handle("/metrics", metrics.Handler())

	srv := mcp.NewServer(&mcp.Implementation{Name: "coursesync", Version: "1.0.0"}, nil)
	s.RegisterMCP(srv)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	r.Route("/api/sheets", func(r chi.Router) {
		r.Get("/", s.handleListSheets)
		r.Post("/", s.handleRegisterSheet)
		r.Get("/{sheetID}", s.handleGetSheet)
		r.Delete("/{sheetID}", s.handleDeleteSheet)
		r.Get("/{sheetID}/runs", s.handleListRuns)
		r.Get("/{sheetID}/scan", s.handleScan)
		r.Post("/{sheetID}/process-all-links", s.handleProcess)
	})
	r.Get("/api/runs/{runID}", s.handleGetRun)

	r.Get("/api/routes", s.handleListRoutes)
	r.Put("/api/routes/{service}", s.handleUpsertRoute)
	r.Delete("/api/routes/{service}", s.handleDeleteRoute)
	r.Get("/api/services", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, s.router.Services())
	})
	return r
}

type processRequest struct {
	TestDriveLink string `json:"testDriveLink,omitempty"`
}

func (s *Service) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, 400, err)
		return
	}
	res, err := s.ProcessSheet(r.Context(), chi.URLParam(r, "sheetID"), req.TestDriveLink)
	if err != nil {
		shield.GetLogger(r.Context()).Warn("coursesync: process failed", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Service) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.ScanSheet(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Service) handleListSheets(w http.ResponseWriter, r *http.Request) {
	list, err := s.ListSheets(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, list)
}

func (s *Service) handleRegisterSheet(w http.ResponseWriter, r *http.Request) {
	var in SheetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, 400, err)
		return
	}
	sh, err := s.RegisterSheet(r.Context(), in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 201, sh)
}

func (s *Service) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	sh, err := s.GetSheet(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, sh)
}

func (s *Service) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteSheet(r.Context(), chi.URLParam(r, "sheetID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ListRuns(r.Context(), chi.URLParam(r, "sheetID"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, runs)
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, run)
}

func (s *Service) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.admin.ListRoutes(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if routes == nil {
		routes = []connectivity.RouteRow{}
	}
	writeJSON(w, 200, routes)
}

func (s *Service) handleUpsertRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string          `json:"strategy"`
		Endpoint string          `json:"endpoint"`
		Config   json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	service := chi.URLParam(r, "service")
	if err := s.admin.UpsertRoute(r.Context(), service, req.Strategy, req.Endpoint, req.Config); err != nil {
		writeError(w, 400, err)
		return
	}
	route, err := s.admin.GetRoute(r.Context(), service)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, route)
}

func (s *Service) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteRoute(r.Context(), chi.URLParam(r, "service")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// statusFor maps service errors to HTTP status codes. A registered sheet
// whose spreadsheet or tab is gone upstream is a 404. Anything unexpected,
// including missing credentials and an empty sheet, is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSheetNotFound), errors.Is(err, sheetsvc.ErrSheetNotFound),
		errors.Is(err, ErrRunNotFound), errors.Is(err, connectivity.ErrRouteNotFound):
		return 404
	case errors.Is(err, ErrRunInProgress), errors.Is(err, ErrSheetExists):
		return 409
	case errors.Is(err, ErrInvalidSheet):
		return 400
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
