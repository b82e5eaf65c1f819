// CLAUDE:SUMMARY Main coursesync orchestrator: wires store, run lock, router, Google backends and runs the link pipeline per sheet.
// Package coursesync is the course-material re-hosting service.
//
// A registered sheet is processed on demand: every Drive link in it is
// classified, re-hosted through the processing services and written back.
//
//	sheet registry → lock → linkproc.Pipeline → runs history + metrics
//
// Usage:
//
//	svc, err := coursesync.New(cfg, logger, coursesync.WithBackends(b))
//	defer svc.Close()
//	svc.Start(ctx)
//	svc.RegisterMCP(mcpServer)
//	http.Handle("/", svc.Handler())
package coursesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/coursesync/connectivity"
	"github.com/hazyhaar/coursesync/coursesync/internal/store"
	"github.com/hazyhaar/coursesync/drivestore"
	"github.com/hazyhaar/coursesync/horosafe"
	"github.com/hazyhaar/coursesync/idgen"
	"github.com/hazyhaar/coursesync/kit"
	"github.com/hazyhaar/coursesync/linkproc"
	"github.com/hazyhaar/coursesync/metrics"
	"github.com/hazyhaar/coursesync/rehost"
	"github.com/hazyhaar/coursesync/sheetsvc"
)

var (
	// ErrSheetNotFound is returned for an unknown sheet id.
	ErrSheetNotFound = errors.New("coursesync: sheet not found")
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("coursesync: run not found")
	// ErrInvalidSheet is returned when a registration lacks a valid spreadsheet id.
	ErrInvalidSheet = errors.New("coursesync: invalid sheet")
	// ErrSheetExists is returned when the spreadsheet tab is already registered.
	ErrSheetExists = errors.New("coursesync: sheet already registered")
	// ErrNoCredentials is returned when no sheet backend is configured.
	ErrNoCredentials = sheetsvc.ErrNoCredentials
)

// Sheet and Run are the persisted records.
type (
	Sheet = store.Sheet
	Run   = store.Run
)

// Backends are the external collaborators of a run. Sheets is required to
// process; the others degrade the pipeline when nil.
type Backends struct {
	Sheets   linkproc.SheetService
	Metadata linkproc.MetadataService
	Folders  linkproc.FolderStore
	// Files backs the in-process processing services.
	Files rehost.Store
}

// GoogleBackends builds Sheets and Drive backends authenticated as creds.
func GoogleBackends(ctx context.Context, creds sheetsvc.Credentials, logger *slog.Logger) (Backends, error) {
	if !creds.Configured() {
		return Backends{}, ErrNoCredentials
	}
	opts, err := creds.ClientOptions(ctx)
	if err != nil {
		return Backends{}, err
	}
	sheets, err := sheetsvc.NewGoogle(ctx, logger, opts...)
	if err != nil {
		return Backends{}, err
	}
	drive, err := drivestore.New(ctx, logger, opts...)
	if err != nil {
		return Backends{}, err
	}
	return Backends{Sheets: sheets, Metadata: drive, Folders: drive, Files: drive}, nil
}

// Recorder receives pipeline and run events. metrics.Recorder implements it.
type Recorder interface {
	linkproc.Observer
	connectivity.Observer
	ObserveRun(report *linkproc.RunReport)
}

// Service is the coursesync orchestrator.
type Service struct {
	cfg          *Config
	store        *store.Store
	router       *connectivity.Router
	admin        *connectivity.Admin
	backends     Backends
	locker       Locker
	recorder     Recorder
	newRunID     idgen.Generator
	newSheetID   idgen.Generator
	pipelineOpts []linkproc.Option
	logger       *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithBackends sets the sheet and file store backends.
func WithBackends(b Backends) Option {
	return func(s *Service) { s.backends = b }
}

// WithRouter replaces the processing-service router built by New.
func WithRouter(r *connectivity.Router) Option {
	return func(s *Service) { s.router = r }
}

// WithLocker replaces the in-process run lock.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithRecorder replaces the Prometheus recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithIDGenerators sets the run and sheet id generators.
func WithIDGenerators(run, sheet idgen.Generator) Option {
	return func(s *Service) {
		if run != nil {
			s.newRunID = run
		}
		if sheet != nil {
			s.newSheetID = sheet
		}
	}
}

// WithPipelineOptions passes options to every pipeline the service builds.
func WithPipelineOptions(opts ...linkproc.Option) Option {
	return func(s *Service) { s.pipelineOpts = append(s.pipelineOpts, opts...) }
}

// NewRouter builds a processing-service router with the standard resilience
// stack and the http and mcp transports. opts configure both transports.
func NewRouter(cfg connectivity.ResilienceConfig, obs connectivity.Observer, logger *slog.Logger, opts ...connectivity.HTTPOption) *connectivity.Router {
	var wrap connectivity.Wrapper
	r := connectivity.New(
		connectivity.WithLogger(logger),
		connectivity.WithWrapper(func(service, strategy string, config json.RawMessage, h connectivity.Handler) connectivity.Handler {
			return wrap(service, strategy, config, h)
		}),
	)
	wrap = connectivity.StandardWrapper(r, cfg, obs, logger)
	r.RegisterTransport("http", connectivity.HTTPFactory(opts...))
	r.RegisterTransport("mcp", connectivity.MCPFactory(opts...))
	return r
}

// New creates a Service. It opens the SQLite database, which also holds the
// routes table, and registers the local processing services when a file
// store backend is set.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := connectivity.Init(st.DB); err != nil {
		st.Close()
		return nil, fmt.Errorf("coursesync: routes schema: %w", err)
	}

	s := &Service{
		cfg:        cfg,
		store:      st,
		recorder:   metrics.Recorder{},
		newRunID:   idgen.Run,
		newSheetID: idgen.Sheet,
		logger:     logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.router == nil {
		s.router = NewRouter(cfg.Resilience, s.recorder, logger, cfg.TransportOptions()...)
	}
	if s.backends.Files != nil {
		var ro []rehost.Option
		if cfg.MaxFileSize > 0 {
			ro = append(ro, rehost.WithMaxFileSize(cfg.MaxFileSize))
		}
		rehost.New(s.backends.Files, logger, ro...).RegisterConnectivity(s.router)
	}

	s.admin = connectivity.NewAdmin(st.DB)
	s.admin.OnChange = func(ctx context.Context) {
		if err := s.router.Reload(ctx, st.DB); err != nil {
			logger.Error("coursesync: route reload failed", "error", err)
		}
	}
	return s, nil
}

// Start closes runs interrupted by a previous crash and launches the routes
// watcher. It returns immediately.
func (s *Service) Start(ctx context.Context) {
	if n, err := s.store.AbandonRunning(ctx); err != nil {
		s.logger.Warn("coursesync: abandon stale runs", "error", err)
	} else if n > 0 {
		s.logger.Warn("coursesync: closed interrupted runs", "count", n)
	}
	go s.router.Watch(ctx, s.store.DB, s.cfg.RouteWatchInterval)
	s.logger.Info("coursesync: started", "db", s.cfg.DBPath, "sheets_backend", s.backends.Sheets != nil)
}

// Close shuts down the router and closes the database.
func (s *Service) Close() error {
	s.router.Close()
	return s.store.Close()
}

// Store returns the underlying store for direct access (testing, admin).
func (s *Service) Store() *store.Store { return s.store }

// Router returns the processing-service router.
func (s *Service) Router() *connectivity.Router { return s.router }

// Admin returns the routes table admin.
func (s *Service) Admin() *connectivity.Admin { return s.admin }

// SheetInput is the registration payload of a sheet.
type SheetInput struct {
	Name          string `json:"name"`
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name,omitempty"`
	CourseName    string `json:"course_name,omitempty"`
}

// RegisterSheet stores a new sheet. The name defaults to the spreadsheet id.
func (s *Service) RegisterSheet(ctx context.Context, in SheetInput) (*Sheet, error) {
	in.SpreadsheetID = strings.TrimSpace(in.SpreadsheetID)
	if in.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet_id is required", ErrInvalidSheet)
	}
	if err := horosafe.ValidateIdentifier(in.SpreadsheetID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	if in.Name == "" {
		in.Name = in.SpreadsheetID
	}
	sh := &Sheet{
		ID:            s.newSheetID(),
		Name:          in.Name,
		SpreadsheetID: in.SpreadsheetID,
		SheetName:     in.SheetName,
		CourseName:    in.CourseName,
	}
	if err := s.store.InsertSheet(ctx, sh); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrSheetExists
		}
		return nil, fmt.Errorf("coursesync: register sheet: %w", err)
	}
	s.logger.InfoContext(ctx, "coursesync: sheet registered", "sheet_id", sh.ID, "spreadsheet_id", sh.SpreadsheetID)
	return sh, nil
}

// GetSheet returns a sheet or ErrSheetNotFound.
func (s *Service) GetSheet(ctx context.Context, id string) (*Sheet, error) {
	sh, err := s.store.GetSheet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("coursesync: get sheet: %w", err)
	}
	if sh == nil {
		return nil, ErrSheetNotFound
	}
	return sh, nil
}

// ListSheets returns every registered sheet, never nil.
func (s *Service) ListSheets(ctx context.Context) ([]*Sheet, error) {
	list, err := s.store.ListSheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("coursesync: list sheets: %w", err)
	}
	if list == nil {
		list = []*Sheet{}
	}
	return list, nil
}

// DeleteSheet removes a sheet and its run history.
func (s *Service) DeleteSheet(ctx context.Context, id string) error {
	ok, err := s.store.DeleteSheet(ctx, id)
	if err != nil {
		return fmt.Errorf("coursesync: delete sheet: %w", err)
	}
	if !ok {
		return ErrSheetNotFound
	}
	return nil
}

// ListRuns returns the run history of a sheet, most recent first.
func (s *Service) ListRuns(ctx context.Context, sheetID string, limit int) ([]*Run, error) {
	if _, err := s.GetSheet(ctx, sheetID); err != nil {
		return nil, err
	}
	runs, err := s.store.ListRuns(ctx, sheetID, limit)
	if err != nil {
		return nil, fmt.Errorf("coursesync: list runs: %w", err)
	}
	if runs == nil {
		runs = []*Run{}
	}
	return runs, nil
}

// GetRun returns a run with its report, or ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("coursesync: get run: %w", err)
	}
	if r == nil {
		return nil, ErrRunNotFound
	}
	return r, nil
}

// RunResult is the outcome of ProcessSheet: the run id and its report.
type RunResult struct {
	RunID   string `json:"runId"`
	SheetID string `json:"sheetId"`
	*linkproc.RunReport
}

// ProcessSheet runs the link pipeline over a registered sheet. Setup
// failures are returned as errors: ErrSheetNotFound, ErrRunInProgress,
// ErrNoCredentials, linkproc.ErrNoData. Per-cell failures are in the report.
func (s *Service) ProcessSheet(ctx context.Context, sheetID, testDriveLink string) (*RunResult, error) {
	sh, err := s.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, sh.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &Run{ID: s.newRunID(), SheetID: sh.ID}
	ctx = kit.WithRunID(ctx, run.ID)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("coursesync: record run: %w", err)
	}

	ref := linkproc.SheetRef{SpreadsheetID: sh.SpreadsheetID, SheetName: sh.SheetName}
	report, runErr := p.Run(ctx, ref, linkproc.RunOptions{CourseName: sh.CourseName, TestDriveLink: testDriveLink})
	s.recorder.ObserveRun(report)

	run.Status = metrics.RunStatus(report)
	if runErr != nil {
		run.Error = runErr.Error()
	} else {
		run.Total, run.Processed, run.Failed = report.TotalCells, report.Processed, report.Failed
		if run.Report, err = json.Marshal(report); err != nil {
			return nil, fmt.Errorf("coursesync: encode report: %w", err)
		}
	}
	// The run row is closed even when the caller went away.
	if err := s.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.ErrorContext(ctx, "coursesync: persist run failed", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		s.logger.WarnContext(ctx, "coursesync: run failed", "run_id", run.ID, "sheet_id", sh.ID, "error", runErr)
		return nil, runErr
	}
	s.logger.InfoContext(ctx, "coursesync: run finished",
		"run_id", run.ID, "sheet_id", sh.ID, "status", run.Status,
		"processed", report.Processed, "failed", report.Failed)
	return &RunResult{RunID: run.ID, SheetID: sh.ID, RunReport: report}, nil
}

// ScanSheet reports what ProcessSheet would do, without writing.
func (s *Service) ScanSheet(ctx context.Context, sheetID string) (*linkproc.ScanResult, error) {
	sh, err := s.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}
	return p.Scan(ctx, linkproc.SheetRef{SpreadsheetID: sh.SpreadsheetID, SheetName: sh.SheetName})
}

func (s *Service) pipeline() (*linkproc.Pipeline, error) {
	if s.backends.Sheets == nil {
		return nil, ErrNoCredentials
	}
	return linkproc.New(s.cfg.Pipeline, linkproc.Deps{
		Sheets:   s.backends.Sheets,
		Metadata: s.backends.Metadata,
		Folders:  s.backends.Folders,
		Services: s.router,
		Observer: s.recorder,
		Logger:   s.logger,
	}, s.pipelineOpts...)
}
