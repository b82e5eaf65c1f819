// CLAUDE:SUMMARY Link pipeline orchestrator: read sheet, extract, dedupe, classify, dispatch in batches, write back, report.
// Package linkproc re-hosts the file-store links embedded in a course
// spreadsheet.
//
// The pipeline:
//
//	sheet → Extract → Group → per group: Classify → Dispatch → Writer → RunReport
//
// Groups are processed in concurrent batches separated by a cooldown. A
// processed cell carries a note marker, so running the pipeline again on an
// unchanged sheet processes nothing.
//
// Usage:
//
//	p, err := linkproc.New(cfg, linkproc.Deps{
//	    Sheets:   sheets,
//	    Metadata: drive,
//	    Folders:  drive,
//	    Services: router,
//	})
//	report, err := p.Run(ctx, linkproc.SheetRef{SpreadsheetID: id, SheetName: "Sheet1"}, linkproc.RunOptions{})
package linkproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/coursesync/kit"
)

// ErrNoSheetService is returned by New without a SheetService.
var ErrNoSheetService = errors.New("linkproc: sheet service required")

// Observer receives one event per processed group.
type Observer interface {
	ObserveGroup(cat FileCategory, d time.Duration, processed, failed int)
}

// Deps are the pipeline collaborators. Only Sheets is required; without
// Metadata classification is offline, without Folders folder links are kept,
// without Services every file link is kept.
type Deps struct {
	Sheets   SheetService
	Metadata MetadataService
	Folders  FolderStore
	Services ServiceCaller
	Observer Observer
	Logger   *slog.Logger
}

// RunOptions are per-run parameters.
type RunOptions struct {
	CourseName string `json:"courseName,omitempty"`
	// TestDriveLink is injected at row 2, column A when the sheet yields no
	// candidate at all.
	TestDriveLink string `json:"testDriveLink,omitempty"`
}

// Pipeline runs the link re-hosting process. Safe for concurrent use on
// different sheets.
type Pipeline struct {
	cfg        Config
	sheets     SheetService
	classifier *Classifier
	dispatcher *Dispatcher
	writer     *Writer
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for notes and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithSleep replaces the cancellable sleep used for cooldowns and note retries.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// New creates a pipeline.
func New(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	cfg.defaults()
	if deps.Sheets == nil {
		return nil, ErrNoSheetService
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("linkproc: timezone: %w", err)
		}
		loc = l
	}

	p := &Pipeline{
		cfg:        cfg,
		sheets:     deps.Sheets,
		classifier: NewClassifier(deps.Metadata, logger),
		dispatcher: NewDispatcher(deps.Services, deps.Folders, DispatchConfig{
			MaxFolderDepth:      cfg.MaxFolderDepth,
			DestinationFolderID: cfg.DestinationFolderID,
			VideoFolderID:       cfg.VideoFolderID,
		}, logger),
		observer: deps.Observer,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(p)
	}
	clock := p.now
	p.now = func() time.Time { return clock().In(loc) }
	p.writer = &Writer{
		sheets:      deps.Sheets,
		noteRetries: cfg.NoteRetries,
		retryDelay:  cfg.NoteRetryDelay,
		now:         p.now,
		sleep:       p.sleep,
		logger:      logger,
	}
	return p, nil
}

// Dispatcher exposes the dispatch table so callers can override a handler.
func (p *Pipeline) Dispatcher() *Dispatcher { return p.dispatcher }

// Run processes every unprocessed link of the sheet. Setup failures (the
// sheet cannot be read, ErrNoData) are returned as errors; per-group and
// per-cell failures are recorded in the report.
func (p *Pipeline) Run(ctx context.Context, ref SheetRef, opts RunOptions) (*RunReport, error) {
	grid, err := p.sheets.ReadGrid(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("linkproc: read sheet: %w", err)
	}
	if grid == nil || grid.Empty() {
		return nil, ErrNoData
	}

	cands := Extract(grid, p.logger)
	if len(cands) == 0 && opts.TestDriveLink != "" {
		if IsStoreURL(opts.TestDriveLink) {
			cands = append(cands, LinkCandidate{Row: 1, Col: 0, RawText: opts.TestDriveLink, URL: opts.TestDriveLink})
			p.logger.InfoContext(ctx, "linkproc: injected test link", "url", opts.TestDriveLink)
		} else {
			p.logger.WarnContext(ctx, "linkproc: ignoring test link outside the file store", "url", opts.TestDriveLink)
		}
	}
	groups := Group(cands)

	p.logger.InfoContext(ctx, "linkproc: run started",
		"run_id", kit.GetRunID(ctx),
		"spreadsheet_id", ref.SpreadsheetID, "sheet", ref.SheetName,
		"cells", len(cands), "groups", len(groups), "batch_size", p.cfg.BatchSize)

	report := p.schedule(ctx, ref, groups, opts.CourseName)
	report.Timestamp = p.now()

	p.logger.InfoContext(ctx, "linkproc: run finished",
		"run_id", kit.GetRunID(ctx),
		"total", report.TotalCells, "processed", report.Processed, "failed", report.Failed)
	return report, nil
}

// ScannedGroup is one group as seen by Scan.
type ScannedGroup struct {
	Key            ResourceKey     `json:"key"`
	OriginalURL    string          `json:"originalUrl"`
	Classification Classification  `json:"classification"`
	Cells          []LinkCandidate `json:"cells"`
}

// ScanResult is the read-only view of what Run would process.
type ScanResult struct {
	TotalCells  int            `json:"totalCells"`
	UniqueLinks int            `json:"uniqueLinks"`
	Groups      []ScannedGroup `json:"groups"`
}

// Scan extracts, groups and classifies without processing or writing.
func (p *Pipeline) Scan(ctx context.Context, ref SheetRef) (*ScanResult, error) {
	grid, err := p.sheets.ReadGrid(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("linkproc: read sheet: %w", err)
	}
	if grid == nil || grid.Empty() {
		return nil, ErrNoData
	}
	groups := Group(Extract(grid, p.logger))
	res := &ScanResult{TotalCells: CellCount(groups), UniqueLinks: len(groups), Groups: []ScannedGroup{}}
	for _, g := range groups {
		res.Groups = append(res.Groups, ScannedGroup{
			Key:            g.Key,
			OriginalURL:    g.OriginalURL,
			Classification: p.classifier.Classify(ctx, g),
			Cells:          g.Cells,
		})
	}
	return res, nil
}
