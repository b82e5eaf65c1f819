package linkproc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Job is one unit of processing handed to a category handler.
type Job struct {
	Group      LinkGroup
	Category   FileCategory
	ResourceID string
	Name       string
	CourseName string
	// DestFolderID overrides the configured destination (set for files
	// re-hosted inside a reorganized folder).
	DestFolderID string
	// Depth is 0 for groups found in the sheet, n for files n folders deep.
	Depth int
}

// Handler processes one job. Handlers must return an outcome for every
// failure path; the dispatcher also recovers panics.
type Handler func(ctx context.Context, job *Job) ProcessOutcome

// DispatchConfig holds the destinations and limits used by the handlers.
type DispatchConfig struct {
	MaxFolderDepth      int
	DestinationFolderID string
	VideoFolderID       string
}

// Dispatcher runs the handler registered for a job's category.
type Dispatcher struct {
	handlers map[FileCategory]Handler
	services ServiceCaller
	folders  FolderStore
	cfg      DispatchConfig
	logger   *slog.Logger
}

// NewDispatcher builds the default table: folder, video and pdf have their
// own handler, every other category goes through the generic copy.
func NewDispatcher(services ServiceCaller, folders FolderStore, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFolderDepth <= 0 {
		cfg.MaxFolderDepth = 3
	}
	d := &Dispatcher{
		handlers: make(map[FileCategory]Handler),
		services: services,
		folders:  folders,
		cfg:      cfg,
		logger:   logger,
	}
	for _, c := range Categories {
		d.handlers[c] = d.processCopy
	}
	d.handlers[CategoryFolder] = d.processFolder
	d.handlers[CategoryVideo] = d.processVideo
	d.handlers[CategoryPDF] = d.processPDF
	return d
}

// Handle replaces the handler of one category.
func (d *Dispatcher) Handle(cat FileCategory, h Handler) {
	d.handlers[cat] = h
}

// Dispatch processes job and always returns an outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) (out ProcessOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "linkproc: handler panic recovered",
				"category", job.Category, "resource_id", job.ResourceID,
				"panic", r, "stack", string(debug.Stack()))
			out = keepOriginal(job.Category, fmt.Sprintf("internal error: %v", r), "")
		}
	}()

	h, ok := d.handlers[job.Category]
	if !ok {
		h = d.handlers[CategoryOther]
	}
	if h == nil {
		return keepOriginal(job.Category, "no handler for category "+string(job.Category), "")
	}
	if err := ctx.Err(); err != nil {
		return keepOriginal(job.Category, err.Error(), "")
	}
	out = h(ctx, job)
	if out.Category == "" {
		out.Category = job.Category
	}
	if out.Error != "" {
		out.Error = cleanError(out.Error)
	}
	return out
}

func (d *Dispatcher) request(job *Job, defaultDest string) ServiceRequest {
	dest := job.DestFolderID
	if dest == "" {
		dest = defaultDest
	}
	return ServiceRequest{
		FileID:       job.ResourceID,
		Name:         job.Name,
		Category:     job.Category,
		Course:       job.CourseName,
		DestFolderID: dest,
		SourceURL:    job.Group.OriginalURL,
	}
}
