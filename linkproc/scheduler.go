package linkproc

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/coursesync/kit"
)

// groupResult is what one concurrent task hands back to the aggregation
// step. Tasks never touch the report or the sheet.
type groupResult struct {
	group    LinkGroup
	class    Classification
	outcome  ProcessOutcome
	duration time.Duration
}

// schedule processes groups in slices of BatchSize. Groups of one slice run
// concurrently and independently; their results are written and recorded
// serially once the whole slice has finished, so slice k+1 only starts
// after every write of slice k.
func (p *Pipeline) schedule(ctx context.Context, ref SheetRef, groups []LinkGroup, course string) *RunReport {
	report := newReport(groups)
	size := p.cfg.BatchSize

	for start := 0; start < len(groups); start += size {
		end := min(start+size, len(groups))
		slice := groups[start:end]
		batch := start/size + 1

		p.logger.InfoContext(ctx, "linkproc: batch started",
			"run_id", kit.GetRunID(ctx), "batch", batch, "groups", len(slice))

		results := make([]groupResult, len(slice))
		var eg errgroup.Group
		for i, g := range slice {
			eg.Go(func() error {
				results[i] = p.processGroup(ctx, g, course)
				return nil
			})
		}
		_ = eg.Wait()

		for _, res := range results {
			p.apply(ctx, ref, res, report)
		}

		if end < len(groups) {
			if err := p.sleep(ctx, p.cfg.Cooldown); err != nil {
				p.abandon(groups[end:], err, report)
				break
			}
		}
	}
	return report
}

func (p *Pipeline) processGroup(ctx context.Context, g LinkGroup, course string) groupResult {
	start := time.Now()
	class := p.classifier.Classify(ctx, g)
	out := p.dispatcher.Dispatch(ctx, &Job{
		Group:      g,
		Category:   class.Category,
		ResourceID: g.ResourceID,
		Name:       class.Name,
		CourseName: course,
	})
	return groupResult{group: g, class: class, outcome: out, duration: time.Since(start)}
}

// apply writes a successful group to every one of its cells, or records
// every cell as an error when the outcome does not apply.
func (p *Pipeline) apply(ctx context.Context, ref SheetRef, res groupResult, report *RunReport) {
	g, out := res.group, res.outcome
	now := p.now()
	shared := len(g.Cells) - 1

	if !out.Applies() {
		msg := out.Error
		if msg == "" {
			msg = "processor returned no new link"
		}
		for _, c := range g.Cells {
			report.addError(CellError{
				Row: c.Row + 1, Col: c.Col + 1, Cell: CellName(c.Row, c.Col),
				OriginalText: c.RawText, OriginalURL: c.URL,
				FileCategory: res.class.Category,
				Error:        msg, NoChangeMade: true, Timestamp: now,
			})
		}
		p.observe(res, 0, len(g.Cells))
		return
	}

	written, failed := 0, 0
	for _, c := range g.Cells {
		if err := p.writer.Write(ctx, ref, c, out.NewURL, g.OriginalURL); err != nil {
			failed++
			p.logger.ErrorContext(ctx, "linkproc: cell needs manual review",
				"cell", CellName(c.Row, c.Col), "error", err)
			report.addError(CellError{
				Row: c.Row + 1, Col: c.Col + 1, Cell: CellName(c.Row, c.Col),
				OriginalText: c.RawText, OriginalURL: c.URL,
				FileCategory: res.class.Category,
				Error:        err.Error(), WriteError: true, ManualReview: true, Timestamp: now,
			})
			continue
		}
		written++
		report.addProcessed(ProcessedCell{
			Row: c.Row + 1, Col: c.Col + 1, Cell: CellName(c.Row, c.Col),
			OriginalText: c.RawText, OriginalURL: c.URL, NewURL: out.NewURL,
			FileCategory: res.class.Category, ProcessDetail: out.Detail,
			SharedWithCells: shared, LowConfidence: c.LowConfidence,
			Partial: out.Partial, NestedErrors: out.NestedErrors,
		})
	}
	p.observe(res, written, failed)
}

// abandon records the groups left after a cancelled cooldown.
func (p *Pipeline) abandon(groups []LinkGroup, cause error, report *RunReport) {
	now := p.now()
	for _, g := range groups {
		for _, c := range g.Cells {
			report.addError(CellError{
				Row: c.Row + 1, Col: c.Col + 1, Cell: CellName(c.Row, c.Col),
				OriginalText: c.RawText, OriginalURL: c.URL,
				Error: "run interrupted: " + cause.Error(), NoChangeMade: true, Timestamp: now,
			})
		}
	}
}

func (p *Pipeline) observe(res groupResult, processed, failed int) {
	if p.observer != nil {
		p.observer.ObserveGroup(res.class.Category, res.duration, processed, failed)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
