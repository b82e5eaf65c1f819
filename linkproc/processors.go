package linkproc

import (
	"context"
)

// processVideo never blocks a group: every failure keeps the original link
// and is reported with Success still true.
func (d *Dispatcher) processVideo(ctx context.Context, job *Job) ProcessOutcome {
	resp, err := callService(ctx, d.services, ServiceVideoTranscode, d.request(job, d.cfg.VideoFolderID))
	if err != nil {
		d.logger.WarnContext(ctx, "linkproc: video processing failed",
			"resource_id", job.ResourceID, "error", err)
		return ProcessOutcome{Success: true, KeepOriginalURL: true, Error: err.Error(), Category: CategoryVideo}
	}
	if !resp.Success || resp.NewURL == "" {
		msg := resp.Error
		if msg == "" {
			msg = "video service returned no link"
		}
		return ProcessOutcome{Success: true, KeepOriginalURL: true, Error: msg, Category: CategoryVideo, Detail: resp.Detail}
	}
	return ProcessOutcome{Success: true, NewURL: resp.NewURL, Category: CategoryVideo, Detail: detailOr(resp.Detail, "video re-hosted")}
}

func (d *Dispatcher) processPDF(ctx context.Context, job *Job) ProcessOutcome {
	return d.rehost(ctx, job, ServicePDFClean, "watermark removed")
}

// processCopy is the generic handler: the file is re-hosted unchanged.
func (d *Dispatcher) processCopy(ctx context.Context, job *Job) ProcessOutcome {
	return d.rehost(ctx, job, ServiceFileCopy, Describe(job.Category)+" copied")
}

func (d *Dispatcher) rehost(ctx context.Context, job *Job, service, okDetail string) ProcessOutcome {
	resp, err := callService(ctx, d.services, service, d.request(job, d.cfg.DestinationFolderID))
	if err != nil {
		d.logger.WarnContext(ctx, "linkproc: processing failed",
			"service", service, "resource_id", job.ResourceID, "error", err)
		return keepOriginal(job.Category, err.Error(), "")
	}
	if resp.Skipped {
		link := resp.NewURL
		if link == "" {
			link = resp.OriginalURL
		}
		if link == "" {
			return keepOriginal(job.Category, service+" skipped without a link", resp.Detail)
		}
		return ProcessOutcome{Success: true, NewURL: link, Category: job.Category, Detail: detailOr(resp.Detail, "skipped")}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = service + " reported failure"
		}
		return keepOriginal(job.Category, msg, resp.Detail)
	}
	if resp.NewURL == "" {
		return keepOriginal(job.Category, service+" returned no new link", resp.Detail)
	}
	return ProcessOutcome{Success: true, NewURL: resp.NewURL, Category: job.Category, Detail: detailOr(resp.Detail, okDetail)}
}

func detailOr(detail, def string) string {
	if detail != "" {
		return detail
	}
	return def
}
