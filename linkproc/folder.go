package linkproc

import (
	"context"
	"fmt"
)

// processFolder recreates the folder under the destination and re-hosts
// every child into it, descending into subfolders up to MaxFolderDepth
// levels. Once the new folder exists the outcome is a success: failures of
// individual children are logged and listed in NestedErrors with Partial
// set, and never fail the group.
func (d *Dispatcher) processFolder(ctx context.Context, job *Job) ProcessOutcome {
	if d.folders == nil {
		return keepOriginal(CategoryFolder, "no folder store configured", "")
	}
	if job.ResourceID == "" {
		return keepOriginal(CategoryFolder, "folder link has no id", "")
	}

	name := job.Name
	if name == "" {
		name = job.CourseName
	}
	if name == "" {
		name = "Folder " + job.ResourceID
	}
	parent := job.DestFolderID
	if parent == "" {
		parent = d.cfg.DestinationFolderID
	}

	children, err := d.folders.ListChildren(ctx, job.ResourceID)
	if err != nil {
		return keepOriginal(CategoryFolder, fmt.Sprintf("list folder: %v", err), "")
	}
	created, err := d.folders.CreateFolder(ctx, name, parent)
	if err != nil {
		return keepOriginal(CategoryFolder, fmt.Sprintf("create folder: %v", err), "")
	}

	var nested []string
	done := 0
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			nested = append(nested, fmt.Sprintf("%s: %v", child.Name, err))
			continue
		}
		cat, ok := CategoryFromMIME(child.MimeType)
		if !ok {
			if c, ok := CategoryFromExtension(child.Name); ok {
				cat = c
			}
		}
		if cat == CategoryFolder && job.Depth+1 >= d.cfg.MaxFolderDepth {
			nested = append(nested, fmt.Sprintf("%s: depth limit %d reached", child.Name, d.cfg.MaxFolderDepth))
			continue
		}

		link := FileViewURL(child.ID)
		if cat == CategoryFolder {
			link = FolderViewURL(child.ID)
		}
		out := d.Dispatch(ctx, &Job{
			Group:        LinkGroup{Key: ResourceKey(child.ID), ResourceID: child.ID, OriginalURL: link},
			Category:     cat,
			ResourceID:   child.ID,
			Name:         child.Name,
			CourseName:   job.CourseName,
			DestFolderID: created.ID,
			Depth:        job.Depth + 1,
		})
		if !out.Applies() {
			msg := out.Error
			if msg == "" {
				msg = "not processed"
			}
			nested = append(nested, fmt.Sprintf("%s: %s", child.Name, msg))
			d.logger.WarnContext(ctx, "linkproc: folder item not processed",
				"folder_id", job.ResourceID, "item", child.Name, "error", msg)
			continue
		}
		done++
		// Nested folders report their own partial failures.
		for _, e := range out.NestedErrors {
			nested = append(nested, child.Name+"/"+e)
		}
	}

	newURL := created.WebViewLink
	if newURL == "" {
		newURL = FolderViewURL(created.ID)
	}
	return ProcessOutcome{
		Success:      true,
		NewURL:       newURL,
		Category:     CategoryFolder,
		Detail:       fmt.Sprintf("%d/%d items re-hosted", done, len(children)),
		Partial:      len(nested) > 0,
		NestedErrors: nested,
	}
}
