package rehost

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/coursesync/horosafe"
	"github.com/hazyhaar/coursesync/linkproc"
)

// CleanPDF removes the watermarks of a PDF and uploads the cleaned copy. A
// PDF without watermarks is skipped and keeps its original link.
func (s *Services) CleanPDF(ctx context.Context, req *linkproc.ServiceRequest) (*linkproc.ServiceResponse, error) {
	name, err := s.name(ctx, req)
	if err != nil {
		return nil, err
	}

	rc, err := s.store.Download(ctx, req.FileID)
	if err != nil {
		return nil, fmt.Errorf("rehost: download %s: %w", req.FileID, err)
	}
	data, err := horosafe.LimitedReadAll(rc, s.maxBody)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("rehost: download %s: %w", req.FileID, err)
	}

	cleaned, removed, err := RemoveWatermarks(data)
	if err != nil {
		return nil, err
	}
	if !removed {
		orig := req.SourceURL
		if orig == "" {
			orig = linkproc.FileViewURL(req.FileID)
		}
		return &linkproc.ServiceResponse{Success: true, Skipped: true, OriginalURL: orig, Detail: "no watermark found"}, nil
	}

	up, err := s.store.Upload(ctx, name, "application/pdf", req.DestFolderID, bytes.NewReader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("rehost: upload %s: %w", name, err)
	}
	s.logger.InfoContext(ctx, "rehost: pdf cleaned",
		"file_id", req.FileID, "new_file_id", up.ID, "bytes_in", len(data), "bytes_out", len(cleaned))
	return &linkproc.ServiceResponse{
		Success:   true,
		NewURL:    viewLink(up),
		NewFileID: up.ID,
		Detail:    "watermark removed",
	}, nil
}

// RemoveWatermarks strips every watermark and stamp from a PDF. removed is
// false, and data returned unchanged, when the document has none.
func RemoveWatermarks(data []byte) (out []byte, removed bool, err error) {
	conf := model.NewDefaultConfiguration()
	has, err := api.HasWatermarks(bytes.NewReader(data), conf)
	if err != nil {
		return nil, false, fmt.Errorf("pdfcpu read: %w", err)
	}
	if !has {
		return data, false, nil
	}
	var buf bytes.Buffer
	if err := api.RemoveWatermarks(bytes.NewReader(data), &buf, nil, conf); err != nil {
		return nil, false, fmt.Errorf("pdfcpu remove watermarks: %w", err)
	}
	return buf.Bytes(), true, nil
}
