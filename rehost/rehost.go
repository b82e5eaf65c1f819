// CLAUDE:SUMMARY In-process processing services (PDF watermark removal, file copy) served on a connectivity Router.
// Package rehost implements the processing services the link pipeline can
// run in-process: pdf_clean downloads a PDF, strips its watermarks with
// pdfcpu and uploads the result; file_copy makes a server-side copy. Video
// transcoding has no local implementation and needs an http route.
package rehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/coursesync/connectivity"
	"github.com/hazyhaar/coursesync/horosafe"
	"github.com/hazyhaar/coursesync/linkproc"
)

// ErrNoFileID is returned for a request without file_id.
var ErrNoFileID = errors.New("rehost: file_id is required")

// Store is the file store the services work against.
type Store interface {
	Metadata(ctx context.Context, id string) (*linkproc.FileMeta, error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
	// Upload creates name under parentID ("" for the root).
	Upload(ctx context.Context, name, mimeType, parentID string, r io.Reader) (*linkproc.FileMeta, error)
	// Copy duplicates id as name under parentID.
	Copy(ctx context.Context, id, name, parentID string) (*linkproc.FileMeta, error)
}

// Services holds the local processing handlers.
type Services struct {
	store   Store
	logger  *slog.Logger
	maxBody int64
}

// Option customises Services.
type Option func(*Services)

// WithMaxFileSize caps the size of a downloaded file.
func WithMaxFileSize(n int64) Option {
	return func(s *Services) { s.maxBody = n }
}

// New creates the services over store.
func New(store Store, logger *slog.Logger, opts ...Option) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{store: store, logger: logger, maxBody: horosafe.MaxFileBody}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterConnectivity registers the services on router.
//
// Registered services:
//
//	pdf_clean  remove watermarks from a PDF and re-host it
//	file_copy  copy a file into the destination folder
func (s *Services) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal(linkproc.ServicePDFClean, s.handler(s.CleanPDF))
	router.RegisterLocal(linkproc.ServiceFileCopy, s.handler(s.CopyFile))
}

type serviceFunc func(ctx context.Context, req *linkproc.ServiceRequest) (*linkproc.ServiceResponse, error)

func (s *Services) handler(fn serviceFunc) connectivity.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req linkproc.ServiceRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if req.FileID == "" {
			return nil, ErrNoFileID
		}
		resp, err := fn(ctx, &req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

// CopyFile copies the file into the destination folder under its own name.
func (s *Services) CopyFile(ctx context.Context, req *linkproc.ServiceRequest) (*linkproc.ServiceResponse, error) {
	name, err := s.name(ctx, req)
	if err != nil {
		return nil, err
	}
	copied, err := s.store.Copy(ctx, req.FileID, name, req.DestFolderID)
	if err != nil {
		return nil, fmt.Errorf("rehost: copy %s: %w", req.FileID, err)
	}
	s.logger.InfoContext(ctx, "rehost: file copied",
		"file_id", req.FileID, "new_file_id", copied.ID, "category", req.Category)
	return &linkproc.ServiceResponse{
		Success:   true,
		NewURL:    viewLink(copied),
		NewFileID: copied.ID,
		Detail:    linkproc.Describe(req.Category) + " copied",
	}, nil
}

func (s *Services) name(ctx context.Context, req *linkproc.ServiceRequest) (string, error) {
	if req.Name != "" {
		return req.Name, nil
	}
	meta, err := s.store.Metadata(ctx, req.FileID)
	if err != nil {
		return "", fmt.Errorf("rehost: metadata %s: %w", req.FileID, err)
	}
	return meta.Name, nil
}

func viewLink(m *linkproc.FileMeta) string {
	if m.WebViewLink != "" {
		return m.WebViewLink
	}
	return linkproc.FileViewURL(m.ID)
}
