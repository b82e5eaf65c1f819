// CLAUDE:SUMMARY Google Drive v3 adapter: file metadata, folder listing and creation, download, upload and server-side copy.
// Package drivestore is the file store of coursesync, backed by the Google
// Drive v3 API. Every call sets supportsAllDrives so shared drives work.
//
// Store implements linkproc.MetadataService, linkproc.FolderStore and
// rehost.Store.
package drivestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hazyhaar/coursesync/horosafe"
	"github.com/hazyhaar/coursesync/linkproc"
)

// ErrNotFound is returned when the file does not exist or is not visible to
// the credentials.
var ErrNotFound = errors.New("drivestore: file not found")

const (
	fileFields = "id, name, mimeType, webViewLink"
	listFields = "nextPageToken, files(id, name, mimeType, webViewLink)"
	pageSize   = 100
)

// Store talks to Drive.
type Store struct {
	svc    *drive.Service
	logger *slog.Logger
}

// New creates a Store. opts carry the credentials (option.WithCredentials,
// option.WithHTTPClient) or, in tests, option.WithEndpoint.
func New(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drivestore: new service: %w", err)
	}
	return NewFromService(svc, logger), nil
}

// NewFromService wraps an existing Drive client.
func NewFromService(svc *drive.Service, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{svc: svc, logger: logger}
}

// Metadata returns the name, MIME type and view link of id.
func (s *Store) Metadata(ctx context.Context, id string) (*linkproc.FileMeta, error) {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	f, err := s.svc.Files.Get(id).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap("get "+id, err)
	}
	return toMeta(f), nil
}

// ListChildren returns every non-trashed item of folderID, following pages.
func (s *Store) ListChildren(ctx context.Context, folderID string) ([]linkproc.FileMeta, error) {
	if err := horosafe.ValidateIdentifier(folderID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("'%s' in parents and trashed=false", folderID)

	var out []linkproc.FileMeta
	pageToken := ""
	for {
		call := s.svc.Files.List().
			Q(query).
			Fields(listFields).
			PageSize(pageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, wrap("list "+folderID, err)
		}
		for _, f := range resp.Files {
			out = append(out, *toMeta(f))
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	s.logger.DebugContext(ctx, "drivestore: folder listed", "folder_id", folderID, "items", len(out))
	return out, nil
}

// CreateFolder creates name under parentID, or at the root when parentID is
// empty.
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (*linkproc.FileMeta, error) {
	f := &drive.File{Name: name, MimeType: linkproc.FolderMIME}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	created, err := s.svc.Files.Create(f).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap("create folder "+name, err)
	}
	s.logger.InfoContext(ctx, "drivestore: folder created", "name", name, "id", created.Id, "parent", parentID)
	return toMeta(created), nil
}

// Download streams the content of id. The caller closes the reader.
func (s *Store) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	resp, err := s.svc.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, wrap("download "+id, err)
	}
	return resp.Body, nil
}

// Upload creates a file named name with the content of r.
func (s *Store) Upload(ctx context.Context, name, mimeType, parentID string, r io.Reader) (*linkproc.FileMeta, error) {
	f := &drive.File{Name: name, MimeType: mimeType}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	created, err := s.svc.Files.Create(f).
		Media(r, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap("upload "+name, err)
	}
	return toMeta(created), nil
}

// Copy makes a server-side copy of id named name under parentID.
func (s *Store) Copy(ctx context.Context, id, name, parentID string) (*linkproc.FileMeta, error) {
	if err := horosafe.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	f := &drive.File{Name: name}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	copied, err := s.svc.Files.Copy(id, f).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap("copy "+id, err)
	}
	return toMeta(copied), nil
}

func toMeta(f *drive.File) *linkproc.FileMeta {
	return &linkproc.FileMeta{ID: f.Id, Name: f.Name, MimeType: f.MimeType, WebViewLink: f.WebViewLink}
}

func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("drivestore: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("drivestore: %s: %w", op, err)
}
