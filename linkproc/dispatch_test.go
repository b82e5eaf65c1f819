package linkproc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func jobFor(url string, cat FileCategory) *Job {
	g := groupFor(url)
	return &Job{Group: g, Category: cat, ResourceID: g.ResourceID, CourseName: "Khoá A"}
}

func TestDispatch_VideoFailureKeepsOriginal(t *testing.T) {
	caller := newFakeCaller(func(string, ServiceRequest) (*ServiceResponse, error) {
		return nil, errors.New("transcoder offline")
	})
	d := NewDispatcher(caller, nil, DispatchConfig{DestinationFolderID: "DEST", VideoFolderID: "VIDS"}, nil)

	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/V1/view", CategoryVideo))
	if !out.Success || !out.KeepOriginalURL || out.Applies() {
		t.Fatalf("outcome: %+v", out)
	}
	if !strings.Contains(out.Error, "transcoder offline") {
		t.Fatalf("error: %q", out.Error)
	}
	if got := caller.calls[ServiceVideoTranscode][0].DestFolderID; got != "VIDS" {
		t.Fatalf("video destination: got %q", got)
	}
}

func TestDispatch_VideoSuccess(t *testing.T) {
	d := NewDispatcher(newFakeCaller(copyOK), nil, DispatchConfig{}, nil)
	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/V1/view", CategoryVideo))
	if !out.Applies() || out.NewURL != FileViewURL("NEW_V1") {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestDispatch_PDFSkippedUsesOriginal(t *testing.T) {
	caller := newFakeCaller(func(_ string, req ServiceRequest) (*ServiceResponse, error) {
		return &ServiceResponse{Success: true, Skipped: true, OriginalURL: req.SourceURL, Detail: "no watermark"}, nil
	})
	d := NewDispatcher(caller, nil, DispatchConfig{}, nil)
	url := "https://drive.google.com/file/d/P1/view"

	out := d.Dispatch(context.Background(), jobFor(url, CategoryPDF))
	if !out.Applies() || out.NewURL != url || out.Detail != "no watermark" {
		t.Fatalf("outcome: %+v", out)
	}
	if caller.count(ServicePDFClean) != 1 {
		t.Fatalf("pdf_clean calls: %d", caller.count(ServicePDFClean))
	}
}

func TestDispatch_HTMLErrorIsCleaned(t *testing.T) {
	caller := newFakeCaller(func(string, ServiceRequest) (*ServiceResponse, error) {
		return nil, errors.New("<html><body><h1>502 Bad Gateway</h1>\n<p>nginx &amp; co</p></body></html>")
	})
	d := NewDispatcher(caller, nil, DispatchConfig{}, nil)

	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/P1/view", CategoryPDF))
	if out.Applies() || !out.KeepOriginalURL {
		t.Fatalf("outcome: %+v", out)
	}
	if out.Error != "pdf_clean: 502 Bad Gateway nginx & co" {
		t.Fatalf("error: %q", out.Error)
	}
}

func TestCleanError_Truncates(t *testing.T) {
	got := cleanError(strings.Repeat("é", 400))
	if n := len([]rune(got)); n != maxErrorText+1 {
		t.Fatalf("rune count: %d", n)
	}
}

func TestDispatch_CopyRequest(t *testing.T) {
	caller := newFakeCaller(copyOK)
	d := NewDispatcher(caller, nil, DispatchConfig{DestinationFolderID: "DEST"}, nil)
	job := jobFor("https://docs.google.com/document/d/D1/edit", CategoryDocument)
	job.Name = "Giáo trình"

	out := d.Dispatch(context.Background(), job)
	if !out.Applies() || out.Category != CategoryDocument {
		t.Fatalf("outcome: %+v", out)
	}
	req := caller.calls[ServiceFileCopy][0]
	if req.FileID != "D1" || req.Name != "Giáo trình" || req.Course != "Khoá A" || req.DestFolderID != "DEST" {
		t.Fatalf("request: %+v", req)
	}
}

type emptyCaller struct{}

func (emptyCaller) Call(context.Context, string, []byte) ([]byte, error) { return nil, nil }

func TestDispatch_DisabledServiceKeepsOriginal(t *testing.T) {
	// WHAT: a noop route answers nothing; the group is left untouched.
	d := NewDispatcher(emptyCaller{}, nil, DispatchConfig{}, nil)
	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/I1/view", CategoryImage))
	if out.Applies() || !strings.Contains(out.Error, "disabled") {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestDispatch_NoCallerKeepsOriginal(t *testing.T) {
	d := NewDispatcher(nil, nil, DispatchConfig{}, nil)
	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/I1/view", CategoryImage))
	if out.Applies() || !out.KeepOriginalURL {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	d := NewDispatcher(nil, nil, DispatchConfig{}, nil)
	d.Handle(CategoryAudio, func(context.Context, *Job) ProcessOutcome { panic("boom") })

	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/file/d/A1/view", CategoryAudio))
	if out.Applies() || out.Error != "internal error: boom" || out.Category != CategoryAudio {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	caller := newFakeCaller(copyOK)
	d := NewDispatcher(caller, nil, DispatchConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := d.Dispatch(ctx, jobFor("https://drive.google.com/file/d/A1/view", CategoryOther))
	if out.Applies() || caller.total() != 0 {
		t.Fatalf("outcome: %+v, calls %d", out, caller.total())
	}
}

func TestDispatch_FolderTree(t *testing.T) {
	folders := &fakeFolders{children: map[string][]FileMeta{
		"F1": {
			{ID: "P1", Name: "a.pdf", MimeType: "application/pdf"},
			{ID: "S1", Name: "sub", MimeType: FolderMIME},
			{ID: "X1", Name: "broken.zip", MimeType: "application/zip"},
		},
		"S1": {
			{ID: "V1", Name: "v.mp4", MimeType: "video/mp4"},
		},
	}}
	caller := newFakeCaller(func(service string, req ServiceRequest) (*ServiceResponse, error) {
		if req.FileID == "X1" {
			return nil, errors.New("quota exceeded")
		}
		return copyOK(service, req)
	})
	d := NewDispatcher(caller, folders, DispatchConfig{DestinationFolderID: "DEST"}, nil)
	job := jobFor("https://drive.google.com/drive/folders/F1", CategoryFolder)
	job.Name = "Bài 1"

	out := d.Dispatch(context.Background(), job)
	if !out.Applies() {
		t.Fatalf("outcome: %+v", out)
	}
	if out.NewURL != FolderViewURL("NEWFOLDER1") || out.Detail != "2/3 items re-hosted" {
		t.Fatalf("outcome: %+v", out)
	}
	if !out.Partial || len(out.NestedErrors) != 1 || out.NestedErrors[0] != "broken.zip: file_copy: quota exceeded" {
		t.Fatalf("nested: partial=%v %q", out.Partial, out.NestedErrors)
	}
	if len(folders.created) != 2 || folders.created[0] != "DEST/Bài 1" || folders.created[1] != "NEWFOLDER1/sub" {
		t.Fatalf("created: %q", folders.created)
	}
	if got := caller.calls[ServicePDFClean][0]; got.DestFolderID != "NEWFOLDER1" || got.Name != "a.pdf" {
		t.Fatalf("pdf request: %+v", got)
	}
	if got := caller.calls[ServiceVideoTranscode][0]; got.DestFolderID != "NEWFOLDER2" {
		t.Fatalf("video request: %+v", got)
	}
}

func TestDispatch_FolderDepthLimit(t *testing.T) {
	folders := &fakeFolders{children: map[string][]FileMeta{
		"F1": {{ID: "S1", Name: "sub", MimeType: FolderMIME}, {ID: "P1", Name: "a.pdf"}},
	}}
	caller := newFakeCaller(copyOK)
	d := NewDispatcher(caller, folders, DispatchConfig{MaxFolderDepth: 1}, nil)

	out := d.Dispatch(context.Background(), jobFor("https://drive.google.com/drive/folders/F1", CategoryFolder))
	if !out.Applies() || out.Detail != "1/2 items re-hosted" {
		t.Fatalf("outcome: %+v", out)
	}
	if len(out.NestedErrors) != 1 || !strings.Contains(out.NestedErrors[0], "depth limit 1") {
		t.Fatalf("nested: %q", out.NestedErrors)
	}
	if len(folders.created) != 1 {
		t.Fatalf("subfolder should not be created: %q", folders.created)
	}
}

func TestDispatch_FolderFailures(t *testing.T) {
	url := "https://drive.google.com/drive/folders/F1"

	d := NewDispatcher(nil, nil, DispatchConfig{}, nil)
	if out := d.Dispatch(context.Background(), jobFor(url, CategoryFolder)); out.Applies() {
		t.Fatalf("no store: %+v", out)
	}

	folders := &fakeFolders{failList: errors.New("403 forbidden")}
	d = NewDispatcher(nil, folders, DispatchConfig{}, nil)
	out := d.Dispatch(context.Background(), jobFor(url, CategoryFolder))
	if out.Applies() || !strings.Contains(out.Error, "list folder") || len(folders.created) != 0 {
		t.Fatalf("list failure: %+v", out)
	}

	folders = &fakeFolders{failMkdir: errors.New("quota")}
	d = NewDispatcher(nil, folders, DispatchConfig{}, nil)
	out = d.Dispatch(context.Background(), jobFor(url, CategoryFolder))
	if out.Applies() || !strings.Contains(out.Error, "create folder") {
		t.Fatalf("create failure: %+v", out)
	}
}
