package coursesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	"github.com/hazyhaar/coursesync/linkproc"
	"github.com/hazyhaar/coursesync/metrics"
	"github.com/hazyhaar/coursesync/sheetsvc"
)

const docMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func fileURL(id string) string { return "https://drive.google.com/file/d/" + id + "/view" }

// fakeFiles is a file store whose copies get a COPY_ prefix.
type fakeFiles struct {
	mu      sync.Mutex
	copies  []string
	failIDs map[string]bool
}

func (f *fakeFiles) Metadata(_ context.Context, id string) (*linkproc.FileMeta, error) {
	return &linkproc.FileMeta{ID: id, Name: id + ".docx", MimeType: docMIME}, nil
}

func (f *fakeFiles) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("download not supported")
}

func (f *fakeFiles) Upload(context.Context, string, string, string, io.Reader) (*linkproc.FileMeta, error) {
	return nil, errors.New("upload not supported")
}

func (f *fakeFiles) Copy(_ context.Context, id, name, _ string) (*linkproc.FileMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return nil, errors.New("quota exceeded")
	}
	f.copies = append(f.copies, id)
	return &linkproc.FileMeta{ID: "COPY_" + id, Name: name}, nil
}

func (f *fakeFiles) copyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copies)
}

type fakeRecorder struct {
	mu     sync.Mutex
	runs   []string
	groups int
	calls  int
}

func (r *fakeRecorder) ObserveGroup(linkproc.FileCategory, time.Duration, int, int) {
	r.mu.Lock()
	r.groups++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveCall(string, string, time.Duration, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *fakeRecorder) ObserveRun(report *linkproc.RunReport) {
	r.mu.Lock()
	r.runs = append(r.runs, metrics.RunStatus(report))
	r.mu.Unlock()
}

// courseWorkbook has FILE1 linked twice (rich link and plain URL) and
// FILE2 once.
func courseWorkbook(t *testing.T) *sheetsvc.XLSX {
	t.Helper()
	f := excelize.NewFile()
	sheet := "Sheet1"
	f.SetCellValue(sheet, "A1", "Bài")
	f.SetCellValue(sheet, "B1", "Tài liệu")
	f.SetCellValue(sheet, "A2", "1")
	f.SetCellValue(sheet, "B2", "Giáo trình")
	if err := f.SetCellHyperLink(sheet, "B2", fileURL("FILE1"), "External"); err != nil {
		t.Fatalf("hyperlink: %v", err)
	}
	f.SetCellValue(sheet, "A3", "2")
	f.SetCellValue(sheet, "B3", fileURL("FILE1")+"?usp=sharing")
	f.SetCellValue(sheet, "A4", "3")
	f.SetCellValue(sheet, "B4", fileURL("FILE2"))

	path := filepath.Join(t.TempDir(), "course.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.Close()
	x, err := sheetsvc.OpenXLSX(path)
	if err != nil {
		t.Fatalf("OpenXLSX: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func emptyWorkbook(t *testing.T) *sheetsvc.XLSX {
	t.Helper()
	f := excelize.NewFile()
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.Close()
	x, err := sheetsvc.OpenXLSX(path)
	if err != nil {
		t.Fatalf("OpenXLSX: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		DBPath: filepath.Join(t.TempDir(), "coursesync.db"),
		Pipeline: linkproc.Config{
			Cooldown:            -1,
			Timezone:            "UTC",
			DestinationFolderID: "DEST",
		},
	}
}

type fixture struct {
	svc   *Service
	files *fakeFiles
	rec   *fakeRecorder
	sheet *sheetsvc.XLSX
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fx := &fixture{files: &fakeFiles{}, rec: &fakeRecorder{}, sheet: courseWorkbook(t)}
	base := []Option{
		WithBackends(Backends{Sheets: fx.sheet, Metadata: fx.files, Files: fx.files}),
		WithRecorder(fx.rec),
	}
	svc, err := New(testConfig(t), nil, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	fx.svc = svc
	return fx
}

func (fx *fixture) register(t *testing.T) *Sheet {
	t.Helper()
	sh, err := fx.svc.RegisterSheet(context.Background(), SheetInput{
		Name: "Khoá A", SpreadsheetID: "course-workbook", SheetName: "Sheet1", CourseName: "Khoá A",
	})
	if err != nil {
		t.Fatalf("RegisterSheet: %v", err)
	}
	return sh
}

func TestProcessSheet_RewritesLinks(t *testing.T) {
	// WHAT: a run copies each unique file once and rewrites every cell
	// linking to it, then records the run.
	fx := newFixture(t)
	sh := fx.register(t)
	ctx := context.Background()

	res, err := fx.svc.ProcessSheet(ctx, sh.ID, "")
	if err != nil {
		t.Fatalf("ProcessSheet: %v", err)
	}
	if !strings.HasPrefix(res.RunID, "run_") || res.SheetID != sh.ID {
		t.Errorf("ids: %+v", res)
	}
	if res.TotalCells != 3 || res.UniqueLinks != 2 || res.Processed != 3 || res.Failed != 0 {
		t.Fatalf("report: total=%d unique=%d processed=%d failed=%d errors=%+v",
			res.TotalCells, res.UniqueLinks, res.Processed, res.Failed, res.Errors)
	}
	if fx.files.copyCount() != 2 {
		t.Errorf("copies = %d, want 2", fx.files.copyCount())
	}

	grid, err := fx.sheet.ReadGrid(ctx, linkproc.SheetRef{SheetName: "Sheet1"})
	if err != nil {
		t.Fatal(err)
	}
	b2 := grid.RichAt(1, 1)
	if b2 == nil || b2.Hyperlink != fileURL("COPY_FILE1") || !linkproc.IsProcessedNote(b2.Note) {
		t.Fatalf("B2 after run: %+v", b2)
	}
	if b3 := grid.RichAt(2, 1); b3 == nil || b3.Hyperlink != fileURL("COPY_FILE1") {
		t.Fatalf("B3 after run: %+v", b3)
	}

	run, err := fx.svc.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "ok" || run.Total != 3 || run.Processed != 3 || run.FinishedAt == 0 {
		t.Errorf("run row: %+v", run)
	}
	if !strings.Contains(string(run.Report), `"totalCells":3`) {
		t.Errorf("report json: %s", run.Report)
	}
	if len(fx.rec.runs) != 1 || fx.rec.runs[0] != "ok" || fx.rec.groups != 2 {
		t.Errorf("recorder: %+v", fx.rec)
	}
	if fx.rec.calls != 2 {
		t.Errorf("service calls observed = %d, want 2", fx.rec.calls)
	}

	// Processed cells carry the note and are skipped on the next run.
	again, err := fx.svc.ProcessSheet(ctx, sh.ID, "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.TotalCells != 0 || fx.files.copyCount() != 2 {
		t.Errorf("second run total=%d copies=%d", again.TotalCells, fx.files.copyCount())
	}
}

func TestProcessSheet_PartialRun(t *testing.T) {
	fx := newFixture(t)
	fx.files.failIDs = map[string]bool{"FILE2": true}
	sh := fx.register(t)

	res, err := fx.svc.ProcessSheet(context.Background(), sh.ID, "")
	if err != nil {
		t.Fatalf("ProcessSheet: %v", err)
	}
	if res.Processed != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("report: %+v", res.RunReport)
	}
	if !strings.Contains(res.Errors[0].Error, "quota exceeded") || !res.Errors[0].NoChangeMade {
		t.Errorf("error: %+v", res.Errors[0])
	}
	run, _ := fx.svc.GetRun(context.Background(), res.RunID)
	if run.Status != "partial" || run.Failed != 1 {
		t.Errorf("run row: %+v", run)
	}
}

func TestProcessSheet_SetupErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown sheet", func(t *testing.T) {
		fx := newFixture(t)
		if _, err := fx.svc.ProcessSheet(ctx, "sht_missing", ""); !errors.Is(err, ErrSheetNotFound) {
			t.Fatalf("got %v, want ErrSheetNotFound", err)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		svc, err := New(testConfig(t), nil, WithRecorder(&fakeRecorder{}))
		if err != nil {
			t.Fatal(err)
		}
		defer svc.Close()
		sh, _ := svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "SS1"})
		if _, err := svc.ProcessSheet(ctx, sh.ID, ""); !errors.Is(err, ErrNoCredentials) {
			t.Fatalf("got %v, want ErrNoCredentials", err)
		}
	})

	t.Run("no data", func(t *testing.T) {
		// WHAT: an empty sheet fails the run and leaves an error run row.
		rec := &fakeRecorder{}
		svc, err := New(testConfig(t), nil,
			WithBackends(Backends{Sheets: emptyWorkbook(t)}), WithRecorder(rec))
		if err != nil {
			t.Fatal(err)
		}
		defer svc.Close()
		sh, _ := svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "SS1"})
		if _, err := svc.ProcessSheet(ctx, sh.ID, ""); !errors.Is(err, linkproc.ErrNoData) {
			t.Fatalf("got %v, want ErrNoData", err)
		}
		runs, _ := svc.ListRuns(ctx, sh.ID, 0)
		if len(runs) != 1 || runs[0].Status != "error" || !strings.Contains(runs[0].Error, "no data") {
			t.Fatalf("runs: %+v", runs)
		}
		if len(rec.runs) != 1 || rec.runs[0] != "error" {
			t.Errorf("recorder: %+v", rec.runs)
		}
	})
}

func TestProcessSheet_RunInProgress(t *testing.T) {
	// WHAT: a sheet already locked is rejected without touching it.
	lock := NewLocalLocker()
	fx := newFixture(t, WithLocker(lock))
	sh := fx.register(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, sh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.ProcessSheet(ctx, sh.ID, ""); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("got %v, want ErrRunInProgress", err)
	}
	if fx.files.copyCount() != 0 {
		t.Error("locked sheet was processed")
	}
	release()

	if _, err := fx.svc.ProcessSheet(ctx, sh.ID, ""); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestProcessSheet_TestDriveLink(t *testing.T) {
	// WHAT: a sheet with data but no link processes the injected test link.
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Bài")
	f.SetCellValue("Sheet1", "B1", "chưa có tài liệu")
	path := filepath.Join(t.TempDir(), "nolinks.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()
	x, err := sheetsvc.OpenXLSX(path)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()

	files := &fakeFiles{}
	svc, err := New(testConfig(t), nil,
		WithBackends(Backends{Sheets: x, Metadata: files, Files: files}), WithRecorder(&fakeRecorder{}))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	ctx := context.Background()
	sh, _ := svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "SS1"})

	res, err := svc.ProcessSheet(ctx, sh.ID, fileURL("TEST1"))
	if err != nil {
		t.Fatalf("ProcessSheet: %v", err)
	}
	if res.Processed != 1 || res.ProcessedCells[0].Cell != "A2" {
		t.Fatalf("report: %+v", res.RunReport)
	}
}

func TestScanSheet(t *testing.T) {
	fx := newFixture(t)
	sh := fx.register(t)

	res, err := fx.svc.ScanSheet(context.Background(), sh.ID)
	if err != nil {
		t.Fatalf("ScanSheet: %v", err)
	}
	if res.TotalCells != 3 || res.UniqueLinks != 2 {
		t.Fatalf("scan: %+v", res)
	}
	if res.Groups[0].Classification.Category != linkproc.CategoryDocument {
		t.Errorf("category: %+v", res.Groups[0].Classification)
	}
	if fx.files.copyCount() != 0 {
		t.Error("scan copied files")
	}
}

func TestSheetRegistry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.RegisterSheet(ctx, SheetInput{}); !errors.Is(err, ErrInvalidSheet) {
		t.Errorf("empty id: got %v", err)
	}
	if _, err := fx.svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "../etc"}); !errors.Is(err, ErrInvalidSheet) {
		t.Errorf("bad id: got %v", err)
	}

	sh, err := fx.svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "SS1"})
	if err != nil {
		t.Fatal(err)
	}
	if sh.Name != "SS1" || !strings.HasPrefix(sh.ID, "sht_") {
		t.Errorf("sheet: %+v", sh)
	}
	if _, err := fx.svc.RegisterSheet(ctx, SheetInput{SpreadsheetID: "SS1"}); !errors.Is(err, ErrSheetExists) {
		t.Errorf("duplicate: got %v", err)
	}

	list, _ := fx.svc.ListSheets(ctx)
	if len(list) != 1 {
		t.Fatalf("list: %+v", list)
	}
	if _, err := fx.svc.ListRuns(ctx, "sht_missing", 0); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("runs of missing sheet: %v", err)
	}
	if _, err := fx.svc.GetRun(ctx, "run_missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("missing run: %v", err)
	}

	if err := fx.svc.DeleteSheet(ctx, sh.ID); err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.DeleteSheet(ctx, sh.ID); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("second delete: %v", err)
	}
	list, _ = fx.svc.ListSheets(ctx)
	if list == nil || len(list) != 0 {
		t.Errorf("list after delete: %#v", list)
	}
}

func TestStart_ClosesInterruptedRuns(t *testing.T) {
	fx := newFixture(t)
	sh := fx.register(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stale := &Run{ID: "run_stale", SheetID: sh.ID}
	if err := fx.svc.Store().InsertRun(ctx, stale); err != nil {
		t.Fatal(err)
	}
	fx.svc.Start(ctx)

	run, err := fx.svc.GetRun(ctx, "run_stale")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != "error" || run.Error != "interrupted" {
		t.Errorf("stale run: %+v", run)
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(ctx, "a"); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("got %v, want ErrRunInProgress", err)
	}
	other, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("independent key: %v", err)
	}
	other()

	release()
	release() // idempotent
	again, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	again()
}

func TestRedisLocker(t *testing.T) {
	// WHAT: two lockers on one Redis exclude each other.
	addr := os.Getenv("COURSESYNC_TEST_REDIS")
	if addr == "" {
		t.Skip("COURSESYNC_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	a := NewRedisLocker(client, time.Minute, nil)
	b := NewRedisLocker(client, time.Minute, nil)

	release, err := a.Acquire(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Acquire(ctx, key); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("got %v, want ErrRunInProgress", err)
	}
	release()
	relB, err := b.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	relB()
}

func TestNewLocker_Local(t *testing.T) {
	l, closeFn, err := NewLocker(context.Background(), RedisConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := l.(*LocalLocker); !ok {
		t.Fatalf("got %T, want *LocalLocker", l)
	}
}
