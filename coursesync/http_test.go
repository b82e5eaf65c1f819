package coursesync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/coursesync/metrics"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var obj map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &obj); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, obj
}

func TestHTTP_ProcessAllLinks(t *testing.T) {
	// WHAT: the trigger endpoint answers 200 with the report, 404 for an
	// unknown sheet and 409 while a run holds the sheet.
	lock := NewLocalLocker()
	fx := newFixture(t, WithLocker(lock))
	sh := fx.register(t)
	h := fx.svc.Handler(nil)

	w, body := doJSON(t, h, "POST", "/api/sheets/"+sh.ID+"/process-all-links", "")
	if w.Code != 200 {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["totalCells"] != float64(3) || body["processed"] != float64(3) || body["runId"] == "" {
		t.Errorf("body: %v", body)
	}
	if _, ok := body["processedCells"].([]any); !ok {
		t.Errorf("processedCells missing: %v", body)
	}

	w, body = doJSON(t, h, "POST", "/api/sheets/sht_missing/process-all-links", `{}`)
	if w.Code != 404 || body["success"] != false || body["error"] == "" {
		t.Errorf("unknown sheet: %d %v", w.Code, body)
	}

	release, _ := lock.Acquire(context.Background(), sh.ID)
	w, body = doJSON(t, h, "POST", "/api/sheets/"+sh.ID+"/process-all-links", `{"testDriveLink":""}`)
	release()
	if w.Code != 409 || body["success"] != false {
		t.Errorf("locked sheet: %d %v", w.Code, body)
	}

	w, _ = doJSON(t, h, "POST", "/api/sheets/"+sh.ID+"/process-all-links", `{not json`)
	if w.Code != 400 {
		t.Errorf("bad body: %d", w.Code)
	}
}

func TestHTTP_ProcessAllLinks_SetupFailure(t *testing.T) {
	// WHAT: missing credentials is a 500 with {success:false,error}.
	svc, err := New(testConfig(t), nil, WithRecorder(&fakeRecorder{}))
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	sh, _ := svc.RegisterSheet(context.Background(), SheetInput{SpreadsheetID: "SS1"})

	w, body := doJSON(t, svc.Handler(nil), "POST", "/api/sheets/"+sh.ID+"/process-all-links", "")
	if w.Code != 500 || body["success"] != false || !strings.Contains(body["error"].(string), "credentials") {
		t.Fatalf("got %d %v", w.Code, body)
	}
}

func TestHTTP_ProcessAllLinks_PartialRun(t *testing.T) {
	// WHAT: a run with failed cells still answers 200 and carries the
	// failures in the report.
	fx := newFixture(t)
	fx.files.failIDs = map[string]bool{"FILE2": true}
	sh := fx.register(t)

	w, body := doJSON(t, fx.svc.Handler(nil), "POST", "/api/sheets/"+sh.ID+"/process-all-links", "")
	if w.Code != 200 {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if body["processed"] != float64(2) || body["failed"] != float64(1) {
		t.Fatalf("body: %v", body)
	}
	if errs, ok := body["errors"].([]any); !ok || len(errs) != 1 {
		t.Fatalf("errors: %v", body["errors"])
	}
}

func TestHTTP_ProcessAllLinks_UpstreamTabMissing(t *testing.T) {
	// WHAT: a registered sheet whose tab no longer exists is a 404 on both
	// the trigger and the scan.
	fx := newFixture(t)
	sh, err := fx.svc.RegisterSheet(context.Background(), SheetInput{SpreadsheetID: "course-workbook", SheetName: "Archive"})
	if err != nil {
		t.Fatalf("RegisterSheet: %v", err)
	}
	h := fx.svc.Handler(nil)

	w, body := doJSON(t, h, "POST", "/api/sheets/"+sh.ID+"/process-all-links", "")
	if w.Code != 404 || body["success"] != false {
		t.Fatalf("process: %d %v", w.Code, body)
	}
	if w, _ = doJSON(t, h, "GET", "/api/sheets/"+sh.ID+"/scan", ""); w.Code != 404 {
		t.Fatalf("scan: %d", w.Code)
	}
}

func TestHTTP_SheetsAndRuns(t *testing.T) {
	fx := newFixture(t)
	h := fx.svc.Handler(nil)

	w, created := doJSON(t, h, "POST", "/api/sheets/", `{"name":"Khoá A","spreadsheet_id":"SS1","sheet_name":"Sheet1"}`)
	if w.Code != 201 {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	id := created["id"].(string)

	if w, _ := doJSON(t, h, "POST", "/api/sheets/", `{"spreadsheet_id":"SS1","sheet_name":"Sheet1"}`); w.Code != 409 {
		t.Errorf("duplicate: %d", w.Code)
	}
	if w, _ := doJSON(t, h, "POST", "/api/sheets/", `{"spreadsheet_id":""}`); w.Code != 400 {
		t.Errorf("invalid: %d", w.Code)
	}

	w, got := doJSON(t, h, "GET", "/api/sheets/"+id, "")
	if w.Code != 200 || got["spreadsheet_id"] != "SS1" {
		t.Errorf("get: %d %v", w.Code, got)
	}
	if w, body := doJSON(t, h, "GET", "/api/sheets/sht_missing", ""); w.Code != 404 || body["success"] != false {
		t.Errorf("get missing: %d %v", w.Code, body)
	}

	w, _ = doJSON(t, h, "GET", "/api/sheets/", "")
	var list []Sheet
	json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != 200 || len(list) != 1 {
		t.Errorf("list: %d %s", w.Code, w.Body.String())
	}

	res, err := fx.svc.ProcessSheet(context.Background(), id, "")
	if err != nil {
		t.Fatal(err)
	}
	w, _ = doJSON(t, h, "GET", "/api/sheets/"+id+"/runs?limit=5", "")
	var runs []Run
	json.Unmarshal(w.Body.Bytes(), &runs)
	if w.Code != 200 || len(runs) != 1 || runs[0].ID != res.RunID || runs[0].Report != nil {
		t.Errorf("runs: %d %s", w.Code, w.Body.String())
	}
	w, run := doJSON(t, h, "GET", "/api/runs/"+res.RunID, "")
	if w.Code != 200 || run["status"] != "ok" || run["report"] == nil {
		t.Errorf("run: %d %v", w.Code, run)
	}
	if w, _ := doJSON(t, h, "GET", "/api/runs/run_missing", ""); w.Code != 404 {
		t.Errorf("missing run: %d", w.Code)
	}

	w, scan := doJSON(t, h, "GET", "/api/sheets/"+id+"/scan", "")
	if w.Code != 200 || scan["totalCells"] != float64(0) {
		t.Errorf("scan after run: %d %v", w.Code, scan)
	}

	if w, _ := doJSON(t, h, "DELETE", "/api/sheets/"+id, ""); w.Code != 200 {
		t.Errorf("delete: %d", w.Code)
	}
	if w, _ := doJSON(t, h, "DELETE", "/api/sheets/"+id, ""); w.Code != 404 {
		t.Errorf("delete again: %d", w.Code)
	}
}

func TestHTTP_RoutesAdmin(t *testing.T) {
	// WHAT: a route written through the API is live on the router at once.
	fx := newFixture(t)
	h := fx.svc.Handler(nil)

	w, route := doJSON(t, h, "PUT", "/api/routes/video_transcode",
		`{"strategy":"http","endpoint":"https://video.example/transcode","config":{"timeout_ms":1000}}`)
	if w.Code != 200 || route["strategy"] != "http" {
		t.Fatalf("upsert: %d %s", w.Code, w.Body.String())
	}
	if w, _ := doJSON(t, h, "PUT", "/api/routes/video_transcode", `{"strategy":"carrier-pigeon"}`); w.Code != 400 {
		t.Errorf("bad strategy: %d", w.Code)
	}

	w, _ = doJSON(t, h, "GET", "/api/services", "")
	var services []struct {
		Name     string `json:"name"`
		Strategy string `json:"strategy"`
		HasLocal bool   `json:"has_local"`
	}
	json.Unmarshal(w.Body.Bytes(), &services)
	found := map[string]string{}
	for _, s := range services {
		found[s.Name] = s.Strategy
	}
	if found["video_transcode"] != "http" || found["file_copy"] != "local" || found["pdf_clean"] != "local" {
		t.Errorf("services: %s", w.Body.String())
	}

	w, _ = doJSON(t, h, "GET", "/api/routes", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "video.example") {
		t.Errorf("list routes: %d %s", w.Code, w.Body.String())
	}

	if w, _ := doJSON(t, h, "DELETE", "/api/routes/video_transcode", ""); w.Code != 200 {
		t.Errorf("delete: %d", w.Code)
	}
	if w, _ := doJSON(t, h, "DELETE", "/api/routes/video_transcode", ""); w.Code != 404 {
		t.Errorf("delete again: %d", w.Code)
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	fx := newFixture(t)
	h := fx.svc.Handler(nil)

	w, body := doJSON(t, h, "GET", "/health", "")
	if w.Code != 200 || body["status"] != "ok" || body["sheets_backend"] != true {
		t.Errorf("health: %d %v", w.Code, body)
	}
	if w.Header().Get("X-Trace-ID") == "" {
		t.Error("shield stack not mounted: no X-Trace-ID")
	}

	metrics.Recorder{}.ObserveRun(nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `coursesync_runs_total{status="error"}`) {
		t.Errorf("metrics: %d", rec.Code)
	}
}
