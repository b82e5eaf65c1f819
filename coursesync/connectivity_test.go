package coursesync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/coursesync/connectivity"
)

func TestRegisterConnectivity(t *testing.T) {
	fx := newFixture(t)
	sh := fx.register(t)
	router := connectivity.New()
	fx.svc.RegisterConnectivity(router)
	ctx := context.Background()

	resp, err := router.Call(ctx, "coursesync_list_sheets", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sheets []Sheet
	if err := json.Unmarshal(resp, &sheets); err != nil || len(sheets) != 1 || sheets[0].ID != sh.ID {
		t.Fatalf("sheets: %s %v", resp, err)
	}

	payload, _ := json.Marshal(map[string]string{"sheet_id": sh.ID})
	resp, err = router.Call(ctx, "coursesync_process_sheet", payload)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var res struct {
		Processed int `json:"processed"`
	}
	json.Unmarshal(resp, &res)
	if res.Processed != 3 {
		t.Errorf("process response: %s", resp)
	}

	if _, err := router.Call(ctx, "coursesync_scan_sheet", []byte(`{}`)); err == nil {
		t.Error("scan without sheet_id succeeded")
	}
}

// loopbackProcessor is a video processor listening on 127.0.0.1.
func loopbackProcessor(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"newUrl":"https://drive.google.com/file/d/TRANSCODED/view"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNewRouter_PrivateEndpoints(t *testing.T) {
	// WHAT: a loopback processor is routable only when private endpoints
	// are allowed.
	srv, hits := loopbackProcessor(t)
	routes := []connectivity.Route{{ServiceName: "video_transcode", Strategy: "http", Endpoint: srv.URL}}
	ctx := context.Background()

	strict := NewRouter(connectivity.ResilienceConfig{}, nil, nil)
	defer strict.Close()
	if err := strict.SetRoutes(routes); !errors.Is(err, connectivity.ErrTransportBuild) {
		t.Fatalf("strict SetRoutes: %v, want ErrTransportBuild", err)
	}
	if _, err := strict.Call(ctx, "video_transcode", []byte(`{}`)); !errors.Is(err, connectivity.ErrNotRoutable) {
		t.Fatalf("strict Call: %v, want ErrNotRoutable", err)
	}

	open := NewRouter(connectivity.ResilienceConfig{}, nil, nil, connectivity.WithAllowPrivate())
	defer open.Close()
	if err := open.SetRoutes(routes); err != nil {
		t.Fatalf("SetRoutes: %v", err)
	}
	resp, err := open.Call(ctx, "video_transcode", []byte(`{}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var out struct {
		NewURL string `json:"newUrl"`
	}
	if err := json.Unmarshal(resp, &out); err != nil || out.NewURL == "" || hits.Load() != 1 {
		t.Fatalf("response %s, hits %d, err %v", resp, hits.Load(), err)
	}
}

func TestNew_AllowPrivateEndpointsConfig(t *testing.T) {
	// WHAT: allow_private_endpoints reaches the service's own router, so
	// an admin route to a loopback processor is built and called.
	srv, hits := loopbackProcessor(t)
	cfg := testConfig(t)
	cfg.AllowPrivateEndpoints = true
	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	ctx := context.Background()

	if err := svc.Admin().UpsertRoute(ctx, "video_transcode", "http", srv.URL, nil); err != nil {
		t.Fatalf("UpsertRoute: %v", err)
	}
	if _, err := svc.Router().Call(ctx, "video_transcode", []byte(`{}`)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("processor hits %d, want 1", hits.Load())
	}
}
