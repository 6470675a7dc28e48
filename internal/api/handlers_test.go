// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carousel/internal/config"
	"github.com/tomtom215/carousel/internal/history"
	"github.com/tomtom215/carousel/internal/models"
	"github.com/tomtom215/carousel/internal/supervisor"
)

// fakeController scripts controller behavior for handler tests.
type fakeController struct {
	running      bool
	startErr     error
	stopErr      error
	runErr       error
	probeVersion string
	probeErr     error
	lastDryRun   bool
}

func (f *fakeController) Start(dryRun bool) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.lastDryRun = dryRun
	return nil
}

func (f *fakeController) Stop() error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeController) RunNow() error { return f.runErr }

func (f *fakeController) Status() models.WorkerStatus {
	state := models.WorkerIdle
	if f.running {
		state = models.WorkerRunning
	}
	return models.WorkerStatus{Running: f.running, State: state, DryRun: f.lastDryRun}
}

func (f *fakeController) TestConnection(context.Context) (string, error) {
	return f.probeVersion, f.probeErr
}

func newTestRouter(t *testing.T, controller WorkerController) http.Handler {
	t.Helper()
	store := history.NewStore(filepath.Join(t.TempDir(), "history.json"))
	store.Record("Movies", []string{"A"}, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := &config.ServerConfig{
		RateLimitReqs:   100,
		RateLimitWindow: time.Minute,
	}
	return NewRouter(cfg, NewHandler(controller, store, "test"))
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
}

func TestWorkerStartDryRunFlag(t *testing.T) {
	fake := &fakeController{}
	rec := doRequest(t, newTestRouter(t, fake), http.MethodPost, "/api/v1/worker/start", `{"dry_run":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !fake.lastDryRun {
		t.Error("dry_run flag was not passed to the controller")
	}
}

func TestWorkerStartConflictWhenRunning(t *testing.T) {
	fake := &fakeController{startErr: supervisor.ErrAlreadyRunning}
	rec := doRequest(t, newTestRouter(t, fake), http.MethodPost, "/api/v1/worker/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != "already_running" {
		t.Errorf("error = %+v, want already_running", env.Error)
	}
}

func TestWorkerStartRejectsMalformedBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodPost, "/api/v1/worker/start", "{bad json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWorkerStopNotRunning(t *testing.T) {
	fake := &fakeController{stopErr: supervisor.ErrNotRunning}
	rec := doRequest(t, newTestRouter(t, fake), http.MethodPost, "/api/v1/worker/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestWorkerRunAccepted(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodPost, "/api/v1/worker/run", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestWorkerStatusEndpoint(t *testing.T) {
	fake := &fakeController{running: true}
	rec := doRequest(t, newTestRouter(t, fake), http.MethodGet, "/api/v1/worker/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"last_known_status":"running"`) {
		t.Errorf("body missing running state: %s", rec.Body.String())
	}
}

func TestPlexTestReportsFailureInBody(t *testing.T) {
	fake := &fakeController{probeErr: errors.New("connection refused")}
	rec := doRequest(t, newTestRouter(t, fake), http.MethodPost, "/api/v1/plex/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, probe failures are reported in the body", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("body = %s, want success:false", rec.Body.String())
	}
}

func TestHistoryEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodGet, "/api/v1/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "success" || env.Data == nil {
		t.Errorf("envelope = %+v, want success with data", env)
	}
	if !strings.Contains(rec.Body.String(), `"title":"A"`) {
		t.Errorf("body missing recorded entry: %s", rec.Body.String())
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	rec := doRequest(t, newTestRouter(t, &fakeController{}), http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
