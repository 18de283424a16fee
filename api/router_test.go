package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkscan/api/handler"
	"github.com/use-agent/linkscan/cache"
	"github.com/use-agent/linkscan/config"
	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/scraper"
)

const testKey = "test-key"

// fakeRunner returns a fixed report, or blocks until canceled when block
// is set.
type fakeRunner struct {
	block   bool
	started chan struct{}
}

func (f *fakeRunner) RunScanObserved(ctx context.Context, req models.ScanRequest, progress func(int)) (*models.ScanReport, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return &models.ScanReport{ScannedURL: req.URL, Truncated: true, TruncatedReason: models.TruncatedCanceled}, nil
	}
	progress(1)
	return &models.ScanReport{
		ScannedURL:   req.URL,
		PagesVisited: 1,
		Pages:        []models.PageRecord{},
		Summary:      models.Summary{TotalPages: 1},
	}, nil
}

func newTestRouter(t *testing.T, runner handler.Runner, rps float64, stats func() scraper.Stats) *gin.Engine {
	t.Helper()
	store := cache.New(10, time.Minute)
	t.Cleanup(store.Close)
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{testKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: rps, Burst: int(rps)},
	}
	scans := handler.NewScans(runner, store, nil, nil, 2, nil)
	return NewRouter(cfg, scans, store, stats, time.Now())
}

func do(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error models.ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error.Code
}

func submit(t *testing.T, r http.Handler, body string) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/scans", body, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.ScanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.ID, "scan-") {
		t.Errorf("id = %q", resp.ID)
	}
	return resp.ID
}

func waitStatus(t *testing.T, r http.Handler, id, want string) models.ScanStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		w := do(r, http.MethodGet, "/api/v1/scans/"+id, "", true)
		if w.Code != http.StatusOK {
			t.Fatalf("GET status = %d", w.Code)
		}
		var resp models.ScanStatusResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status == want {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want %q", resp.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScanLifecycle(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, &fakeRunner{}, 100, nil)

	id := submit(t, r, `{"url":"https://example.com/"}`)
	resp := waitStatus(t, r, id, models.JobCompleted)
	if resp.Report == nil || resp.Report.ScannedURL != "https://example.com/" {
		t.Fatalf("report = %+v", resp.Report)
	}
	if resp.PagesVisited != 1 {
		t.Errorf("pagesVisited = %d, want 1", resp.PagesVisited)
	}
	if resp.Error != nil {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestScanCancel(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{block: true, started: make(chan struct{})}
	r := newTestRouter(t, runner, 100, nil)

	id := submit(t, r, `{"url":"https://example.com/"}`)
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("scan never started")
	}

	w := do(r, http.MethodDelete, "/api/v1/scans/"+id, "", true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	resp := waitStatus(t, r, id, models.JobCanceled)
	if resp.Report == nil || resp.Report.TruncatedReason != models.TruncatedCanceled {
		t.Errorf("report = %+v, want truncated by cancel", resp.Report)
	}
}

func TestScanErrors(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, &fakeRunner{}, 100, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		authed   bool
		wantCode int
		wantErr  string
	}{
		{"no key", http.MethodPost, "/api/v1/scans", `{"url":"https://example.com/"}`, false, http.StatusUnauthorized, models.ErrCodeUnauthorized},
		{"missing url", http.MethodPost, "/api/v1/scans", `{}`, true, http.StatusBadRequest, models.ErrCodeInvalidRequest},
		{"bad scheme", http.MethodPost, "/api/v1/scans", `{"url":"ftp://example.com/"}`, true, http.StatusBadRequest, models.ErrCodeInvalidRequest},
		{"half credentials", http.MethodPost, "/api/v1/scans", `{"url":"https://example.com/","cooperation":{"siteCredentials":{"user":"u"}}}`, true, http.StatusBadRequest, models.ErrCodeInvalidRequest},
		{"unknown job", http.MethodGet, "/api/v1/scans/scan-nope", "", true, http.StatusNotFound, models.ErrCodeNotFound},
		{"cancel unknown", http.MethodDelete, "/api/v1/scans/scan-nope", "", true, http.StatusNotFound, models.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body, tt.authed)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if got := errorCode(t, w); got != tt.wantErr {
				t.Errorf("code = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t, &fakeRunner{}, 1, nil)

	if w := do(r, http.MethodGet, "/api/v1/scans/scan-x", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("first status = %d", w.Code)
	}
	w := do(r, http.MethodGet, "/api/v1/scans/scan-x", "", true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if got := errorCode(t, w); got != models.ErrCodeRateLimited {
		t.Errorf("code = %q", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	stats := func() scraper.Stats { return scraper.Stats{MaxContexts: 10, Active: 9} }
	r := newTestRouter(t, &fakeRunner{}, 100, stats)

	w := do(r, http.MethodGet, "/api/v1/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.HealthResponse
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || !resp.Render {
		t.Errorf("health = %+v", resp)
	}
}
