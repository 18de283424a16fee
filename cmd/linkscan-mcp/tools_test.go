package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/linkscan/models"
)

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return text.Text
}

// fakeAPI serves one job that completes on the second poll.
func fakeAPI(t *testing.T) (*httptest.Server, *models.ScanRequest) {
	t.Helper()
	var polls atomic.Int32
	got := &models.ScanRequest{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"UNAUTHORIZED","message":"invalid API key"}}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(got)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"id":"scan-1","status":"queued"}`)
	})
	mux.HandleFunc("GET /api/v1/scans/scan-1", func(w http.ResponseWriter, _ *http.Request) {
		st := models.ScanStatusResponse{ID: "scan-1", URL: "https://example.com/", Status: models.JobRunning}
		if polls.Add(1) >= 2 {
			st.Status = models.JobCompleted
			st.PagesVisited = 3
			st.Report = &models.ScanReport{
				Summary: models.Summary{TotalPages: 3, TotalLinksChecked: 9, OkCount: 8, BrokenCount: 1},
				BrokenLinks: []models.ProblemResource{{
					URL: "https://example.com/gone", Outcome: models.OutcomeBroken, StatusCode: 404,
					FoundOn: []string{"https://example.com/"},
				}},
			}
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("GET /api/v1/scans/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"NOT_FOUND","message":"scan job not found"}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, got
}

func TestScanSite(t *testing.T) {
	t.Parallel()
	srv, got := fakeAPI(t)
	c := newAPIClient(srv.URL, "k")
	c.pollEvery = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := handleScanSite(c)(ctx, callRequest(map[string]any{
		"url": "https://example.com/", "max_depth": float64(2), "scope": "site",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}

	text := resultText(t, res)
	for _, want := range []string{"scan-1: completed", "1 problems", "https://example.com/gone [broken 404]"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
	if got.Options.MaxDepth != 2 || got.Options.Scope != "site" {
		t.Errorf("submitted options = %+v", got.Options)
	}
}

func TestToolErrors(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t)

	tests := []struct {
		name    string
		client  *apiClient
		handler func(*apiClient) server.ToolHandlerFunc
		args    map[string]any
		want    string
	}{
		{"missing url", newAPIClient(srv.URL, "k"), handleScanSite, map[string]any{}, "url is required"},
		{"bad key", newAPIClient(srv.URL, "wrong"), handleScanSite, map[string]any{"url": "https://example.com/"}, "UNAUTHORIZED"},
		{"unknown job", newAPIClient(srv.URL, "k"), handleGetScan, map[string]any{"id": "scan-x"}, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := tt.handler(tt.client)(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Fatal("want tool error")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("error = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestFormatStatusCapsList(t *testing.T) {
	t.Parallel()
	var problems []models.ProblemResource
	for i := range maxListed + 5 {
		problems = append(problems, models.ProblemResource{URL: fmt.Sprintf("https://example.com/%d", i), Outcome: models.OutcomeBroken})
	}
	text := formatStatus(models.ScanStatusResponse{
		ID:     "scan-1",
		Status: models.JobCompleted,
		Report: &models.ScanReport{MissingImages: problems, Truncated: true, TruncatedReason: models.TruncatedPages},
	})
	if !strings.Contains(text, "... and 5 more") {
		t.Errorf("missing overflow line:\n%s", text)
	}
	if !strings.Contains(text, "Truncated: max_pages") {
		t.Errorf("missing truncation:\n%s", text)
	}
}
