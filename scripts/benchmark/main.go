// Command benchmark times full scans against a running linkscan API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/linkscan/models"
)

// CLI flags
var (
	apiURL   = flag.String("api-url", "http://localhost:8080", "linkscan API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 3, "Number of scans per site for averaging")
	maxPages = flag.Int("max-pages", 50, "Page limit per scan")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Sites covering static, docs and script-heavy pages.
var testSites = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Docs", "https://go.dev/doc/"},
	{"Blog", "https://go.dev/blog/"},
	{"SPA", "https://react.dev"},
}

// --- Benchmark result types ---

type runResult struct {
	Run          int    `json:"run"`
	WallMs       int64  `json:"wall_ms"`
	ScanMs       int64  `json:"scan_ms"`
	Pages        int    `json:"pages"`
	Rendered     int    `json:"rendered"`
	LinksChecked int    `json:"links_checked"`
	Problems     int    `json:"problems"`
	Truncated    string `json:"truncated,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

type siteAverages struct {
	WallMs       float64 `json:"wall_ms"`
	Pages        float64 `json:"pages"`
	LinksChecked float64 `json:"links_checked"`
	MsPerPage    float64 `json:"ms_per_page"`
}

type siteResult struct {
	URL      string        `json:"url"`
	Label    string        `json:"label"`
	Runs     []runResult   `json:"runs"`
	Averages *siteAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp   string       `json:"timestamp"`
	APIURL      string       `json:"api_url"`
	RunsPerSite int          `json:"runs_per_site"`
	MaxPages    int          `json:"max_pages"`
	Results     []siteResult `json:"results"`
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	flag.Parse()

	fmt.Println("=== linkscan Benchmark Suite ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Runs/site:  %d\n", *runs)
	fmt.Printf("Max pages:  %d\n", *maxPages)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure linkscan is running (linkscan serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		RunsPerSite: *runs,
		MaxPages:    *maxPages,
	}

	for _, s := range testSites {
		fmt.Printf("Benchmarking [%s] %s ...\n", s.Label, s.URL)
		sr := siteResult{URL: s.URL, Label: s.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkSite(s.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d pages  %d checked  %d problems\n", rr.WallMs, rr.Pages, rr.LinksChecked, rr.Problems)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, *apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}
	return req, nil
}

func benchmarkSite(url string, run int) runResult {
	rr := runResult{Run: run}
	start := time.Now()

	scanReq := models.ScanRequest{URL: url}
	scanReq.Options.MaxPages = *maxPages
	body, err := json.Marshal(scanReq)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := newRequest(http.MethodPost, "/api/v1/scans", body)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	var job models.ScanResponse
	err = json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if err != nil || job.ID == "" {
		rr.Error = fmt.Sprintf("submit failed: HTTP %d", resp.StatusCode)
		return rr
	}

	st, err := poll(job.ID)
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	rr.WallMs = time.Since(start).Milliseconds()

	if st.Error != nil {
		rr.Error = st.Error.Message
		return rr
	}
	if st.Report == nil {
		rr.Error = "no report (" + st.Status + ")"
		return rr
	}

	r := st.Report
	rr.Success = true
	rr.ScanMs = r.Duration().Milliseconds()
	rr.Pages = r.Summary.TotalPages
	rr.LinksChecked = r.Summary.TotalLinksChecked
	rr.Problems = r.Summary.BrokenCount
	rr.Truncated = r.TruncatedReason
	for _, p := range r.Pages {
		if p.Strategy == models.StrategyRendered {
			rr.Rendered++
		}
	}
	return rr
}

// poll waits for a job to finish.
func poll(id string) (models.ScanStatusResponse, error) {
	for {
		time.Sleep(time.Second)
		req, err := newRequest(http.MethodGet, "/api/v1/scans/"+id, nil)
		if err != nil {
			return models.ScanStatusResponse{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return models.ScanStatusResponse{}, fmt.Errorf("poll failed: %w", err)
		}
		var st models.ScanStatusResponse
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return st, fmt.Errorf("decode error: %w", err)
		}
		if st.Status != models.JobQueued && st.Status != models.JobRunning {
			return st, nil
		}
	}
}

func computeAverages(runs []runResult) *siteAverages {
	var successCount int
	var avg siteAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.WallMs += float64(r.WallMs)
		avg.Pages += float64(r.Pages)
		avg.LinksChecked += float64(r.LinksChecked)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.WallMs /= n
	avg.Pages /= n
	avg.LinksChecked /= n
	if avg.Pages > 0 {
		avg.MsPerPage = avg.WallMs / avg.Pages
	}
	return &avg
}

func printTable(results []siteResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Site\tAvg Wall\tPages\tChecked\tms/page\n")
	fmt.Fprintf(w, "────\t────────\t─────\t───────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.0f\t%.0f\t%.0f\n",
			truncateURL(r.URL, 40),
			int64(r.Averages.WallMs),
			r.Averages.Pages,
			r.Averages.LinksChecked,
			r.Averages.MsPerPage,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
