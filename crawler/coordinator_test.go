package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

func testOptions() Options {
	return Options{
		Concurrency:     4,
		MaxDepth:        3,
		MaxPages:        50,
		MaxDuration:     10 * time.Second,
		ValidateTimeout: 2 * time.Second,
		GuardInterval:   50 * time.Millisecond,
	}
}

func newTestCoordinator(opts Options) *Coordinator {
	return New(engine.NewHTTPEngine(engine.HTTPOptions{Timeout: 2 * time.Second}), opts, nil)
}

func problemURLs(rows []models.ProblemResource) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.URL)
	}
	return out
}

func TestRunScanBrokenLinkAndImage(t *testing.T) {
	t.Parallel()

	ext := newTestSite(t)
	ext.status("/ok", http.StatusOK)

	site := newTestSite(t)
	site.page("/", fmt.Sprintf(`<a href="/missing">gone</a> <img src="/logo.png"> <a href="%s/ok">partner</a>`, ext.URL))
	site.status("/missing", http.StatusNotFound)
	site.status("/logo.png", http.StatusOK)

	report, err := newTestCoordinator(testOptions()).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}

	if len(report.BrokenLinks) != 1 {
		t.Fatalf("brokenLinks = %v, want one entry", problemURLs(report.BrokenLinks))
	}
	broken := report.BrokenLinks[0]
	if broken.URL != site.URL+"/missing" || broken.Outcome != models.OutcomeBroken || broken.StatusCode != 404 {
		t.Errorf("broken link = %+v", broken)
	}
	if !slices.Equal(broken.FoundOn, []string{site.URL + "/"}) {
		t.Errorf("foundOn = %v", broken.FoundOn)
	}
	if len(report.MissingImages) != 0 {
		t.Errorf("missingImages = %v, want none", problemURLs(report.MissingImages))
	}
	if report.Summary.OkCount < 1 {
		t.Errorf("okCount = %d, want >= 1", report.Summary.OkCount)
	}
	if report.Truncated || report.Aborted {
		t.Errorf("truncated=%v aborted=%v", report.Truncated, report.Aborted)
	}
	if res, ok := report.Result(ext.URL + "/ok"); !ok || res.Outcome != models.OutcomeOK || res.Method != http.MethodHead {
		t.Errorf("external result = %+v", res)
	}
	if ext.count(http.MethodGet, "/ok") != 0 {
		t.Error("off-site link was crawled")
	}
	if report.Summary.TotalPages != 1 {
		t.Errorf("totalPages = %d, want 1", report.Summary.TotalPages)
	}
}

func TestRunScanRobotsDisallow(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	site.page("/", `<a href="/private/report">secret</a> <img src="/private/chart.png"> <a href="/public">pub</a>`)
	site.page("/public", `hello`)
	site.page("/private/report", `should never be fetched`)
	site.status("/private/chart.png", http.StatusOK)

	report, err := newTestCoordinator(testOptions()).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}

	for _, path := range []string{"/private/report", "/private/chart.png"} {
		res, ok := report.Result(site.URL + path)
		if !ok || res.Outcome != models.OutcomeBlocked {
			t.Errorf("%s result = %+v, want blocked", path, res)
		}
		if n := site.requests(path); n != 0 {
			t.Errorf("%s was requested %d times", path, n)
		}
	}
	if report.PagesSkipped != 1 || report.Skipped[0].URL != site.URL+"/private/report" {
		t.Errorf("skipped = %+v", report.Skipped)
	}
	if report.PagesVisited != 2 {
		t.Errorf("pagesVisited = %d, want 2", report.PagesVisited)
	}
}

func TestRunScanCooperationCredentials(t *testing.T) {
	t.Parallel()

	ext := newTestSite(t)
	var leaked atomic.Bool
	ext.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get("X-Api-Key") != "" {
			leaked.Store(true)
		}
	})

	site := newTestSite(t)
	requireAuth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if u, p, ok := r.BasicAuth(); !ok || u != "owner" || p != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	site.mux.HandleFunc("/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a href="/members">m</a><img src="/badge.png"><a href="%s/x">x</a></body></html>`, ext.URL)
	}))
	site.mux.HandleFunc("/members", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>members</body></html>`)
	}))
	site.mux.HandleFunc("/badge.png", requireAuth(func(w http.ResponseWriter, r *http.Request) {}))

	t.Run("without credentials", func(t *testing.T) {
		report, err := newTestCoordinator(testOptions()).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
		if err != nil {
			t.Fatalf("RunScan error: %v", err)
		}
		if res, _ := report.Result(site.URL + "/"); res.Outcome != models.OutcomeBlocked {
			t.Errorf("seed outcome = %q, want blocked", res.Outcome)
		}
	})

	t.Run("with credentials", func(t *testing.T) {
		req := models.ScanRequest{
			URL: site.URL,
			Cooperation: &models.Cooperation{
				WhitelistIP:     true,
				SiteCredentials: &models.SiteCredentials{User: "owner", Pass: "hunter2"},
				APIKey:          "key-1",
			},
		}
		report, err := newTestCoordinator(testOptions()).RunScan(context.Background(), req)
		if err != nil {
			t.Fatalf("RunScan error: %v", err)
		}
		for _, path := range []string{"/", "/members", "/badge.png"} {
			if res, _ := report.Result(site.URL + path); res.Outcome != models.OutcomeOK {
				t.Errorf("%s outcome = %q (status %d), want ok", path, res.Outcome, res.StatusCode)
			}
		}
		if leaked.Load() {
			t.Error("credentials were sent to a third-party host")
		}
	})
}

// shellRenderer stands in for the browser: it returns hydrated markup.
type shellRenderer struct{ html string }

func (r *shellRenderer) Name() string { return "fake-render" }

func (r *shellRenderer) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return &engine.FetchResult{
		HTML:        r.html,
		StatusCode:  http.StatusOK,
		FinalURL:    req.URL,
		ContentType: "text/html",
		EngineName:  r.Name(),
		Strategy:    models.StrategyRendered,
	}, nil
}

func TestRunScanEscalatesSPAShell(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	})
	site.status("/docs", http.StatusOK)

	render := &shellRenderer{html: `<html><body><div id="root"><img src="/hero.png"><a href="/docs">Docs</a></div></body></html>`}
	selector := engine.NewSelector(engine.NewHTTPEngine(engine.HTTPOptions{}), render, engine.SelectorOptions{})
	opts := testOptions()
	opts.MaxDepth = 0

	report, err := New(selector, opts, nil).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}

	if len(report.Pages) != 1 || report.Pages[0].Strategy != models.StrategyRendered {
		t.Fatalf("pages = %+v, want one rendered page", report.Pages)
	}
	if got := problemURLs(report.MissingImages); !slices.Equal(got, []string{site.URL + "/hero.png"}) {
		t.Errorf("missingImages = %v", got)
	}
	if res, _ := report.Result(site.URL + "/docs"); res.Outcome != models.OutcomeOK {
		t.Errorf("/docs outcome = %q, want ok", res.Outcome)
	}
}

func TestRunScanValidatesSharedTargetOnce(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/a">a</a><a href="/b">b</a><img src="/shared.png">`)
	site.page("/a", `<img src="/shared.png"><a href="/b">b</a>`)
	site.page("/b", `<img src="/shared.png"><a href="/a">a</a><a href="/">home</a>`)
	site.status("/shared.png", http.StatusNotFound)

	report, err := newTestCoordinator(testOptions()).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}

	if n := site.requests("/shared.png"); n != 1 {
		t.Errorf("/shared.png requested %d times, want 1", n)
	}
	for _, path := range []string{"/", "/a", "/b"} {
		if n := site.count(http.MethodGet, path); n != 1 {
			t.Errorf("GET %s = %d, want 1", path, n)
		}
	}
	if len(report.MissingImages) != 1 || len(report.MissingImages[0].FoundOn) != 3 {
		t.Errorf("missingImages = %+v, want one entry found on 3 pages", report.MissingImages)
	}

	seen := make(map[string]bool)
	for _, v := range report.Validations {
		if seen[v.TargetURL] {
			t.Errorf("duplicate validation for %s", v.TargetURL)
		}
		seen[v.TargetURL] = true
	}
}

func TestRunScanPoliteness(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/1">1</a><a href="/2">2</a><a href="/3">3</a>`)
	for _, p := range []string{"/1", "/2", "/3"} {
		site.page(p, "leaf")
	}

	const delay = 80 * time.Millisecond
	opts := testOptions()
	opts.PolitenessDelay = delay

	report, err := newTestCoordinator(opts).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}
	if len(report.Pages) != 4 {
		t.Fatalf("pages = %d, want 4", len(report.Pages))
	}

	times := make([]time.Time, 0, len(report.Pages))
	for _, p := range report.Pages {
		times = append(times, p.FetchedAt)
	}
	slices.SortFunc(times, func(a, b time.Time) int { return a.Compare(b) })
	for i := 1; i < len(times); i++ {
		// Allow for timer granularity.
		if gap := times[i].Sub(times[i-1]); gap < delay-10*time.Millisecond {
			t.Errorf("fetch %d came %v after the previous one, want >= %v", i, gap, delay)
		}
	}
}

func TestRunScanDepthLimit(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/a">a</a>`)
	site.page("/a", `<a href="/b">b</a>`)
	site.page("/b", `<a href="/c">c</a>`)

	opts := testOptions()
	opts.MaxDepth = 1

	report, err := newTestCoordinator(opts).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}
	if !report.Truncated || report.TruncatedReason != models.TruncatedDepth {
		t.Errorf("truncated=%v reason=%q, want max_depth", report.Truncated, report.TruncatedReason)
	}
	if site.count(http.MethodGet, "/b") != 0 {
		t.Error("/b was crawled beyond the depth limit")
	}
	res, ok := report.Result(site.URL + "/b")
	if !ok || res.Outcome != models.OutcomeOK || res.Method != http.MethodHead {
		t.Errorf("/b result = %+v, want HEAD ok", res)
	}
}

func TestRunScanPageLimit(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	var links strings.Builder
	for i := range 6 {
		fmt.Fprintf(&links, `<a href="/p%d">p</a>`, i)
		site.page(fmt.Sprintf("/p%d", i), "leaf")
	}
	site.page("/", links.String())

	opts := testOptions()
	opts.Concurrency = 1
	opts.MaxPages = 3

	report, err := newTestCoordinator(opts).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}
	if report.PagesVisited != 3 {
		t.Errorf("pagesVisited = %d, want 3", report.PagesVisited)
	}
	if !report.Truncated || report.TruncatedReason != models.TruncatedPages {
		t.Errorf("truncated=%v reason=%q, want max_pages", report.Truncated, report.TruncatedReason)
	}
	if len(report.Validations) != 7 {
		t.Errorf("validations = %d, want 7 (seed plus 6 links)", len(report.Validations))
	}
	if report.Summary.ByOutcome[models.OutcomeUnknown] != 4 {
		t.Errorf("unknown outcomes = %d, want 4", report.Summary.ByOutcome[models.OutcomeUnknown])
	}
}

func TestRunScanWallClockLimit(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/slow">slow</a>`)
	site.mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	opts := testOptions()
	opts.MaxDuration = 300 * time.Millisecond

	start := time.Now()
	report, err := newTestCoordinator(opts).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("scan took %v after a 300ms limit", elapsed)
	}
	if !report.Truncated || report.TruncatedReason != models.TruncatedDuration {
		t.Errorf("truncated=%v reason=%q, want max_duration", report.Truncated, report.TruncatedReason)
	}
	res, _ := report.Result(site.URL + "/slow")
	if res.Outcome != models.OutcomeUnknown || res.Error != unresolvedDetail {
		t.Errorf("/slow result = %+v", res)
	}
}

func TestRunScanCallerCancel(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/hang">hang</a>`)
	site.mux.HandleFunc("/hang", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	report, err := newTestCoordinator(testOptions()).RunScan(ctx, models.ScanRequest{URL: site.URL})
	if err != nil {
		t.Fatalf("RunScan error: %v", err)
	}
	if !report.Truncated || report.TruncatedReason != models.TruncatedCanceled {
		t.Errorf("truncated=%v reason=%q, want canceled", report.Truncated, report.TruncatedReason)
	}
	if report.PagesVisited != 1 {
		t.Errorf("pagesVisited = %d, want 1", report.PagesVisited)
	}
}

func TestRunScanAbortsOnResourceCeiling(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	var links strings.Builder
	for i := range 10 {
		fmt.Fprintf(&links, `<a href="/p/%d">p</a>`, i)
	}
	site.page("/", links.String())
	site.mux.HandleFunc("/p/", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	opts := testOptions()
	opts.Concurrency = 1
	opts.MaxFrontier = 3
	opts.GuardInterval = 10 * time.Millisecond

	report, err := newTestCoordinator(opts).RunScan(context.Background(), models.ScanRequest{URL: site.URL})
	if !errors.Is(err, models.ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
	if report == nil || !report.Aborted || report.AbortReason == "" {
		t.Fatalf("report = %+v, want an aborted partial report", report)
	}
	if report.PagesVisited < 1 {
		t.Errorf("partial report lost the visited seed page")
	}
}

func TestRunScanRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(testOptions())
	tests := []models.ScanRequest{
		{URL: ""},
		{URL: "ftp://example.com/"},
		{URL: "/relative"},
		{URL: "https://example.com/", Cooperation: &models.Cooperation{SiteCredentials: &models.SiteCredentials{User: "only-user"}}},
	}
	for _, req := range tests {
		t.Run(req.URL, func(t *testing.T) {
			report, err := c.RunScan(context.Background(), req)
			if !errors.Is(err, models.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
			if report != nil {
				t.Error("report returned for invalid request")
			}
		})
	}
}

func TestRunScanProgress(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	site.page("/", `<a href="/a">a</a>`)
	site.page("/a", `leaf`)

	var counts []int
	_, err := newTestCoordinator(testOptions()).RunScanObserved(context.Background(), models.ScanRequest{URL: site.URL}, func(n int) {
		counts = append(counts, n)
	})
	if err != nil {
		t.Fatalf("RunScanObserved error: %v", err)
	}
	if !slices.Equal(counts, []int{1, 2}) {
		t.Errorf("progress = %v, want [1 2]", counts)
	}
}
