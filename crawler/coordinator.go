// Package crawler drives a scan: it walks the site breadth-first with a
// bounded worker pool, validates every referenced link and image, and
// builds the report.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/frontier"
	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/robots"
	"github.com/use-agent/linkscan/validator"
)

var (
	errScanDeadline = errors.New("scan wall-clock limit reached")
	errExhausted    = errors.New("scan resource ceiling exceeded")
)

// Fetcher retrieves page content. *engine.Selector satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
}

// Coordinator runs scans. One Coordinator may run many scans
// concurrently; each scan has its own frontier, robots cache and
// validation memo.
type Coordinator struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

// New creates a Coordinator.
func New(fetcher Fetcher, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{fetcher: fetcher, opts: opts.withDefaults(), logger: logger}
}

// RunScan crawls req.URL and returns the finalized report. Limits and
// caller cancellation produce a truncated report and a nil error. Only
// an invalid request or a tripped resource ceiling return an error; in
// the latter case the partial report is returned too.
func (c *Coordinator) RunScan(ctx context.Context, req models.ScanRequest) (*models.ScanReport, error) {
	return c.RunScanObserved(ctx, req, nil)
}

// RunScanObserved is RunScan with a callback invoked with the visited
// page count after each page.
func (c *Coordinator) RunScanObserved(ctx context.Context, req models.ScanRequest, progress func(pages int)) (*models.ScanReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	seed, err := frontier.Normalize(req.URL, "")
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeInvalidRequest, "url cannot be normalized", err)
	}

	s := c.newScan(seed, req, progress)
	return s.run(ctx)
}

type event struct {
	page  *pageEvent
	check *models.ValidationResult
}

// scan is the state of one RunScan call. Fields below the mutable
// marker are touched only by the coordinator goroutine.
type scan struct {
	c        *Coordinator
	opts     Options
	req      models.ScanRequest
	seed     string
	scope    *frontier.Scope
	front    *frontier.Frontier
	gate     *robots.Gate
	polite   *Politeness
	valid    *validator.Validator
	guard    *guard
	logger   *slog.Logger
	progress func(int)
	events   chan event

	// mutable
	b              *builder
	inflightPages  int
	inflightChecks int
	pagesStarted   int
	queued         map[string]bool
	pending        []string
	stopping       bool
}

func (c *Coordinator) newScan(seed string, req models.ScanRequest, progress func(int)) *scan {
	opts := c.opts.merge(req.Options)
	logger := c.logger.With("scan", seed)

	s := &scan{
		c:        c,
		opts:     opts,
		req:      req,
		seed:     seed,
		scope:    frontier.NewScope(seed, req.Options.EffectiveScope(), req.Options.ExcludePatterns, req.Options.FollowPatterns),
		front:    frontier.New(opts.MaxDepth),
		polite:   NewPoliteness(opts.PolitenessDelay),
		guard:    newGuard(opts.MaxHeapBytes, opts.MaxFrontier),
		logger:   logger,
		progress: progress,
		events:   make(chan event, 2*opts.Concurrency),
		b:        newBuilder(seed, time.Now()),
		queued:   make(map[string]bool),
	}
	s.gate = robots.NewGate(&http.Client{Transport: opts.Transport, Timeout: opts.ValidateTimeout}, opts.UserAgent, logger)
	s.valid = validator.New(validator.Options{
		Timeout:      opts.ValidateTimeout,
		MaxRedirects: opts.MaxRedirects,
		UserAgent:    opts.UserAgent,
		Transport:    opts.Transport,
		Waiter:       s.polite,
		Policy:       s.allowed,
		Logger:       logger,
	})
	return s
}

func (s *scan) run(ctx context.Context) (*models.ScanReport, error) {
	workCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.opts.MaxDuration > 0 {
		timer := time.AfterFunc(s.opts.MaxDuration, func() { cancel(errScanDeadline) })
		defer timer.Stop()
	}

	s.logger.Info("scan started",
		"scope", s.req.Options.EffectiveScope(),
		"max_depth", s.opts.MaxDepth,
		"max_pages", s.opts.MaxPages,
		"concurrency", s.opts.Concurrency,
		"cooperation", s.req.Cooperation != nil,
	)

	s.front.Enqueue(frontier.Entry{URL: s.seed})
	if s.req.Options.UseSitemaps {
		s.seedSitemaps(workCtx)
	}

	var pages, checks errgroup.Group
	pages.SetLimit(s.opts.Concurrency)
	checks.SetLimit(s.opts.Concurrency)

	ticker := time.NewTicker(s.opts.GuardInterval)
	defer ticker.Stop()
	done := workCtx.Done()

	for {
		s.dispatch(workCtx, &pages, &checks)
		if s.idle() {
			break
		}

		select {
		case ev := <-s.events:
			if ev.page != nil {
				s.handlePage(ev.page)
			} else {
				s.handleCheck(workCtx, *ev.check)
			}
		case <-done:
			done = nil
			s.stop(workCtx)
		case <-ticker.C:
			if reason := s.guard.check(s.front.Len()); reason != "" && !s.b.report.Aborted {
				s.logger.Error("scan aborted", "reason", reason)
				s.b.abort(reason)
				cancel(errExhausted)
			}
		}
	}

	pages.Wait()
	checks.Wait()

	reason := s.b.report.TruncatedReason
	if !s.stopping && s.front.Len() > 0 {
		reason = models.TruncatedPages
		s.b.truncate(reason)
	}
	for _, e := range s.front.Drain() {
		s.b.addSkipped(models.SkippedPage{URL: e.URL, Referrer: e.Referrer, Reason: "not visited: " + reason})
	}

	report := s.b.finalize(time.Now())
	s.logger.Info("scan finished",
		"pages", report.Summary.TotalPages,
		"checked", report.Summary.TotalLinksChecked,
		"broken", report.Summary.BrokenCount,
		"truncated", report.Truncated,
		"reason", report.TruncatedReason,
		"aborted", report.Aborted,
		"duration", report.Duration(),
	)

	if report.Aborted {
		return report, models.NewScanError(models.ErrCodeResourceExhausted, report.AbortReason, errExhausted)
	}
	return report, nil
}

// dispatch starts as much queued work as the pools allow.
func (s *scan) dispatch(ctx context.Context, pages, checks *errgroup.Group) {
	if s.stopping {
		return
	}
	for s.inflightPages < s.opts.Concurrency && s.pagesStarted < s.opts.MaxPages {
		e, ok := s.front.Dequeue()
		if !ok {
			break
		}
		s.inflightPages++
		s.pagesStarted++
		pages.Go(func() error {
			s.events <- event{page: s.visit(ctx, e)}
			return nil
		})
	}
	for s.inflightChecks < s.opts.Concurrency && len(s.pending) > 0 {
		target := s.pending[0]
		s.pending = s.pending[1:]
		s.inflightChecks++
		checks.Go(func() error {
			res := s.valid.Validate(ctx, target, s.coopFor(target))
			s.events <- event{check: &res}
			return nil
		})
	}
}

// idle reports whether nothing is running and nothing more will start.
func (s *scan) idle() bool {
	if s.inflightPages > 0 || s.inflightChecks > 0 {
		return false
	}
	if s.stopping {
		return true
	}
	return len(s.pending) == 0 && (s.front.Len() == 0 || s.pagesStarted >= s.opts.MaxPages)
}

// stop records why the work context ended. In-flight workers observe the
// cancellation and report back; nothing new is started.
func (s *scan) stop(workCtx context.Context) {
	s.stopping = true
	s.pending = nil

	switch cause := context.Cause(workCtx); {
	case errors.Is(cause, errExhausted):
	case errors.Is(cause, errScanDeadline):
		s.logger.Warn("scan wall-clock limit reached", "limit", s.opts.MaxDuration)
		s.b.truncate(models.TruncatedDuration)
	default:
		s.logger.Info("scan canceled by caller")
		s.b.truncate(models.TruncatedCanceled)
	}
}

func (s *scan) handlePage(ev *pageEvent) {
	s.inflightPages--
	e := ev.entry

	switch {
	case ev.blocked:
		s.pagesStarted--
		s.b.addSkipped(models.SkippedPage{URL: e.URL, Referrer: e.Referrer, Reason: "disallowed by robots.txt"})
		s.settle(models.ValidationResult{
			TargetURL: e.URL,
			Outcome:   models.OutcomeBlocked,
			Error:     "disallowed by robots.txt",
		})
		return
	case ev.stopped:
		s.b.addSkipped(models.SkippedPage{URL: e.URL, Referrer: e.Referrer, Reason: "scan stopped"})
		return
	}

	s.b.addPage(ev.record)
	s.settle(ev.result)
	if final := ev.record.FinalURL; final != "" && s.front.MarkVisited(final) {
		s.settle(models.ValidationResult{
			TargetURL:  final,
			Outcome:    ev.result.Outcome,
			StatusCode: ev.result.StatusCode,
			Method:     ev.result.Method,
		})
	}

	for _, ref := range ev.record.References {
		s.route(ref, e.Depth)
	}
	if s.progress != nil {
		s.progress(s.b.report.PagesVisited)
	}
}

func (s *scan) handleCheck(workCtx context.Context, res models.ValidationResult) {
	s.inflightChecks--
	if s.stopping && workCtx.Err() != nil && res.Outcome == models.OutcomeUnknown {
		res.Error = unresolvedDetail
	}
	s.b.addResult(res)
}

// route decides what happens to a reference found at depth: crawl it as
// a page, validate it, or nothing because it is already covered.
func (s *scan) route(ref models.ResourceReference, depth int) {
	s.b.addReference(ref)
	target := ref.TargetURL
	if s.b.resolved(target) || s.queued[target] || s.stopping {
		return
	}

	if ref.Kind == models.RefLink && s.scope.Contains(target) && s.scope.ShouldCrawl(target) {
		if s.front.Seen(target) {
			return
		}
		if s.pagesStarted >= s.opts.MaxPages {
			s.b.truncate(models.TruncatedPages)
			return
		}
		if s.front.Enqueue(frontier.Entry{URL: target, Depth: depth + 1, Referrer: ref.SourceURL}) {
			return
		}
		s.b.truncate(models.TruncatedDepth)
	}

	s.queued[target] = true
	s.pending = append(s.pending, target)
}

// settle records a result the crawl produced itself and shares it with
// the validator so the target is never requested twice.
func (s *scan) settle(res models.ValidationResult) {
	if s.b.addResult(res) {
		s.valid.Memo().Store(res)
	}
}

func (s *scan) seedSitemaps(ctx context.Context) {
	if s.opts.MaxDepth < 1 {
		return
	}
	added := 0
	for _, raw := range s.gate.SitemapURLs(ctx, s.seed, s.opts.SitemapLimit) {
		u, err := frontier.Normalize(raw, s.seed)
		if err != nil || !s.scope.Contains(u) || !s.scope.ShouldCrawl(u) {
			continue
		}
		if s.front.Enqueue(frontier.Entry{URL: u, Depth: 1}) {
			added++
		}
	}
	s.logger.Debug("sitemap seeding done", "added", added)
}

// coopFor returns the cooperation context for in-scope targets only.
func (s *scan) coopFor(target string) *models.Cooperation {
	if s.scope.Contains(target) {
		return s.req.Cooperation
	}
	return nil
}

// allowed is the validator's robots hook. Third-party hosts are not
// subject to the scanned site's robots.txt.
func (s *scan) allowed(ctx context.Context, target string) bool {
	if !s.scope.Contains(target) {
		return true
	}
	return s.gate.IsAllowed(ctx, target, s.opts.UserAgent, s.coopFor(target))
}
