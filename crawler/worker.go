package crawler

import (
	"context"
	"time"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/extractor"
	"github.com/use-agent/linkscan/frontier"
	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/validator"
)

// pageEvent is what a page worker reports back. Exactly one is sent per
// dispatched entry.
type pageEvent struct {
	entry   frontier.Entry
	blocked bool // robots.txt said no
	stopped bool // the scan ended before the fetch completed
	record  models.PageRecord
	result  models.ValidationResult
}

// visit runs one page through robots check, politeness, fetch and
// extraction.
func (s *scan) visit(ctx context.Context, e frontier.Entry) *pageEvent {
	ev := &pageEvent{entry: e}
	coop := s.coopFor(e.URL)

	// ── 1. Robots ──
	if !s.gate.IsAllowed(ctx, e.URL, s.opts.UserAgent, coop) {
		if ctx.Err() != nil {
			ev.stopped = true
		} else {
			ev.blocked = true
		}
		return ev
	}

	// ── 2. Politeness ──
	host := frontier.Host(e.URL)
	s.polite.Raise(host, s.gate.CrawlDelay(ctx, e.URL, s.opts.UserAgent, coop))
	if err := s.polite.Wait(ctx, host); err != nil {
		ev.stopped = true
		return ev
	}

	// ── 3. Fetch ──
	rec := models.PageRecord{
		URL:        e.URL,
		Depth:      e.Depth,
		Referrer:   e.Referrer,
		FetchedAt:  time.Now(),
		References: []models.ResourceReference{},
	}
	res, err := s.c.fetcher.Fetch(ctx, &engine.FetchRequest{URL: e.URL, Cooperation: coop})
	rec.DurationMs = time.Since(rec.FetchedAt).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			ev.stopped = true
			return ev
		}
		s.logger.Debug("page fetch failed", "url", e.URL, "error", err)
		rec.Error = err.Error()
		ev.record = rec
		ev.result = models.ValidationResult{
			TargetURL: e.URL,
			Outcome:   validator.ClassifyError(err),
			Method:    "PAGE",
			Error:     rec.Error,
		}
		return ev
	}

	rec.StatusCode = res.StatusCode
	rec.Strategy = res.Strategy
	rec.RenderError = res.RenderError
	base := e.URL
	if res.FinalURL != "" {
		if final, err := frontier.Normalize(res.FinalURL, ""); err == nil && final != e.URL {
			rec.FinalURL = final
			base = final
		}
	}
	ev.result = models.ValidationResult{
		TargetURL:  e.URL,
		Outcome:    validator.ClassifyStatus(res.StatusCode),
		StatusCode: res.StatusCode,
		FinalURL:   rec.FinalURL,
		Method:     "PAGE",
	}

	// ── 4. Extract ──
	// Error pages and redirects that leave the site are not mined for links.
	if res.IsHTML() && res.StatusCode < 400 && s.scope.Contains(base) {
		for ref := range extractor.Extract(res.HTML, base) {
			rec.References = append(rec.References, ref)
		}
	}
	ev.record = rec
	return ev
}
