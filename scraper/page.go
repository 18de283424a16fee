package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

// Render loads req.URL in a pooled page and returns the DOM snapshot.
// It matches engine.RenderFunc.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Acquire page        – waits on the context semaphore
//  2. DEFER: cleanup      – about:blank + release, on every exit path
//  3. Stealth injection   – before navigation
//  4. Extra headers       – non-credential headers for every request
//  5. Hijack mount        – resource blocking + same-host credentials
//  6. Navigate
//  7. Wait                – DOM stable, then the settle delay
//  8. Extract             – HTML, status, title, final URL
func (r *Renderer) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// ── 1. Acquire page ───────────────────────────────────────────────
	h, err := r.pages.Acquire(ctx)
	if err != nil {
		return nil, categorizeError(err, "failed to acquire browser page")
	}
	page := h.Value

	// ── 2. Cleanup: blank the page and return it, even on error ───────
	ok := false
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			r.logger.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
			ok = false
		}
		r.pages.Release(h, ok)
	}()

	// ── 3. Stealth injection ──────────────────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			r.logger.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 4. Extra headers ──────────────────────────────────────────────
	extra := make(map[string]string, len(req.Headers)+1)
	if r.cfg.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}.Call(page)
	}
	for k, v := range req.Headers {
		extra[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extra)}.Call(page)

	// ── 5. Hijack router ──────────────────────────────────────────────
	rules := newHijackRules(r.cfg.BlockedResourceTypes, r.cfg.BlockAds, req.URL, req.Cooperation.Headers())
	if router := setupHijack(page, rules); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// ── 6. Navigate ───────────────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}

	// ── 7. Wait ───────────────────────────────────────────────────────
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		r.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	if r.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "settle delay interrupted")
		case <-time.After(r.cfg.SettleDelay):
		}
	}

	// ── 8. Extract ────────────────────────────────────────────────────
	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	ok = true
	return &engine.FetchResult{
		HTML:        rawHTML,
		Title:       evalStringOrEmpty(p, `() => document.title`),
		StatusCode:  statusCode,
		FinalURL:    finalURL,
		ContentType: "text/html",
		Strategy:    models.StrategyRendered,
	}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into RENDER_FAILED ScanErrors, keeping
// timeouts distinguishable through errors.Is.
func categorizeError(err error, msg string) *models.ScanError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScanError(models.ErrCodeRender, msg+": timeout", err)
	case errors.Is(err, context.Canceled):
		return models.NewScanError(models.ErrCodeRender, "render canceled", err)
	default:
		return models.NewScanError(models.ErrCodeRender, msg, err)
	}
}
