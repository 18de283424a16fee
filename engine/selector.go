package engine

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/simhash"
)

// Selector chooses between the static and render paths for each page.
// Static always goes first unless the host is known to need a render; a
// render that fails degrades to the static result.
type Selector struct {
	static     Engine
	render     Engine // nil disables escalation
	memory     *DomainMemory
	heuristics Heuristics
	logger     *slog.Logger

	renderTimeout time.Duration
}

// SelectorOptions configures a Selector.
type SelectorOptions struct {
	Memory        *DomainMemory
	Heuristics    *Heuristics
	RenderTimeout time.Duration
	Logger        *slog.Logger
}

// NewSelector creates a Selector. render may be nil.
func NewSelector(static, render Engine, opts SelectorOptions) *Selector {
	s := &Selector{
		static:        static,
		render:        render,
		memory:        opts.Memory,
		heuristics:    DefaultHeuristics,
		logger:        opts.Logger,
		renderTimeout: opts.RenderTimeout,
	}
	if opts.Heuristics != nil {
		s.heuristics = *opts.Heuristics
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.renderTimeout <= 0 {
		s.renderTimeout = 30 * time.Second
	}
	return s
}

// RenderEnabled reports whether the selector can escalate.
func (s *Selector) RenderEnabled() bool { return s.render != nil }

// Fetch retrieves req.URL and returns content tagged with the strategy
// that produced it. Errors are fetch errors of the static path; render
// errors never surface here.
func (s *Selector) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	host := hostOf(req.URL)

	// ── 1. Known client-rendered host: render directly ──
	if s.render != nil && s.memory.Get(host) == models.StrategyRendered {
		s.logger.Debug("domain memory hit", "host", host, "strategy", models.StrategyRendered)
		res, err := s.renderPage(ctx, req)
		if err == nil {
			res.Escalation = "domain_memory"
			return res, nil
		}
		s.logger.Info("remembered render failed, falling back to static", "host", host, "error", err)
		s.memory.Delete(host)
	}

	// ── 2. Static fetch ──
	static, err := s.static.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.render == nil || !static.IsHTML() {
		return static, nil
	}

	// ── 3. Escalation decision ──
	needs, reason := s.heuristics.NeedsRender(static.HTML)
	if !needs {
		return static, nil
	}
	if static.StatusCode >= 400 && reason != ReasonAntiBot {
		return static, nil
	}
	if s.memory.Get(host) == models.StrategyStatic {
		s.logger.Debug("skipping render, host renders identically", "host", host, "reason", reason)
		return static, nil
	}

	// ── 4. Render, degrading to static on failure ──
	s.logger.Debug("escalating to render", "url", req.URL, "reason", reason)
	rendered, err := s.renderPage(ctx, req)
	if err != nil {
		s.logger.Warn("render failed, keeping static result", "url", req.URL, "error", err)
		static.RenderError = err.Error()
		static.Escalation = reason
		return static, nil
	}
	rendered.Escalation = reason
	if rendered.StatusCode == 0 {
		rendered.StatusCode = static.StatusCode
	}

	// ── 5. Learn whether rendering was worth it for this host ──
	if cmp := simhash.Compare(static.HTML, rendered.HTML); cmp.SameStructure() {
		s.memory.Set(host, models.StrategyStatic)
	} else {
		s.memory.Set(host, models.StrategyRendered)
	}
	return rendered, nil
}

func (s *Selector) renderPage(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.renderTimeout)
	defer cancel()

	r := *req
	r.Timeout = s.renderTimeout
	return s.render.Fetch(ctx, &r)
}

// hostOf parses the host (with port) from a URL string.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
