// Package scraper drives a headless Chrome to render client-side pages.
package scraper

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/linkscan/models"
)

// Config controls the browser and render behavior.
type Config struct {
	Headless    bool
	NoSandbox   bool
	BrowserBin  string
	Proxy       string
	MaxContexts int // concurrent pages; renders beyond this wait

	// SettleDelay is waited after the DOM stabilises, for late XHRs.
	SettleDelay          time.Duration
	BlockedResourceTypes []string
	BlockAds             bool
	UserAgent            string
}

// Renderer manages the browser lifecycle and the pool of pages.
// It is safe for concurrent use.
type Renderer struct {
	browser   *rod.Browser
	pages     *Pool[rod.Page]
	cfg       Config
	logger    *slog.Logger
	startTime time.Time
}

// NewRenderer launches a browser and initialises the page pool.
func NewRenderer(cfg Config, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxContexts < 1 {
		cfg.MaxContexts = 2
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeRender, "failed to launch browser", err)
	}
	logger.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScanError(models.ErrCodeRender, "failed to connect to browser", err)
	}

	r := &Renderer{
		browser:   browser,
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
	r.pages = NewPool(cfg.MaxContexts,
		func() (*rod.Page, error) {
			return browser.Page(proto.TargetCreateTarget{})
		},
		func(p *rod.Page) {
			_ = p.Close()
		},
	)
	logger.Info("page pool created", "maxContexts", cfg.MaxContexts)
	return r, nil
}

// Stats reports the pool state.
type Stats struct {
	MaxContexts int `json:"maxContexts"`
	Active      int `json:"active"`
	Live        int `json:"live"`
}

// Stats returns a snapshot of the pool's current state.
func (r *Renderer) Stats() Stats {
	return Stats{
		MaxContexts: r.cfg.MaxContexts,
		Active:      r.pages.Active(),
		Live:        r.pages.Live(),
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (r *Renderer) Close() {
	r.logger.Info("renderer shutting down: draining page pool")
	r.pages.Close()
	if err := r.browser.Close(); err != nil {
		r.logger.Warn("browser close failed", "error", err)
	}
	r.logger.Info("renderer shutdown complete")
}
