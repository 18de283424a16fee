package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/linkscan/config"
	"github.com/use-agent/linkscan/crawler"
	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/logging"
	"github.com/use-agent/linkscan/scraper"
)

// app is the wired scan engine shared by scan and serve.
type app struct {
	cfg         *config.Config
	sites       *config.File
	logger      *slog.Logger
	coordinator *crawler.Coordinator
	renderer    *scraper.Renderer // nil when rendering is off
}

// loadConfig reads the environment and the optional site file. A site
// file named with --config must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.File, error) {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Log.Verbose = true
	}
	explicit, _ := cmd.Flags().GetString("config")
	if explicit == "" {
		explicit = cfg.File
	}

	path := config.FindFile(explicit)
	if path == "" {
		return cfg, nil, nil
	}
	sites, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, nil, err
	}
	return cfg, sites, nil
}

// newApp builds the fetch stack: static engine, optional browser
// renderer, selector and coordinator.
func newApp(cfg *config.Config, sites *config.File, logger *slog.Logger) (*app, error) {
	transport := engine.NewTransport()
	static := engine.NewHTTPEngine(engine.HTTPOptions{
		Timeout:      cfg.Engine.StaticTimeout,
		MaxRedirects: cfg.Engine.MaxRedirects,
		UserAgent:    cfg.Engine.UserAgent,
		Transport:    transport,
	})

	a := &app{cfg: cfg, sites: sites, logger: logger}

	var render engine.Engine
	if cfg.Browser.Enabled {
		r, err := scraper.NewRenderer(scraper.Config{
			Headless:             cfg.Browser.Headless,
			NoSandbox:            cfg.Browser.NoSandbox,
			BrowserBin:           cfg.Browser.BrowserBin,
			Proxy:                cfg.Browser.Proxy,
			MaxContexts:          cfg.Browser.MaxContexts,
			SettleDelay:          cfg.Browser.SettleDelay,
			BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
			BlockAds:             cfg.Browser.BlockAds,
			UserAgent:            cfg.Engine.UserAgent,
		}, logger)
		if err != nil {
			// Static-only scans still work without a browser.
			logger.Warn("browser unavailable, rendering disabled", "error", err)
		} else {
			a.renderer = r
			// The callback keeps engine/ free of a scraper import.
			render = engine.NewRodEngine(r.Render, cfg.Browser.Stealth)
		}
	}

	selector := engine.NewSelector(static, render, engine.SelectorOptions{
		Memory:        engine.NewDomainMemory(cfg.Engine.DomainMemoryTTL),
		RenderTimeout: cfg.Browser.RenderTimeout,
		Logger:        logger,
	})

	a.coordinator = crawler.New(selector, crawler.Options{
		Concurrency:     cfg.Crawl.Concurrency,
		MaxDepth:        cfg.Crawl.MaxDepth,
		MaxPages:        cfg.Crawl.MaxPages,
		MaxDuration:     cfg.Crawl.MaxDuration,
		PolitenessDelay: cfg.Crawl.PolitenessDelay,
		UserAgent:       cfg.Engine.UserAgent,
		ValidateTimeout: cfg.Engine.StaticTimeout,
		MaxRedirects:    cfg.Engine.MaxRedirects,
		MaxHeapBytes:    uint64(max(cfg.Crawl.MaxHeapMB, 0)) << 20,
		MaxFrontier:     cfg.Crawl.MaxFrontier,
		Transport:       transport,
	}, logger)

	logger.Info("scan engine ready",
		"render", a.renderer != nil,
		"concurrency", cfg.Crawl.Concurrency,
		"maxPages", cfg.Crawl.MaxPages,
	)
	return a, nil
}

// stats exposes renderer pool stats, or nil when rendering is off.
func (a *app) stats() func() scraper.Stats {
	if a.renderer == nil {
		return nil
	}
	return a.renderer.Stats
}

func (a *app) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := logging.New(os.Stderr, logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: cfg.Log.Verbose,
	})
	slog.SetDefault(logger)
	return logger
}
