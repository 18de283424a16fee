package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/linkscan/api"
	"github.com/use-agent/linkscan/api/handler"
	"github.com/use-agent/linkscan/cache"
	"github.com/use-agent/linkscan/webhook"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan job HTTP API",
		Long: `Serve exposes scans as background jobs:

  POST   /api/v1/scans       submit a scan
  GET    /api/v1/scans/:id   poll status and fetch the report
  DELETE /api/v1/scans/:id   cancel a scan
  GET    /api/v1/health      liveness (no auth)

Listen address, API keys and limits come from LINKSCAN_* variables.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().Int("port", 0, "Listen port (overrides LINKSCAN_PORT)")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	// ── 1. Load configuration ──
	cfg, sites, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// ── 2. Logging ──
	logger := newLogger(cfg)
	logger.Info("linkscan starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrentScans", cfg.Jobs.MaxConcurrent,
	)

	// ── 3. Scan engine (launches the browser when enabled) ──
	a, err := newApp(cfg, sites, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// ── 4. Job store, webhooks, router ──
	store := cache.New(cfg.Jobs.MaxJobs, cfg.Jobs.TTL)
	defer store.Close()
	notifier := webhook.NewNotifier(cfg.Jobs.WebhookTimeout, logger)
	scans := handler.NewScans(a.coordinator, store, notifier, sites, cfg.Jobs.MaxConcurrent, logger)
	router := api.NewRouter(cfg, scans, store, a.stats(), time.Now())

	// ── 5. HTTP server ──
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 6. Graceful shutdown ──
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced shutdown", "error", err)
	} else {
		logger.Info("HTTP server drained gracefully")
	}

	// store.Close cancels running scans; a.Close then stops the browser.
	logger.Info("linkscan stopped")
	return nil
}
