package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/report"
)

// errProblemsFound makes the process exit non-zero under --fail-on-broken.
var errProblemsFound = errors.New("broken links or missing images found")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Scan one site and print its report",
		Long: `Scan crawls the site at <url> and validates every link and image found.

Interrupting a scan (Ctrl-C) stops it and still prints the partial report.

Examples:
  # Markdown report on stdout
  linkscan scan https://example.com

  # JSON report to a file, two levels deep
  linkscan scan -d 2 -f json -o report.json https://example.com

  # Scan a staging site behind basic auth from a whitelisted runner
  linkscan scan --user ci --pass "$STAGING_PASS" --whitelisted https://staging.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runScanCmd,
	}

	cmd.Flags().IntP("depth", "d", 0, "Maximum link depth from the seed (0: engine default)")
	cmd.Flags().IntP("max-pages", "p", 0, "Maximum pages to visit (0: engine default)")
	cmd.Flags().Int("concurrency", 0, "Concurrent fetches (0: engine default)")
	cmd.Flags().Duration("max-duration", 0, "Wall-clock cap for the scan (0: engine default)")
	cmd.Flags().Duration("delay", 0, "Minimum delay between requests to one host (0: engine default)")
	cmd.Flags().String("scope", "", `Crawl scope: "host" or "site"`)
	cmd.Flags().StringSlice("exclude", nil, "Skip crawling URLs matching these patterns")
	cmd.Flags().StringSlice("follow", nil, "Only crawl URLs matching these patterns")
	cmd.Flags().Bool("sitemaps", false, "Seed the crawl from robots.txt sitemaps")

	cmd.Flags().Bool("whitelisted", false, "The site owner has whitelisted this scanner's egress IP")
	cmd.Flags().String("user", "", "Basic auth user for the site")
	cmd.Flags().String("pass", "", "Basic auth password for the site")
	cmd.Flags().String("api-key", "", "API key sent to the site")
	cmd.Flags().String("api-key-header", "", "Header carrying --api-key (default X-Api-Key)")

	cmd.Flags().StringP("format", "f", report.FormatMarkdown, "Report format: markdown or json")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().Bool("no-render", false, "Never escalate to a headless browser")
	cmd.Flags().Bool("fail-on-broken", false, "Exit non-zero when problems are found")

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, sites, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if noRender, _ := cmd.Flags().GetBool("no-render"); noRender {
		cfg.Browser.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	req, err := buildRequest(cmd, args[0])
	if err != nil {
		return err
	}
	sites.Apply(&req)

	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	logger := newLogger(cfg)
	a, err := newApp(cfg, sites, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := a.coordinator.RunScanObserved(ctx, req, func(pages int) {
		logger.Debug("scan progress", "pages", pages)
	})
	if err != nil && rep == nil {
		return err
	}

	if werr := writeReport(cmd.OutOrStdout(), format, output, rep); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	logger.Info("scan finished",
		"pages", rep.Summary.TotalPages,
		"checked", rep.Summary.TotalLinksChecked,
		"broken", rep.Summary.BrokenCount,
		"truncated", rep.Truncated,
		"duration", rep.Duration().String(),
	)
	if fail, _ := cmd.Flags().GetBool("fail-on-broken"); fail && rep.Summary.BrokenCount > 0 {
		return errProblemsFound
	}
	return nil
}

// buildRequest turns the command line into a ScanRequest.
func buildRequest(cmd *cobra.Command, seed string) (models.ScanRequest, error) {
	f := cmd.Flags()
	req := models.ScanRequest{URL: seed}
	o := &req.Options

	o.MaxDepth, _ = f.GetInt("depth")
	o.MaxPages, _ = f.GetInt("max-pages")
	o.Concurrency, _ = f.GetInt("concurrency")
	o.Scope, _ = f.GetString("scope")
	o.ExcludePatterns, _ = f.GetStringSlice("exclude")
	o.FollowPatterns, _ = f.GetStringSlice("follow")
	o.UseSitemaps, _ = f.GetBool("sitemaps")
	d, _ := f.GetDuration("max-duration")
	o.MaxDuration = models.Duration(d)
	d, _ = f.GetDuration("delay")
	o.PolitenessDelay = models.Duration(d)

	coop := &models.Cooperation{}
	coop.WhitelistIP, _ = f.GetBool("whitelisted")
	coop.APIKey, _ = f.GetString("api-key")
	coop.APIKeyHeader, _ = f.GetString("api-key-header")
	user, _ := f.GetString("user")
	pass, _ := f.GetString("pass")
	if user != "" || pass != "" {
		coop.SiteCredentials = &models.SiteCredentials{User: user, Pass: pass}
	}
	if *coop != (models.Cooperation{}) {
		req.Cooperation = coop
	}
	return req, req.Validate()
}

// writeReport renders rep to path, or to stdout when path is empty.
func writeReport(stdout io.Writer, format, path string, rep *models.ScanReport) error {
	out := stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
		file, err := os.Create(path) //nolint:gosec // user-chosen output path
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer file.Close()
		out = file
	}

	w, err := report.NewWriter(format, out)
	if err != nil {
		return err
	}
	_, err = w.Write(rep)
	return err
}
