// Command linkscan-mcp exposes the linkscan job API as MCP tools over stdio.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("LINKSCAN_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LINKSCAN_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "LINKSCAN_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newAPIClient(apiURL, apiKey string) *apiClient {
	return &apiClient{
		http:      &http.Client{Timeout: 60 * time.Second},
		baseURL:   apiURL,
		apiKey:    apiKey,
		pollEvery: 2 * time.Second,
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"linkscan",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scanSiteTool := mcp.NewTool("scan_site",
		mcp.WithDescription("Crawl a website and report broken links and missing images. Blocks until the scan finishes and returns a summary of every problem found."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The seed URL to scan"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum link depth from the seed (default: 3)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to visit (default: 200)"),
		),
		mcp.WithString("scope",
			mcp.Description("Crawl scope: 'host' (default, exact host) or 'site' (same registrable domain)"),
			mcp.Enum("host", "site"),
		),
		mcp.WithBoolean("use_sitemaps",
			mcp.Description("Seed the crawl from robots.txt sitemaps"),
		),
	)
	s.AddTool(scanSiteTool, handleScanSite(c))

	getScanTool := mcp.NewTool("get_scan",
		mcp.WithDescription("Fetch the status and, once finished, the problem summary of a scan job."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The scan job id returned by scan_site"),
		),
	)
	s.AddTool(getScanTool, handleGetScan(c))

	cancelScanTool := mcp.NewTool("cancel_scan",
		mcp.WithDescription("Cancel a running scan. Its partial report stays available through get_scan."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The scan job id"),
		),
	)
	s.AddTool(cancelScanTool, handleCancelScan(c))

	return s
}
