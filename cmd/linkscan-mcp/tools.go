package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/linkscan/models"
)

// maxListed caps the problems listed per section of a tool result.
const maxListed = 50

func handleScanSite(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req := &models.ScanRequest{URL: url}
		req.Options.MaxDepth = request.GetInt("max_depth", 0)
		req.Options.MaxPages = request.GetInt("max_pages", 0)
		req.Options.Scope = request.GetString("scope", "")
		req.Options.UseSitemaps = request.GetBool("use_sitemaps", false)

		job, err := c.submit(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scan request failed: %v", err)), nil
		}

		st, err := c.wait(ctx, job.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling scan %s failed: %v", job.ID, err)), nil
		}
		return statusResult(st), nil
	}
}

func handleGetScan(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		st, err := c.status(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return statusResult(st), nil
	}
}

func handleCancelScan(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		resp, err := c.cancel(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Scan %s: %s", resp.ID, resp.Status)), nil
	}
}

func statusResult(st models.ScanStatusResponse) *mcp.CallToolResult {
	if st.Error != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan %s %s: [%s] %s", st.ID, st.Status, st.Error.Code, st.Error.Message))
	}
	return mcp.NewToolResultText(formatStatus(st))
}

// formatStatus renders a job as plain text for a model to read.
func formatStatus(st models.ScanStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan %s: %s (%s, %d pages visited)\n", st.ID, st.Status, st.URL, st.PagesVisited)

	r := st.Report
	if r == nil {
		return sb.String()
	}
	if r.Truncated {
		fmt.Fprintf(&sb, "Truncated: %s\n", r.TruncatedReason)
	}
	if r.Aborted {
		fmt.Fprintf(&sb, "Aborted: %s\n", r.AbortReason)
	}
	s := r.Summary
	fmt.Fprintf(&sb, "\n%d pages, %d links checked, %d ok, %d problems\n",
		s.TotalPages, s.TotalLinksChecked, s.OkCount, s.BrokenCount)

	writeProblems(&sb, "Broken links", r.BrokenLinks)
	writeProblems(&sb, "Missing images", r.MissingImages)
	return sb.String()
}

func writeProblems(sb *strings.Builder, title string, problems []models.ProblemResource) {
	if len(problems) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(problems))
	for i, p := range problems {
		if i == maxListed {
			fmt.Fprintf(sb, "  ... and %d more\n", len(problems)-maxListed)
			return
		}
		fmt.Fprintf(sb, "  - %s [%s", p.URL, p.Outcome)
		if p.StatusCode != 0 {
			fmt.Fprintf(sb, " %d", p.StatusCode)
		}
		sb.WriteString("]")
		if len(p.FoundOn) > 0 {
			fmt.Fprintf(sb, " on %s", p.FoundOn[0])
		}
		sb.WriteString("\n")
	}
}
