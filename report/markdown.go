package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/use-agent/linkscan/models"
)

// maxFoundOn caps how many referring pages are listed per problem row.
const maxFoundOn = 3

// MarkdownWriter outputs a human-readable summary for sharing.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

func (w *MarkdownWriter) Write(report *models.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeProblems(md, "Broken Links", report.BrokenLinks)
	w.writeProblems(md, "Missing Images", report.MissingImages)
	w.writeSkipped(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *models.ScanReport) {
	md.H1("Link Scan Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + r.ScannedURL + "`"},
			{"Started", r.StartedAt.Format(time.RFC3339)},
			{"Duration", r.Duration().Round(time.Millisecond).String()},
			{"Pages Visited", strconv.Itoa(r.PagesVisited)},
			{"Pages Skipped", strconv.Itoa(r.PagesSkipped)},
			{"Status", statusText(r)},
		},
	})
	md.PlainText("")
}

func statusText(r *models.ScanReport) string {
	switch {
	case r.Aborted:
		return "Aborted: " + r.AbortReason
	case r.Truncated:
		return "Truncated (" + r.TruncatedReason + ")"
	}
	return "Complete"
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r *models.ScanReport) {
	s := r.Summary
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Targets checked", strconv.Itoa(s.TotalLinksChecked)},
		{"OK", strconv.Itoa(s.OkCount)},
		{"Problems", strconv.Itoa(s.BrokenCount)},
	}
	for _, o := range outcomeOrder {
		if n := s.ByOutcome[o]; n > 0 && o != models.OutcomeOK {
			rows = append(rows, []string{"  " + string(o), strconv.Itoa(n)})
		}
	}
	md.Table(markdown.TableSet{Header: []string{"Metric", "Count"}, Rows: rows})
	md.PlainText("")

	if s.TotalLinksChecked > 0 {
		chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Outcomes"), piechart.WithShowData(true))
		for _, o := range outcomeOrder {
			if n := s.ByOutcome[o]; n > 0 {
				chart.LabelAndIntValue(string(o), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case r.Aborted:
		md.Cautionf("The scan was aborted: %s. Results are partial.", r.AbortReason)
	case s.BrokenCount > 0:
		md.Warningf("%d broken link(s) or missing image(s) found.", s.BrokenCount)
	case r.Truncated:
		md.Note("The scan stopped early; some pages were not visited.")
	default:
		md.Tip("No broken links or missing images found.")
	}
	md.PlainText("")
}

var outcomeOrder = []models.Outcome{
	models.OutcomeOK,
	models.OutcomeBroken,
	models.OutcomeRedirected,
	models.OutcomeTimeout,
	models.OutcomeBlocked,
	models.OutcomeUnknown,
}

func (w *MarkdownWriter) writeProblems(md *markdown.Markdown, title string, rows []models.ProblemResource) {
	md.H2(title)
	md.PlainText("")
	if len(rows) == 0 {
		md.PlainText("None.")
		md.PlainText("")
		return
	}

	table := markdown.TableSet{Header: []string{"URL", "Outcome", "Status", "Found On"}}
	for _, p := range rows {
		status := "-"
		if p.StatusCode != 0 {
			status = strconv.Itoa(p.StatusCode)
		}
		table.Rows = append(table.Rows, []string{p.URL, string(p.Outcome), status, foundOn(p.FoundOn)})
	}
	md.Table(table)
	md.PlainText("")
}

func foundOn(pages []string) string {
	if len(pages) <= maxFoundOn {
		return strings.Join(pages, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(pages[:maxFoundOn], ", "), len(pages)-maxFoundOn)
}

func (w *MarkdownWriter) writeSkipped(md *markdown.Markdown, r *models.ScanReport) {
	if len(r.Skipped) == 0 {
		return
	}
	md.H2("Skipped Pages")
	md.PlainText("")
	items := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		items = append(items, s.URL+": "+s.Reason)
	}
	md.BulletList(items...)
	md.PlainText("")
}
