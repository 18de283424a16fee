// Package report renders finished scan reports.
package report

import (
	"fmt"
	"io"

	"github.com/use-agent/linkscan/models"
)

// Output formats accepted by NewWriter.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Writer renders a ScanReport to its destination.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *models.ScanReport) (int, error)
}

// NewWriter returns the Writer for format.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	}
	return nil, fmt.Errorf("report: unknown format %q", format)
}
