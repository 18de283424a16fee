package report

import (
	"encoding/json"
	"io"

	"github.com/use-agent/linkscan/models"
)

// JSONWriter outputs reports in JSON, the shape served by the API.
type JSONWriter struct {
	output io.Writer
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) { w.indent = "  " }
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *JSONWriter) Write(report *models.ScanReport) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(report, "", w.indent)
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
