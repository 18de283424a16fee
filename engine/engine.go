// Package engine fetches pages either with a plain HTTP request or a
// headless-browser render and chooses between the two.
package engine

import (
	"context"
	"mime"
	"strings"
	"time"

	"github.com/use-agent/linkscan/models"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "render").
	Name() string

	// Fetch retrieves the page content for the given request. HTTP error
	// statuses are results, not errors.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool

	// Cooperation is set only for hosts inside the scan scope.
	Cooperation *models.Cooperation
}

// FetchResult is the output of an engine fetch. Strategy tags which path
// produced HTML; consumers never inspect the engine type.
type FetchResult struct {
	HTML        string
	Title       string
	StatusCode  int
	FinalURL    string
	ContentType string
	EngineName  string
	Strategy    models.Strategy

	// RenderError is set when a render was attempted and failed, in
	// which case the static content is returned.
	RenderError string
	// Escalation names the heuristic that triggered a render.
	Escalation string
}

// IsHTML reports whether the result carries an HTML document.
func (r *FetchResult) IsHTML() bool {
	return isHTMLContentType(r.ContentType)
}

// outboundHeaders merges request headers with cooperation credentials.
// Credentials win.
func (r *FetchRequest) outboundHeaders() map[string]string {
	out := make(map[string]string, len(r.Headers)+2)
	for k, v := range r.Headers {
		out[k] = v
	}
	for k, v := range r.Cooperation.Headers() {
		out[k] = v
	}
	return out
}

// isHTMLContentType returns true if the content-type header looks like HTML.
// A missing header is treated as HTML, as browsers do when sniffing.
func isHTMLContentType(ct string) bool {
	if strings.TrimSpace(ct) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(ct)
	}
	return strings.Contains(mt, "text/html") || strings.Contains(mt, "application/xhtml+xml")
}
