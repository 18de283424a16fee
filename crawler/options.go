package crawler

import (
	"net/http"
	"time"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

// Options are the engine-wide scan bounds. Values in a ScanRequest
// override them per scan.
type Options struct {
	Concurrency     int
	MaxDepth        int
	MaxPages        int
	MaxDuration     time.Duration
	PolitenessDelay time.Duration
	UserAgent       string

	// ValidateTimeout bounds each HEAD or GET of the link validator.
	ValidateTimeout time.Duration
	MaxRedirects    int

	// MaxHeapBytes aborts the scan when the Go heap grows past it.
	// Zero disables the check.
	MaxHeapBytes uint64
	// MaxFrontier aborts the scan when more pages than this are queued.
	// Zero disables the check.
	MaxFrontier   int
	GuardInterval time.Duration

	// SitemapLimit caps how many sitemap URLs are seeded.
	SitemapLimit int

	// Transport is shared by the validator and robots fetches.
	Transport http.RoundTripper
}

// DefaultOptions returns the bounds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Concurrency:     8,
		MaxDepth:        3,
		MaxPages:        200,
		MaxDuration:     10 * time.Minute,
		PolitenessDelay: 250 * time.Millisecond,
		UserAgent:       engine.DefaultUserAgent,
		ValidateTimeout: engine.DefaultStaticTimeout,
		MaxRedirects:    engine.DefaultMaxRedirects,
		MaxHeapBytes:    2 << 30,
		MaxFrontier:     100_000,
		GuardInterval:   time.Second,
		SitemapLimit:    500,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.ValidateTimeout <= 0 {
		o.ValidateTimeout = d.ValidateTimeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = d.MaxRedirects
	}
	if o.GuardInterval <= 0 {
		o.GuardInterval = d.GuardInterval
	}
	if o.SitemapLimit <= 0 {
		o.SitemapLimit = d.SitemapLimit
	}
	if o.Transport == nil {
		o.Transport = engine.NewTransport()
	}
	return o
}

// merge applies the per-scan overrides of a request.
func (o Options) merge(so models.ScanOptions) Options {
	if so.Concurrency > 0 {
		o.Concurrency = so.Concurrency
	}
	if so.MaxDepth > 0 {
		o.MaxDepth = so.MaxDepth
	}
	if so.MaxPages > 0 {
		o.MaxPages = so.MaxPages
	}
	if so.MaxDuration > 0 {
		o.MaxDuration = time.Duration(so.MaxDuration)
	}
	if so.PolitenessDelay > 0 {
		o.PolitenessDelay = time.Duration(so.PolitenessDelay)
	}
	return o
}
