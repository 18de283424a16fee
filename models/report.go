package models

import "time"

// Strategy names the fetch path that produced a page's content.
type Strategy string

const (
	StrategyStatic   Strategy = "static"
	StrategyRendered Strategy = "rendered"
)

// RefKind distinguishes hyperlinks from image sources.
type RefKind string

const (
	RefLink  RefKind = "link"
	RefImage RefKind = "image"
)

// Outcome is the classification of a validated resource.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeBroken     Outcome = "broken"
	OutcomeRedirected Outcome = "redirected"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeUnknown    Outcome = "unknown"
)

// Problem reports whether the outcome belongs in brokenLinks/missingImages.
func (o Outcome) Problem() bool {
	switch o {
	case OutcomeBroken, OutcomeRedirected, OutcomeTimeout:
		return true
	}
	return false
}

// ResourceReference is one candidate link or image found on a page.
type ResourceReference struct {
	SourceURL string  `json:"sourceUrl"`
	TargetURL string  `json:"targetUrl"`
	Kind      RefKind `json:"kind"`
	// Context is a short element description, e.g. `a "Pricing"`.
	Context string `json:"context,omitempty"`
}

// PageRecord describes one fetched page. It is created once per visited
// URL and not modified afterwards.
type PageRecord struct {
	URL        string              `json:"url"`
	FinalURL   string              `json:"finalUrl,omitempty"`
	Depth      int                 `json:"depth"`
	Referrer   string              `json:"referrer,omitempty"`
	StatusCode int                 `json:"statusCode"`
	Strategy   Strategy            `json:"strategyUsed,omitempty"`
	FetchedAt  time.Time           `json:"fetchedAt"`
	DurationMs int64               `json:"durationMs"`
	References []ResourceReference `json:"references"`
	Error      string              `json:"error,omitempty"`

	// RenderError is set when a render was attempted and the static
	// result was kept instead.
	RenderError string `json:"renderError,omitempty"`
}

// SkippedPage is an in-scope URL that was not fetched.
type SkippedPage struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer,omitempty"`
	Reason   string `json:"reason"`
}

// ValidationResult is the single verdict for one target URL in a scan.
type ValidationResult struct {
	TargetURL  string  `json:"targetUrl"`
	Outcome    Outcome `json:"outcome"`
	StatusCode int     `json:"statusCode,omitempty"`
	FinalURL   string  `json:"finalUrl,omitempty"`
	Method     string  `json:"method,omitempty"` // HEAD, GET or PAGE
	Error      string  `json:"error,omitempty"`
}

// ProblemResource is a report row for a broken link or missing image.
type ProblemResource struct {
	URL        string   `json:"url"`
	Outcome    Outcome  `json:"outcome"`
	StatusCode int      `json:"statusCode,omitempty"`
	Error      string   `json:"error,omitempty"`
	FoundOn    []string `json:"foundOn"`
}

// Summary holds the aggregate counters of a report.
type Summary struct {
	TotalPages        int             `json:"totalPages"`
	TotalLinksChecked int             `json:"totalLinksChecked"`
	BrokenCount       int             `json:"brokenCount"`
	OkCount           int             `json:"okCount"`
	ByOutcome         map[Outcome]int `json:"byOutcome"`
}

// Truncation reasons.
const (
	TruncatedDepth    = "max_depth"
	TruncatedPages    = "max_pages"
	TruncatedDuration = "max_duration"
	TruncatedCanceled = "canceled"
)

// ScanReport is the finalized result of one scan.
type ScanReport struct {
	ScannedURL      string    `json:"scannedUrl"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Truncated       bool      `json:"truncated"`
	TruncatedReason string    `json:"truncatedReason,omitempty"`
	Aborted         bool      `json:"aborted"`
	AbortReason     string    `json:"abortReason,omitempty"`
	PagesVisited    int       `json:"pagesVisited"`
	PagesSkipped    int       `json:"pagesSkipped"`

	Pages         []PageRecord       `json:"pages"`
	Skipped       []SkippedPage      `json:"skipped"`
	Validations   []ValidationResult `json:"validations"`
	BrokenLinks   []ProblemResource  `json:"brokenLinks"`
	MissingImages []ProblemResource  `json:"missingImages"`
	Summary       Summary            `json:"summary"`
}

// Duration returns the wall-clock time the scan took.
func (r *ScanReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result looks up the validation result for a target URL.
func (r *ScanReport) Result(target string) (ValidationResult, bool) {
	for _, v := range r.Validations {
		if v.TargetURL == target {
			return v, true
		}
	}
	return ValidationResult{}, false
}
