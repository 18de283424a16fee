package crawler

import (
	"slices"
	"strings"
	"time"

	"github.com/use-agent/linkscan/models"
)

// unresolvedDetail marks targets a stopped scan never got to.
const unresolvedDetail = "scan stopped before validation"

// truncation precedence: a later, stronger reason replaces a weaker one.
var truncationRank = map[string]int{
	models.TruncatedDepth:    1,
	models.TruncatedPages:    2,
	models.TruncatedDuration: 3,
	models.TruncatedCanceled: 4,
}

// refInfo tracks every page and kind a target was referenced as.
type refInfo struct {
	kinds   map[models.RefKind]bool
	foundOn []string
}

// builder accumulates the report. It is owned by the coordinator
// goroutine and is not safe for concurrent use.
type builder struct {
	report  *models.ScanReport
	refs    map[string]*refInfo
	order   []string // targets in first-seen order
	inOrder map[string]struct{}
	results map[string]models.ValidationResult
}

func newBuilder(seed string, started time.Time) *builder {
	return &builder{
		report: &models.ScanReport{
			ScannedURL: seed,
			StartedAt:  started,
		},
		refs:    make(map[string]*refInfo),
		inOrder: make(map[string]struct{}),
		results: make(map[string]models.ValidationResult),
	}
}

// addReference records that ref.TargetURL was found on ref.SourceURL.
func (b *builder) addReference(ref models.ResourceReference) {
	info, ok := b.refs[ref.TargetURL]
	if !ok {
		info = &refInfo{kinds: make(map[models.RefKind]bool)}
		b.refs[ref.TargetURL] = info
	}
	b.track(ref.TargetURL)
	info.kinds[ref.Kind] = true
	if !slices.Contains(info.foundOn, ref.SourceURL) {
		info.foundOn = append(info.foundOn, ref.SourceURL)
	}
}

// resolved reports whether target already has a result.
func (b *builder) resolved(target string) bool {
	_, ok := b.results[target]
	return ok
}

// addResult stores r unless the target already has one.
func (b *builder) addResult(r models.ValidationResult) bool {
	if b.resolved(r.TargetURL) {
		return false
	}
	b.results[r.TargetURL] = r
	b.track(r.TargetURL)
	return true
}

// track appends target to the report order once.
func (b *builder) track(target string) {
	if _, ok := b.inOrder[target]; ok {
		return
	}
	b.inOrder[target] = struct{}{}
	b.order = append(b.order, target)
}

func (b *builder) addPage(p models.PageRecord) {
	b.report.Pages = append(b.report.Pages, p)
	b.report.PagesVisited++
}

func (b *builder) addSkipped(s models.SkippedPage) {
	b.report.Skipped = append(b.report.Skipped, s)
	b.report.PagesSkipped++
}

func (b *builder) truncate(reason string) {
	r := b.report
	if !r.Truncated || truncationRank[reason] > truncationRank[r.TruncatedReason] {
		r.Truncated = true
		r.TruncatedReason = reason
	}
}

func (b *builder) abort(reason string) {
	b.report.Aborted = true
	b.report.AbortReason = reason
}

// finalize fills results for unresolved targets, builds the problem
// lists and summary, and returns the finished report.
func (b *builder) finalize(finished time.Time) *models.ScanReport {
	r := b.report
	r.FinishedAt = finished

	for _, target := range b.order {
		if _, ok := b.results[target]; !ok {
			b.results[target] = models.ValidationResult{
				TargetURL: target,
				Outcome:   models.OutcomeUnknown,
				Error:     unresolvedDetail,
			}
		}
	}

	r.Validations = make([]models.ValidationResult, 0, len(b.order))
	r.BrokenLinks = []models.ProblemResource{}
	r.MissingImages = []models.ProblemResource{}
	r.Summary = models.Summary{ByOutcome: make(map[models.Outcome]int)}

	for _, target := range b.order {
		res := b.results[target]
		r.Validations = append(r.Validations, res)
		r.Summary.ByOutcome[res.Outcome]++
		switch {
		case res.Outcome == models.OutcomeOK:
			r.Summary.OkCount++
		case res.Outcome.Problem():
			r.Summary.BrokenCount++
		}

		info, ok := b.refs[target]
		if !ok || !res.Outcome.Problem() {
			continue
		}
		row := models.ProblemResource{
			URL:        target,
			Outcome:    res.Outcome,
			StatusCode: res.StatusCode,
			Error:      res.Error,
			FoundOn:    slices.Clone(info.foundOn),
		}
		if info.kinds[models.RefLink] {
			r.BrokenLinks = append(r.BrokenLinks, row)
		}
		if info.kinds[models.RefImage] {
			r.MissingImages = append(r.MissingImages, row)
		}
	}

	byURL := func(a, b models.ProblemResource) int { return strings.Compare(a.URL, b.URL) }
	slices.SortFunc(r.BrokenLinks, byURL)
	slices.SortFunc(r.MissingImages, byURL)

	if r.Pages == nil {
		r.Pages = []models.PageRecord{}
	}
	if r.Skipped == nil {
		r.Skipped = []models.SkippedPage{}
	}
	r.Summary.TotalPages = len(r.Pages)
	r.Summary.TotalLinksChecked = len(r.Validations)
	return r
}
