package engine

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Escalation reasons reported by NeedsRender.
const (
	ReasonThinContent = "thin_content"
	ReasonSPARoot     = "spa_root"
	ReasonNoscript    = "noscript_warning"
	ReasonScriptHeavy = "script_heavy"
	ReasonAntiBot     = "anti_bot"
)

// Heuristics holds the thresholds used to spot client-rendered shells.
type Heuristics struct {
	// MinTextChars is the visible-text size below which a scripted page
	// counts as a shell.
	MinTextChars int
}

// DefaultHeuristics mirrors the thresholds used for production crawls.
var DefaultHeuristics = Heuristics{MinTextChars: 200}

var (
	reNoscript  = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)
	reEmptyRoot = regexp.MustCompile(`<div\s+id=["'](root|app|__next|__nuxt|svelte)["'][^>]*>\s*</div>`)
)

// antiBotMarkers appear on interstitial challenge pages that only a real
// browser gets past.
var antiBotMarkers = []string{
	"<title>just a moment...</title>",
	"cf-browser-verification",
	"/cdn-cgi/challenge-platform/",
	"_incapsula_resource",
	"please enable js and disable any ad blocker",
	"ddos protection by",
}

// NeedsRender reports whether a static HTML body looks like it needs a
// browser to produce its content, and which signal fired.
func (h Heuristics) NeedsRender(body string) (bool, string) {
	lower := strings.ToLower(body)

	for _, m := range antiBotMarkers {
		if strings.Contains(lower, m) {
			return true, ReasonAntiBot
		}
	}

	text := extractVisibleText([]byte(body))
	scripts := strings.Count(lower, "<script")

	// A thin page without scripts is simply a small static page.
	if len(text) < h.MinTextChars && scripts > 0 {
		return true, ReasonThinContent
	}
	if strings.TrimSpace(body) == "" {
		return true, ReasonThinContent
	}

	if reEmptyRoot.MatchString(lower) {
		return true, ReasonSPARoot
	}

	if reNoscript.MatchString(lower) {
		return true, ReasonNoscript
	}

	if scripts > 10 && len(text) < 500 {
		return true, ReasonScriptHeavy
	}
	return false, ""
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript", "template":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
