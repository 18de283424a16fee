// Package extractor pulls link and image references out of HTML.
package extractor

import (
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/linkscan/frontier"
	"github.com/use-agent/linkscan/models"
)

var (
	refSel  = cascadia.MustCompile("a[href], area[href], img[src], img[srcset], picture source[srcset]")
	baseSel = cascadia.MustCompile("base[href]")
)

const maxContextRunes = 80

// Extract returns the references in content in document order. Parsing
// happens when the sequence is iterated, and every iteration yields the
// same references. Targets are canonical absolute URLs; duplicates of the
// same (target, kind) within the page are yielded once.
func Extract(content, pageURL string) iter.Seq[models.ResourceReference] {
	return func(yield func(models.ResourceReference) bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return
		}

		base := pageURL
		if href, ok := doc.FindMatcher(baseSel).First().Attr("href"); ok {
			if resolved, err := frontier.Normalize(href, pageURL); err == nil {
				base = resolved
			}
		}

		seen := make(map[string]struct{})
		emit := func(raw string, kind models.RefKind, context string) bool {
			target, ok := resolve(raw, base)
			if !ok {
				return true
			}
			key := string(kind) + " " + target
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			return yield(models.ResourceReference{
				SourceURL: pageURL,
				TargetURL: target,
				Kind:      kind,
				Context:   context,
			})
		}

		doc.FindMatcher(refSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			switch goquery.NodeName(s) {
			case "a", "area":
				href, _ := s.Attr("href")
				return emit(href, models.RefLink, describeAnchor(s))
			case "img":
				if src, ok := s.Attr("src"); ok {
					if !emit(src, models.RefImage, describeImage(s)) {
						return false
					}
				}
				if srcset, ok := s.Attr("srcset"); ok {
					for _, u := range ParseSrcset(srcset) {
						if !emit(u, models.RefImage, describeImage(s)+" srcset") {
							return false
						}
					}
				}
			case "source":
				srcset, _ := s.Attr("srcset")
				for _, u := range ParseSrcset(srcset) {
					if !emit(u, models.RefImage, "picture source") {
						return false
					}
				}
			}
			return true
		})
	}
}

// Collect drains Extract into a slice.
func Collect(content, pageURL string) []models.ResourceReference {
	var out []models.ResourceReference
	for ref := range Extract(content, pageURL) {
		out = append(out, ref)
	}
	return out
}

// resolve turns an attribute value into a canonical target, rejecting
// same-page fragments and non-http schemes.
func resolve(raw, base string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	target, err := frontier.Normalize(raw, base)
	if err != nil {
		return "", false
	}
	return target, true
}

func describeAnchor(s *goquery.Selection) string {
	text := strings.Join(strings.Fields(s.Text()), " ")
	if text == "" {
		if label, ok := s.Attr("aria-label"); ok {
			text = label
		} else if alt, ok := s.Find("img[alt]").First().Attr("alt"); ok {
			text = alt
		}
	}
	return goquery.NodeName(s) + ` "` + truncate(text) + `"`
}

func describeImage(s *goquery.Selection) string {
	if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		return `img alt="` + truncate(strings.TrimSpace(alt)) + `"`
	}
	return "img"
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxContextRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxContextRunes]) + "…"
}
