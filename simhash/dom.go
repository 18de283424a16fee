package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultThreshold is the distance at or below which two DOMs count as
// the same structure.
const DefaultThreshold = 3

// skipped elements carry no layout and differ between fetch paths.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"link":     true,
	"meta":     true,
}

// FingerprintDOM fingerprints the element structure of a document as
// shingles of three consecutive tag names. Text and attributes are ignored.
func FingerprintDOM(doc string) uint64 {
	tags := Tags(doc)
	if len(tags) < 3 {
		return Fingerprint(tags)
	}
	shingles := make([]string, 0, len(tags)-2)
	for i := 0; i+3 <= len(tags); i++ {
		shingles = append(shingles, tags[i]+"_"+tags[i+1]+"_"+tags[i+2])
	}
	return Fingerprint(shingles)
}

// Tags returns the structural start tags of doc in document order.
func Tags(doc string) []string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := z.TagName()
			if name := string(tn); !skipped[name] {
				tags = append(tags, name)
			}
		}
	}
}

// Comparison describes how two renditions of one page differ.
type Comparison struct {
	Distance     int
	StaticTags   int
	RenderedTags int
}

// SameStructure reports whether rendering added nothing structural.
func (c Comparison) SameStructure() bool {
	return c.Distance <= DefaultThreshold && c.RenderedTags <= c.StaticTags+c.StaticTags/10+2
}

// Compare fingerprints both documents.
func Compare(static, rendered string) Comparison {
	return Comparison{
		Distance:     Distance(FingerprintDOM(static), FingerprintDOM(rendered)),
		StaticTags:   len(Tags(static)),
		RenderedTags: len(Tags(rendered)),
	}
}
