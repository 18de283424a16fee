package simhash

import (
	"strings"
	"testing"
)

func TestFingerprintText(t *testing.T) {
	t.Parallel()

	base := "the quick brown fox jumps over the lazy dog"
	tests := []struct {
		name    string
		other   string
		maxDist int
		minDist int
	}{
		{"identical text", base, 0, 0},
		{"one word changed", "the quick brown fox leaps over the lazy dog", 10, 0},
		{"unrelated text", "completely unrelated content about quantum physics and mathematics", 64, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Distance(FingerprintText(base), FingerprintText(tt.other))
			if d > tt.maxDist || d < tt.minDist {
				t.Errorf("distance = %d, want between %d and %d", d, tt.minDist, tt.maxDist)
			}
		})
	}
}

func TestFingerprintEmpty(t *testing.T) {
	t.Parallel()

	if fp := FingerprintText(""); fp != 0 {
		t.Errorf("empty text fingerprint = %064b, want 0", fp)
	}
	if fp := FingerprintDOM(""); fp != 0 {
		t.Errorf("empty DOM fingerprint = %064b, want 0", fp)
	}
}

func TestTagsSkipsScripts(t *testing.T) {
	t.Parallel()

	got := Tags(`<html><head><meta charset="utf-8"><script>var a</script></head><body><div><p>x</p></div></body></html>`)
	want := "html head body div p"
	if strings.Join(got, " ") != want {
		t.Errorf("Tags = %v, want %s", got, want)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	shell := `<html><head><script src="app.js"></script></head><body><div id="root"></div></body></html>`
	var b strings.Builder
	b.WriteString(`<html><head></head><body><div id="root"><nav><ul>`)
	for i := 0; i < 20; i++ {
		b.WriteString(`<li><a href="/x">x</a></li>`)
	}
	b.WriteString(`</ul></nav><main><article><h1>t</h1><p>p</p><img src="/a.png"></article></main></div></body></html>`)
	rendered := b.String()

	if c := Compare(shell, shell); !c.SameStructure() {
		t.Errorf("identical documents compared as different: %+v", c)
	}
	if c := Compare(shell, rendered); c.SameStructure() {
		t.Errorf("hydrated document compared as same structure: %+v", c)
	}
}
