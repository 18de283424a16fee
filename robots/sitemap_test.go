package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSitemapURLs(t *testing.T) {
	t.Parallel()

	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nAllow: /\nSitemap: %s/index.xml\n", base)
	})
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>%s/pages.xml</loc></sitemap></sitemapindex>`, base)
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/a</loc></url><url><loc>%s/b</loc></url></urlset>`, base, base)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	g := NewGate(srv.Client(), agent, nil)
	got := g.SitemapURLs(context.Background(), srv.URL+"/", 10)
	if len(got) != 2 || got[0] != base+"/a" || got[1] != base+"/b" {
		t.Errorf("SitemapURLs = %v", got)
	}

	if got := g.SitemapURLs(context.Background(), srv.URL+"/", 1); len(got) != 1 {
		t.Errorf("limit not applied: %v", got)
	}
}

func TestSitemapFallback(t *testing.T) {
	t.Parallel()

	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>%s/only</loc></url></urlset>`, base)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	g := NewGate(srv.Client(), agent, nil)
	got := g.SitemapURLs(context.Background(), srv.URL, 10)
	if len(got) != 1 || got[0] != base+"/only" {
		t.Errorf("SitemapURLs = %v, want [%s/only]", got, base)
	}
}
