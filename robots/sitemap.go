package robots

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
)

const maxSitemapBytes = 5 * 1024 * 1024

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// SitemapURLs collects page URLs from the sitemaps declared in the
// origin's robots.txt, falling back to /sitemap.xml. Sitemap indexes are
// followed one level deep. At most limit URLs are returned.
func (g *Gate) SitemapURLs(ctx context.Context, target string, limit int) []string {
	origin := originOf(target)
	if origin == "" {
		return nil
	}

	maps := g.Sitemaps(ctx, target)
	if len(maps) == 0 {
		maps = []string{origin + "/sitemap.xml"}
	}

	var out []string
	for _, sm := range maps {
		urls, children := g.fetchSitemap(ctx, sm)
		out = append(out, urls...)
		for _, child := range children {
			if len(out) >= limit {
				break
			}
			leaf, _ := g.fetchSitemap(ctx, child)
			out = append(out, leaf...)
		}
		if len(out) >= limit {
			return out[:limit]
		}
	}
	return out
}

// fetchSitemap returns the page URLs of a urlset or the child sitemaps of
// an index.
func (g *Gate) fetchSitemap(ctx context.Context, sitemapURL string) (urls, children []string) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, nil
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		for _, s := range idx.Sitemaps {
			if s.Loc != "" {
				children = append(children, s.Loc)
			}
		}
		return nil, children
	}

	var us urlset
	if err := xml.Unmarshal(body, &us); err == nil {
		for _, u := range us.URLs {
			if u.Loc != "" {
				urls = append(urls, u.Loc)
			}
		}
	}
	return urls, nil
}
