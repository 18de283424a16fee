// Package robots decides whether a URL may be fetched under the site's
// robots.txt and the scan's cooperation context.
package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/use-agent/linkscan/models"
)

const (
	fetchTimeout = 10 * time.Second
	maxBodyBytes = 512 * 1024
)

// Gate caches one parsed robots.txt per origin for the lifetime of a scan.
// It is safe for concurrent use.
type Gate struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu         sync.RWMutex
	rules      map[string]*robotstxt.RobotsData // nil value: no policy, allow all
	authorized map[string]bool

	group singleflight.Group
}

// NewGate creates a Gate. client may be nil. userAgent is sent when
// fetching robots.txt.
func NewGate(client *http.Client, userAgent string, logger *slog.Logger) *Gate {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		client:     client,
		userAgent:  userAgent,
		logger:     logger,
		rules:      make(map[string]*robotstxt.RobotsData),
		authorized: make(map[string]bool),
	}
}

// IsAllowed reports whether target may be fetched by userAgent. An
// authorizing cooperation context records the origin as owner-approved
// and allows it regardless of Disallow rules. A robots.txt that cannot
// be fetched allows everything.
func (g *Gate) IsAllowed(ctx context.Context, target, userAgent string, coop *models.Cooperation) bool {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	if coop.Authorizes() {
		g.authorize(origin)
		return true
	}

	data := g.load(ctx, origin, coop)
	if data == nil {
		return true
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return data.FindGroup(ProductToken(userAgent)).Test(p)
}

// CrawlDelay returns the Crawl-delay that applies to userAgent on the
// origin of target. Authorized origins get zero.
func (g *Gate) CrawlDelay(ctx context.Context, target, userAgent string, coop *models.Cooperation) time.Duration {
	origin := originOf(target)
	if origin == "" || coop.Authorizes() || g.Authorized(origin) {
		return 0
	}
	data := g.load(ctx, origin, coop)
	if data == nil {
		return 0
	}
	return data.FindGroup(ProductToken(userAgent)).CrawlDelay
}

// browserProducts are User-Agent products that name an engine, not a crawler.
var browserProducts = map[string]bool{
	"mozilla": true, "applewebkit": true, "chrome": true, "chromium": true,
	"safari": true, "gecko": true, "firefox": true, "version": true,
	"mobile": true, "edg": true, "headlesschrome": true,
}

// ProductToken returns the robots.txt token of an HTTP User-Agent: the
// first product/version pair that is not a browser engine, lower-cased.
// "Mozilla/5.0 (compatible; linkscan/1.0; +https://...)" yields
// "linkscan". A User-Agent without such a product is returned as is.
func ProductToken(userAgent string) string {
	fields := strings.FieldsFunc(userAgent, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == ';' || r == ','
	})
	for _, f := range fields {
		name, _, ok := strings.Cut(f, "/")
		name = strings.ToLower(name)
		if !ok || !isToken(name) || browserProducts[name] {
			continue
		}
		return name
	}
	return userAgent
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// Sitemaps returns the Sitemap entries declared in the origin's robots.txt.
func (g *Gate) Sitemaps(ctx context.Context, target string) []string {
	origin := originOf(target)
	if origin == "" {
		return nil
	}
	data := g.load(ctx, origin, nil)
	if data == nil {
		return nil
	}
	return append([]string(nil), data.Sitemaps...)
}

// Authorized reports whether origin was approved by a cooperation context.
func (g *Gate) Authorized(origin string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authorized[origin]
}

func (g *Gate) authorize(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.authorized[origin] {
		g.logger.Info("owner authorization recorded", "origin", origin)
	}
	g.authorized[origin] = true
}

// load returns the cached ruleset for origin, fetching it once.
func (g *Gate) load(ctx context.Context, origin string, coop *models.Cooperation) *robotstxt.RobotsData {
	g.mu.RLock()
	data, ok := g.rules[origin]
	g.mu.RUnlock()
	if ok {
		return data
	}

	v, _, _ := g.group.Do(origin, func() (any, error) {
		g.mu.RLock()
		data, ok := g.rules[origin]
		g.mu.RUnlock()
		if ok {
			return data, nil
		}

		data, err := g.fetch(ctx, origin, coop)
		if err != nil {
			g.logger.Debug("robots.txt unavailable, allowing all", "origin", origin, "error", err)
		}
		// A canceled fetch is not cached so a later caller can retry.
		if ctx.Err() == nil {
			g.mu.Lock()
			g.rules[origin] = data
			g.mu.Unlock()
		}
		return data, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}

func (g *Gate) fetch(ctx context.Context, origin string, coop *models.Cooperation) (*robotstxt.RobotsData, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	coop.Apply(req.Header)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("robots: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("robots: parse: %w", err)
	}
	return data, nil
}

func originOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
