package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// adDomains lists ad and tracking hosts blocked during renders. Links to
// them in the DOM are still extracted and validated.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"quantserve.com":        {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// hijackRules decides per intercepted request what to do.
type hijackRules struct {
	blocked  map[proto.NetworkResourceType]struct{}
	blockAds bool

	// authHost receives authHeaders; every other host gets the request
	// unchanged so owner credentials never reach third parties.
	authHost    string
	authHeaders map[string]string
}

func newHijackRules(blockedTypes []string, blockAds bool, targetURL string, authHeaders map[string]string) *hijackRules {
	r := &hijackRules{
		blocked:     make(map[proto.NetworkResourceType]struct{}, len(blockedTypes)),
		blockAds:    blockAds,
		authHeaders: authHeaders,
	}
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			r.blocked[rt] = struct{}{}
		}
	}
	if u, err := url.Parse(targetURL); err == nil {
		r.authHost = strings.ToLower(u.Host)
	}
	return r
}

func (r *hijackRules) empty() bool {
	return len(r.blocked) == 0 && !r.blockAds && len(r.authHeaders) == 0
}

// shouldBlock reports whether a request of the given type to rawURL is
// dropped.
func (r *hijackRules) shouldBlock(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := r.blocked[rt]; ok {
		return true
	}
	if r.blockAds {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// headersFor returns the full header list for a same-host request, or
// nil when the request should continue unchanged.
func (r *hijackRules) headersFor(rawURL string, current proto.NetworkHeaders) []*proto.FetchHeaderEntry {
	if len(r.authHeaders) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || strings.ToLower(u.Host) != r.authHost {
		return nil
	}

	override := make(map[string]struct{}, len(r.authHeaders))
	for k := range r.authHeaders {
		override[strings.ToLower(k)] = struct{}{}
	}
	entries := make([]*proto.FetchHeaderEntry, 0, len(current)+len(r.authHeaders))
	for k, v := range current {
		if _, ok := override[strings.ToLower(k)]; ok {
			continue
		}
		entries = append(entries, &proto.FetchHeaderEntry{Name: k, Value: v.Str()})
	}
	for k, v := range r.authHeaders {
		entries = append(entries, &proto.FetchHeaderEntry{Name: k, Value: v})
	}
	return entries
}

// setupHijack installs a request interceptor implementing rules.
// Returns the running HijackRouter so the caller can defer router.Stop(),
// or nil if there is nothing to intercept.
func setupHijack(page *rod.Page, rules *hijackRules) *rod.HijackRouter {
	if rules.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		reqURL := ctx.Request.URL().String()
		if rules.shouldBlock(ctx.Request.Type(), reqURL) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{
			Headers: rules.headersFor(reqURL, ctx.Request.Headers()),
		})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	go router.Run()
	return router
}
