package frontier

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides which URLs may be crawled as pages. URLs outside the
// scope are still validated, never crawled.
type Scope struct {
	mode   string
	scheme string
	host   string // host[:port], default port dropped
	site   string
	ignore []string
	follow []string
}

// NewScope builds a Scope around the canonical seed URL. mode is "host"
// or "site".
func NewScope(seed, mode string, ignore, follow []string) *Scope {
	scheme, host := authority(seed)
	return &Scope{
		mode:   mode,
		scheme: scheme,
		host:   host,
		site:   registrable(strings.ToLower(hostname(seed))),
		ignore: ignore,
		follow: follow,
	}
}

// Contains reports whether u belongs to the scanned site. In host mode
// the port must match too; the scheme may differ only on default ports,
// so an http to https upgrade stays in scope.
func (s *Scope) Contains(u string) bool {
	if s.mode == "site" {
		h := strings.ToLower(hostname(u))
		return h != "" && registrable(h) == s.site
	}
	scheme, host := authority(u)
	if host == "" || host != s.host {
		return false
	}
	return scheme == s.scheme || !hasPort(host)
}

// ShouldCrawl reports whether an in-scope URL passes the ignore and
// follow patterns. Ignore wins; with follow patterns set, at least one
// must match.
func (s *Scope) ShouldCrawl(u string) bool {
	p := "/"
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	for _, pattern := range s.ignore {
		if MatchPattern(pattern, p) {
			return false
		}
	}
	if len(s.follow) == 0 {
		return true
	}
	for _, pattern := range s.follow {
		if MatchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// MatchPattern matches a URL path against a glob. "/admin/*" matches
// everything below /admin, "*.pdf" matches by extension, and anything
// else goes through filepath.Match.
func MatchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
			return true
		}
	}
	return false
}

// authority returns the scheme and lower-cased host[:port] of u with the
// scheme's default port removed.
func authority(u string) (scheme, host string) {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Hostname() == "" {
		return "", ""
	}
	scheme = strings.ToLower(parsed.Scheme)
	h := strings.ToLower(parsed.Hostname())
	if strings.Contains(h, ":") {
		h = "[" + h + "]"
	}
	if port := parsed.Port(); port != "" && port != defaultPorts[scheme] {
		h += ":" + port
	}
	return scheme, h
}

// hasPort reports whether an authority from authority() carries a port.
func hasPort(host string) bool {
	if strings.HasPrefix(host, "[") {
		return strings.Contains(host, "]:")
	}
	return strings.Contains(host, ":")
}

func hostname(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// registrable returns eTLD+1, falling back to the host itself for IPs,
// localhost and bare public suffixes.
func registrable(host string) string {
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}
