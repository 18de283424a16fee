package models

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIKeyHeader is the outbound header carrying Cooperation.APIKey.
const DefaultAPIKeyHeader = "X-Api-Key"

// Scope values for ScanOptions.Scope.
const (
	ScopeHost = "host" // exact host of the seed URL
	ScopeSite = "site" // same registrable domain (eTLD+1)
)

// ScanRequest is the payload for POST /api/v1/scans and the input of a scan.
// It must not be mutated once the scan has started.
type ScanRequest struct {
	// URL is the seed page. Required, absolute http(s).
	URL string `json:"url" binding:"required"`

	// Cooperation carries owner-supplied authorization. Optional.
	Cooperation *Cooperation `json:"cooperation,omitempty"`

	// Options overrides the engine's default bounds.
	Options ScanOptions `json:"options"`

	WebhookURL    string `json:"webhookUrl,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhookSecret,omitempty"`
}

// ScanOptions bounds a single scan. Zero values mean "use the engine default".
type ScanOptions struct {
	MaxDepth    int   `json:"maxDepth,omitempty" binding:"omitempty,min=0,max=50"`
	MaxPages    int   `json:"maxPages,omitempty" binding:"omitempty,min=1"`
	Concurrency int   `json:"concurrency,omitempty" binding:"omitempty,min=1,max=64"`
	SameOrigin  *bool `json:"sameOriginOnly,omitempty"`

	// Scope is "host" (default) or "site". When unset and SameOrigin is
	// explicitly false, the scan widens to "site".
	Scope string `json:"scope,omitempty" binding:"omitempty,oneof=host site"`

	// MaxDuration caps the whole scan, e.g. "5m".
	MaxDuration Duration `json:"maxDuration,omitempty"`

	// PolitenessDelay is the minimum spacing between fetches to one host.
	PolitenessDelay Duration `json:"politenessDelay,omitempty"`

	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	FollowPatterns  []string `json:"followPatterns,omitempty"`
	UseSitemaps     bool     `json:"useSitemaps,omitempty"`
}

// EffectiveScope resolves Scope against the SameOrigin flag.
func (o ScanOptions) EffectiveScope() string {
	if o.Scope != "" {
		return o.Scope
	}
	if o.SameOrigin != nil && !*o.SameOrigin {
		return ScopeSite
	}
	return ScopeHost
}

// Cooperation carries credentials and flags supplied by the site owner.
// The engine never stores it beyond the lifetime of one scan.
type Cooperation struct {
	WhitelistIP     bool             `json:"whitelistIP"`
	SiteCredentials *SiteCredentials `json:"siteCredentials,omitempty"`
	APIKey          string           `json:"apiKey,omitempty"`

	// APIKeyHeader overrides DefaultAPIKeyHeader for sites that document
	// a different header name.
	APIKeyHeader string `json:"apiKeyHeader,omitempty"`
}

// SiteCredentials is a basic-auth pair.
type SiteCredentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// usable reports whether the pair carries a credential. An empty pair
// counts as absent.
func (sc *SiteCredentials) usable() bool {
	return sc != nil && sc.User != "" && sc.Pass != ""
}

// Validate checks the cooperation invariants once, at scan entry. It
// does not modify c.
func (c *Cooperation) Validate() error {
	if c == nil {
		return nil
	}
	if sc := c.SiteCredentials; sc != nil && (sc.User == "") != (sc.Pass == "") {
		return InvalidRequest("siteCredentials requires both user and pass")
	}
	if strings.ContainsAny(c.APIKeyHeader, " :\r\n") {
		return InvalidRequest("apiKeyHeader %q is not a valid header name", c.APIKeyHeader)
	}
	return nil
}

// Authorizes reports whether the context grants owner authorization:
// a whitelisted scanner plus at least one credential.
func (c *Cooperation) Authorizes() bool {
	if c == nil || !c.WhitelistIP {
		return false
	}
	return c.SiteCredentials.usable() || c.APIKey != ""
}

// Apply attaches credential headers to an outbound request.
func (c *Cooperation) Apply(h http.Header) {
	if c == nil {
		return
	}
	for k, v := range c.Headers() {
		h.Set(k, v)
	}
}

// Headers returns the outbound headers the context contributes.
func (c *Cooperation) Headers() map[string]string {
	if c == nil {
		return nil
	}
	out := make(map[string]string, 2)
	if sc := c.SiteCredentials; sc.usable() {
		req := http.Request{Header: http.Header{}}
		req.SetBasicAuth(sc.User, sc.Pass)
		out["Authorization"] = req.Header.Get("Authorization")
	}
	if c.APIKey != "" {
		name := c.APIKeyHeader
		if name == "" {
			name = DefaultAPIKeyHeader
		}
		out[http.CanonicalHeaderKey(name)] = c.APIKey
	}
	return out
}

// Validate checks the seed URL and the cooperation context. It performs
// no network activity.
func (r *ScanRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return InvalidRequest("url is required")
	}
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil {
		return NewScanError(ErrCodeInvalidRequest, "url is malformed", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return InvalidRequest("url must be an absolute http(s) URL")
	}
	if u.Hostname() == "" {
		return InvalidRequest("url has no host")
	}
	if r.Options.Scope != "" && r.Options.Scope != ScopeHost && r.Options.Scope != ScopeSite {
		return InvalidRequest("scope must be %q or %q", ScopeHost, ScopeSite)
	}
	if r.Options.MaxDepth < 0 || r.Options.MaxPages < 0 || r.Options.Concurrency < 0 {
		return InvalidRequest("limits must not be negative")
	}
	return r.Cooperation.Validate()
}

// Duration is a time.Duration that marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
