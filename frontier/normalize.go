package frontier

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned by Normalize for input that cannot become a
// canonical http(s) URL.
var ErrInvalidURL = errors.New("frontier: invalid url")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize resolves raw against base and returns its canonical form:
// fragment stripped, scheme and host lower-cased, default port removed
// and an empty path turned into "/". base may be empty when raw is
// already absolute.
func Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u := ref
	if !ref.IsAbs() {
		if base == "" {
			return "", fmt.Errorf("%w: relative url %q without base", ErrInvalidURL, raw)
		}
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return "", fmt.Errorf("%w: bad base %q", ErrInvalidURL, base)
		}
		u = b.ResolveReference(ref)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[u.Scheme] {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.ForceQuery = false

	return u.String(), nil
}

// Host returns the lower-cased host (with non-default port) of a
// canonical URL, or "" if it cannot be parsed.
func Host(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return u.Host
}

// Origin returns scheme://host for a canonical URL.
func Origin(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
