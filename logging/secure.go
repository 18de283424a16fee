// Package logging builds the process logger. Every handler is wrapped so
// credentials never reach log output.
package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces sensitive attribute values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys that always carry secrets.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"password":            true,
	"pass":                true,
	"passwd":              true,
	"secret":              true,
	"token":               true,
	"api_key":             true,
	"apikey":              true,
	"api-key":             true,
	"access_token":        true,
	"session":             true,
	"session_id":          true,
	"credentials":         true,
	"sitecredentials":     true,
	"webhook_secret":      true,
}

// sensitiveKeywords mark a key as sensitive when contained in it. The bare
// word "key" is left out: it matches too much ("cache_key", "monkey").
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "credential", "apikey", "api_key",
}

// sensitivePatterns flag values that look like secrets whatever their key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// urlUserinfo matches credentials embedded in a URL.
var urlUserinfo = regexp.MustCompile(`(?i)(https?://)[^/@\s]+:[^/@\s]*@`)

// SecureHandler wraps an slog.Handler and masks sensitive attributes
// before they reach it.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default's.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitize(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitize(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(clean)}
}

func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitize(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = sanitize(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if sensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if sensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
		if urlUserinfo.MatchString(s) {
			return slog.String(a.Key, urlUserinfo.ReplaceAllString(s, "${1}"+MaskValue+"@"))
		}
	}
	return a
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

func sensitiveValue(v string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}
