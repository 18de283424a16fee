package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/use-agent/linkscan/models"
)

// Defaults for the static fetch path.
const (
	DefaultStaticTimeout = 10 * time.Second
	DefaultMaxRedirects  = 5
	DefaultUserAgent     = "Mozilla/5.0 (compatible; linkscan/1.0; +https://github.com/use-agent/linkscan)"
	maxHTMLBytes         = 10 << 20
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls conn.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewTransport returns an http.Transport whose TLS handshakes carry a
// Chrome fingerprint. Plain-HTTP targets use the default dialer.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
}

// CapRedirects returns a CheckRedirect func that stops after max hops and
// drops the named headers once the chain leaves the original host.
func CapRedirects(max int, sensitive []string) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return ErrTooManyRedirects
		}
		StripOnHostChange(req, via, sensitive)
		return nil
	}
}

// StripOnHostChange removes credential headers from a redirected request
// whose host differs from the first request in the chain.
func StripOnHostChange(req *http.Request, via []*http.Request, sensitive []string) {
	if len(via) == 0 || strings.EqualFold(req.URL.Host, via[0].URL.Host) {
		return
	}
	for _, name := range sensitive {
		req.Header.Del(name)
	}
}

// HeaderNames returns the keys of a header map.
func HeaderNames(h map[string]string) []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	return names
}

// HTTPOptions configures an HTTPEngine.
type HTTPOptions struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Transport    http.RoundTripper
}

// HTTPEngine is the static fetch path: one GET with a bounded timeout and
// a capped redirect chain.
type HTTPEngine struct {
	transport    http.RoundTripper
	maxRedirects int
	timeout      time.Duration
	userAgent    string
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(opts HTTPOptions) *HTTPEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStaticTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport()
	}
	return &HTTPEngine{
		transport:    opts.Transport,
		maxRedirects: opts.MaxRedirects,
		timeout:      opts.Timeout,
		userAgent:    opts.UserAgent,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeFetch, "build request", err)
	}
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range req.outboundHeaders() {
		httpReq.Header.Set(k, v)
	}

	// Clients are cheap; the transport and its connections are shared.
	client := &http.Client{
		Transport:     e.transport,
		CheckRedirect: CapRedirects(e.maxRedirects, HeaderNames(req.Cooperation.Headers())),
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeFetch, "GET "+req.URL, err)
	}
	defer resp.Body.Close()

	result := &FetchResult{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		EngineName:  e.Name(),
		Strategy:    models.StrategyStatic,
	}

	// Only HTML is worth reading in full.
	if !result.IsHTML() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil, models.NewScanError(models.ErrCodeFetch, "read body", err)
	}
	result.HTML = string(body)
	result.Title = extractTitle(result.HTML)
	return result, nil
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
