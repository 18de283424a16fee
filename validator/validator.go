// Package validator checks whether link and image targets exist.
package validator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

// Waiter delays a request until the host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, host string) error
}

// Policy reports whether a target may be requested at all.
type Policy func(ctx context.Context, target string) bool

// Options configures a Validator.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Transport    http.RoundTripper
	Waiter       Waiter
	Policy       Policy
	Memo         *Memo
	Logger       *slog.Logger
}

// Validator issues HEAD requests, falling back to a ranged GET, and
// memoizes one result per target.
type Validator struct {
	opts   Options
	memo   *Memo
	checks atomic.Int64
}

// New creates a Validator. A nil Memo gets a fresh one.
func New(opts Options) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = engine.DefaultStaticTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = engine.DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = engine.DefaultUserAgent
	}
	if opts.Transport == nil {
		opts.Transport = engine.NewTransport()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	memo := opts.Memo
	if memo == nil {
		memo = NewMemo()
	}
	return &Validator{opts: opts, memo: memo}
}

// Memo exposes the validator's result cache.
func (v *Validator) Memo() *Memo { return v.memo }

// Checks returns how many targets were actually requested.
func (v *Validator) Checks() int64 { return v.checks.Load() }

// Validate returns the memoized result for target, checking it on first
// use. coop must only be passed for targets inside the scan scope.
func (v *Validator) Validate(ctx context.Context, target string, coop *models.Cooperation) models.ValidationResult {
	res, _ := v.memo.Do(target, func() models.ValidationResult {
		return v.Check(ctx, target, coop)
	})
	return res
}

// Check validates target without consulting the memo.
func (v *Validator) Check(ctx context.Context, target string, coop *models.Cooperation) models.ValidationResult {
	v.checks.Add(1)
	result := models.ValidationResult{TargetURL: target}

	if v.opts.Policy != nil && !v.opts.Policy(ctx, target) {
		result.Outcome = models.OutcomeBlocked
		result.Error = "disallowed by robots.txt"
		return result
	}

	u, err := url.Parse(target)
	if err != nil {
		result.Outcome = models.OutcomeUnknown
		result.Error = err.Error()
		return result
	}

	if v.opts.Waiter != nil {
		if err := v.opts.Waiter.Wait(ctx, u.Host); err != nil {
			result.Outcome = models.OutcomeUnknown
			result.Error = "canceled before request: " + err.Error()
			return result
		}
	}

	// ── 1. HEAD ──
	resp, err := v.do(ctx, http.MethodHead, target, coop)
	if err == nil && !headUnsupported(resp.StatusCode) {
		return v.finish(result, http.MethodHead, resp)
	}
	if err != nil && !isTimeout(err) {
		return v.fail(result, http.MethodHead, err)
	}
	if err == nil {
		resp.Body.Close()
	}

	// ── 2. Ranged GET ──
	v.opts.Logger.Debug("HEAD unsupported, retrying with ranged GET", "url", target)
	resp, err = v.do(ctx, http.MethodGet, target, coop)
	if err != nil {
		return v.fail(result, http.MethodGet, err)
	}
	return v.finish(result, http.MethodGet, resp)
}

func (v *Validator) do(ctx context.Context, method, target string, coop *models.Cooperation) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", v.opts.UserAgent)
	req.Header.Set("Accept", "*/*")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-1023")
	}
	auth := coop.Headers()
	for k, val := range auth {
		req.Header.Set(k, val)
	}

	client := &http.Client{
		Transport:     v.opts.Transport,
		CheckRedirect: v.redirectPolicy(engine.HeaderNames(auth)),
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// redirectPolicy stops at the cap or on a loop and hands back the last
// 3xx response, which classifies as redirected.
func (v *Validator) redirectPolicy(sensitive []string) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > v.opts.MaxRedirects {
			return http.ErrUseLastResponse
		}
		for _, prev := range via {
			if prev.URL.String() == req.URL.String() {
				return http.ErrUseLastResponse
			}
		}
		engine.StripOnHostChange(req, via, sensitive)
		return nil
	}
}

func (v *Validator) finish(result models.ValidationResult, method string, resp *http.Response) models.ValidationResult {
	defer resp.Body.Close()
	if method == http.MethodGet {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	}

	result.Method = method
	result.StatusCode = resp.StatusCode
	result.Outcome = ClassifyStatus(resp.StatusCode)
	// 416 on our range request means the resource exists but is empty.
	if method == http.MethodGet && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		result.Outcome = models.OutcomeOK
	}
	if final := resp.Request.URL.String(); final != result.TargetURL {
		result.FinalURL = final
	}
	if result.Outcome == models.OutcomeRedirected {
		result.Error = "redirect chain exceeded the cap or looped"
	}
	return result
}

func (v *Validator) fail(result models.ValidationResult, method string, err error) models.ValidationResult {
	result.Method = method
	result.Outcome = ClassifyError(err)
	result.Error = trimURLError(err)
	return result
}

// trimURLError drops the repeated method and URL prefix of *url.Error.
func trimURLError(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "\": "); i >= 0 {
		return msg[i+3:]
	}
	return msg
}

// cancelBody releases the per-request timeout when the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
