package validator

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

// ClassifyStatus maps a final HTTP status to an outcome. Authentication
// and rate-limit rejections count as blocked, not broken.
func ClassifyStatus(code int) models.Outcome {
	switch {
	case code >= 200 && code <= 299:
		return models.OutcomeOK
	case code >= 300 && code <= 399:
		return models.OutcomeRedirected
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusProxyAuthRequired,
		code == http.StatusTooManyRequests:
		return models.OutcomeBlocked
	case code >= 400 && code <= 599:
		return models.OutcomeBroken
	}
	return models.OutcomeUnknown
}

// ClassifyError maps a transport failure to an outcome.
func ClassifyError(err error) models.Outcome {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, engine.ErrTooManyRedirects):
		return models.OutcomeRedirected
	case errors.Is(err, context.Canceled):
		return models.OutcomeUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimeout
	case errors.As(err, &dnsErr):
		return models.OutcomeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.OutcomeTimeout
	}
	return models.OutcomeUnknown
}

// isTimeout reports whether err is worth retrying with a ranged GET.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// headUnsupported lists statuses after which HEAD is retried as GET.
// 403 is included because several CDNs reject HEAD outright.
func headUnsupported(code int) bool {
	switch code {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden:
		return true
	}
	return false
}
