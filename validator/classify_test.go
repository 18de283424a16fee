package validator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/use-agent/linkscan/engine"
	"github.com/use-agent/linkscan/models"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := map[int]models.Outcome{
		200: models.OutcomeOK,
		204: models.OutcomeOK,
		206: models.OutcomeOK,
		301: models.OutcomeRedirected,
		401: models.OutcomeBlocked,
		403: models.OutcomeBlocked,
		407: models.OutcomeBlocked,
		429: models.OutcomeBlocked,
		404: models.OutcomeBroken,
		410: models.OutcomeBroken,
		500: models.OutcomeBroken,
		503: models.OutcomeBroken,
		102: models.OutcomeUnknown,
		0:   models.OutcomeUnknown,
	}
	for code, want := range tests {
		if got := ClassifyStatus(code); got != want {
			t.Errorf("ClassifyStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want models.Outcome
	}{
		{"redirect cap", fmt.Errorf("get: %w", engine.ErrTooManyRedirects), models.OutcomeRedirected},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), models.OutcomeUnknown},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), models.OutcomeTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "nx.test", IsNotFound: true}, models.OutcomeTimeout},
		{"refused", errors.New("connection refused"), models.OutcomeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError = %q, want %q", got, tt.want)
			}
		})
	}
}
