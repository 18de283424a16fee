// Package webhook delivers signed scan notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	EventCompleted = "scan.completed"
	EventFailed    = "scan.failed"
	EventCanceled  = "scan.canceled"
)

// SignatureHeader carries the HMAC-SHA256 of the body.
const SignatureHeader = "X-Linkscan-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier posts events with retries.
type Notifier struct {
	client *http.Client
	delays []time.Duration
	logger *slog.Logger
}

// NewNotifier creates a Notifier whose requests time out after timeout.
// Failed deliveries are retried after 1s, 5s and 30s.
func NewNotifier(timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		delays: []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second},
		logger: logger,
	}
}

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is a valid signature of body.
func Verify(body []byte, secret, header string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(header))
}

// Deliver sends an event once. The body is signed when secret is set.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Linkscan-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying on failure.
// The returned channel yields the final error (nil on success).
func (n *Notifier) DeliverAsync(url, secret string, event *Event) <-chan error {
	done := make(chan error, 1)
	go func() {
		var err error
		for attempt, delay := range n.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			err = n.Deliver(context.Background(), url, secret, event)
			if err == nil {
				n.logger.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"job_id", event.JobID,
					"attempt", attempt+1,
				)
				done <- nil
				return
			}
			n.logger.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		n.logger.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
		)
		done <- err
	}()
	return done
}
