package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliverSigns(t *testing.T) {
	t.Parallel()

	type delivery struct {
		sig  string
		body []byte
	}
	got := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{sig: r.Header.Get(SignatureHeader), body: body}
	}))
	defer srv.Close()

	n := NewNotifier(time.Second, nil)
	ev := &Event{Type: EventCompleted, JobID: "j1", Timestamp: 1, Data: map[string]int{"pages": 3}}
	if err := n.Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	d := <-got
	gotSig, gotBody := d.sig, d.body

	if !Verify(gotBody, "s3cret", gotSig) {
		t.Errorf("signature %q does not verify", gotSig)
	}
	if Verify(gotBody, "other", gotSig) {
		t.Error("signature verifies with the wrong secret")
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil || decoded.JobID != "j1" || decoded.Type != EventCompleted {
		t.Errorf("body = %s (%v)", gotBody, err)
	}
}

func TestDeliverErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewNotifier(time.Second, nil).Deliver(context.Background(), srv.URL, "", &Event{}); err == nil {
		t.Error("Deliver succeeded against a 502 endpoint")
	}
}

func TestDeliverAsyncRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(time.Second, nil)
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	select {
	case err := <-n.DeliverAsync(srv.URL, "", &Event{Type: EventFailed}):
		if err != nil {
			t.Errorf("final error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DeliverAsync did not finish")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
