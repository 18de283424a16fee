package crawler

import (
	"context"
	"testing"
	"time"
)

func TestPolitenessSpacesSameHost(t *testing.T) {
	t.Parallel()

	p := NewPoliteness(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		if err := p.Wait(ctx, "a.test"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 95*time.Millisecond {
		t.Errorf("3 waits took %v, want >= 100ms", elapsed)
	}

	// Another host is not held back.
	start = time.Now()
	if err := p.Wait(ctx, "b.test"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("first wait on a new host took %v", elapsed)
	}
}

func TestPolitenessRaise(t *testing.T) {
	t.Parallel()

	p := NewPoliteness(10 * time.Millisecond)
	p.Raise("a.test", time.Second)
	p.Raise("a.test", 500*time.Millisecond)
	if got := p.Interval("a.test"); got != time.Second {
		t.Errorf("Interval = %v, want 1s", got)
	}
	if got := p.Interval("b.test"); got != 10*time.Millisecond {
		t.Errorf("Interval(b) = %v, want base", got)
	}
}

func TestPolitenessWaitHonorsCancel(t *testing.T) {
	t.Parallel()

	p := NewPoliteness(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Wait(ctx, "a.test"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	cancel()
	if err := p.Wait(ctx, "a.test"); err == nil {
		t.Error("Wait after cancel returned nil")
	}
}

func TestPolitenessZeroDelay(t *testing.T) {
	t.Parallel()

	p := NewPoliteness(0)
	start := time.Now()
	for range 20 {
		p.Wait(context.Background(), "a.test")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unthrottled waits took %v", elapsed)
	}
}
