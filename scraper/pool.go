package scraper

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Retirement thresholds for pooled browser pages.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// Handle wraps a pooled value with health tracking metadata.
type Handle[T any] struct {
	Value    *T
	errScore float64
	useCount int
	created  time.Time
}

func (h *Handle[T]) record(ok bool) {
	h.useCount++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

func (h *Handle[T]) shouldRetire() bool {
	return h.errScore >= retireErrScore ||
		h.useCount >= retireUses ||
		time.Since(h.created) >= retireAge
}

// Pool hands out at most max values at a time. Acquire blocks on a
// semaphore; every Acquire must be paired with exactly one Release.
type Pool[T any] struct {
	sem     *semaphore.Weighted
	idle    chan *Handle[T]
	create  func() (*T, error)
	destroy func(*T)

	mu     sync.Mutex
	closed bool
	live   atomic.Int32
	active atomic.Int32
}

// NewPool creates a Pool bounded to max concurrent checkouts.
func NewPool[T any](max int, create func() (*T, error), destroy func(*T)) *Pool[T] {
	if max < 1 {
		max = 1
	}
	return &Pool[T]{
		sem:     semaphore.NewWeighted(int64(max)),
		idle:    make(chan *Handle[T], max),
		create:  create,
		destroy: destroy,
	}
}

// Acquire waits for a free slot, then reuses an idle value or creates one.
func (p *Pool[T]) Acquire(ctx context.Context) (*Handle[T], error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	select {
	case h := <-p.idle:
		p.active.Add(1)
		return h, nil
	default:
	}

	v, err := p.create()
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	p.live.Add(1)
	p.active.Add(1)
	return &Handle[T]{Value: v, created: time.Now()}, nil
}

// Release returns h to the pool. Unhealthy values are destroyed instead.
func (p *Pool[T]) Release(h *Handle[T], ok bool) {
	defer p.sem.Release(1)
	p.active.Add(-1)
	h.record(ok)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed || h.shouldRetire() {
		slog.Debug("pool: retiring value", "errScore", h.errScore, "useCount", h.useCount)
		p.discard(h)
		return
	}

	select {
	case p.idle <- h:
	default:
		p.discard(h)
	}
}

// Active returns the number of checked-out values.
func (p *Pool[T]) Active() int { return int(p.active.Load()) }

// Live returns the number of values not yet destroyed.
func (p *Pool[T]) Live() int { return int(p.live.Load()) }

// Close destroys idle values; values still checked out are destroyed on
// Release.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	for {
		select {
		case h := <-p.idle:
			p.discard(h)
		default:
			return
		}
	}
}

func (p *Pool[T]) discard(h *Handle[T]) {
	p.live.Add(-1)
	if p.destroy != nil {
		p.destroy(h.Value)
	}
}
