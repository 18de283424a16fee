package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Politeness spaces requests to the same host. Each host gets a limiter
// with a burst of one, so consecutive requests are at least one interval
// apart no matter which worker issues them.
type Politeness struct {
	base time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval map[string]time.Duration
}

// NewPoliteness creates a Politeness with a minimum per-host interval.
func NewPoliteness(base time.Duration) *Politeness {
	return &Politeness{
		base:     base,
		limiters: make(map[string]*rate.Limiter),
		interval: make(map[string]time.Duration),
	}
}

// Wait blocks until host may be contacted again.
func (p *Politeness) Wait(ctx context.Context, host string) error {
	return p.limiter(host).Wait(ctx)
}

// Raise widens the interval for host to d if d is longer than the
// current one. Used for robots.txt Crawl-delay.
func (p *Politeness) Raise(host string, d time.Duration) {
	lim := p.limiter(host)

	p.mu.Lock()
	defer p.mu.Unlock()
	if d <= p.interval[host] {
		return
	}
	p.interval[host] = d
	lim.SetLimit(rate.Every(d))
}

// Interval returns the spacing currently enforced for host.
func (p *Politeness) Interval(host string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.interval[host]; ok {
		return d
	}
	return p.base
}

func (p *Politeness) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[host]
	if !ok {
		limit := rate.Inf
		if p.base > 0 {
			limit = rate.Every(p.base)
		}
		lim = rate.NewLimiter(limit, 1)
		p.limiters[host] = lim
		p.interval[host] = p.base
	}
	return lim
}
