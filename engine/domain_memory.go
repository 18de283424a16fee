package engine

import (
	"sync"
	"time"

	"github.com/use-agent/linkscan/models"
)

// hostEntry stores the learned strategy for a host with a TTL.
type hostEntry struct {
	strategy  models.Strategy
	expiresAt time.Time
}

// DomainMemory remembers, per host, whether pages needed a render.
// Entries expire after the configured TTL and are cleaned up periodically.
type DomainMemory struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts
// a background goroutine that prunes expired entries.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop(ttl)
	return dm
}

// Get returns the remembered strategy for a host, or "" if unknown or expired.
func (dm *DomainMemory) Get(host string) models.Strategy {
	if dm == nil {
		return ""
	}
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*hostEntry)
	if time.Now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return ""
	}
	return entry.strategy
}

// Set records the strategy that served a host.
func (dm *DomainMemory) Set(host string, s models.Strategy) {
	if dm == nil {
		return
	}
	dm.store.Store(host, &hostEntry{
		strategy:  s,
		expiresAt: time.Now().Add(dm.ttl),
	})
}

// Delete forgets a host (e.g. after the remembered strategy failed).
func (dm *DomainMemory) Delete(host string) {
	if dm == nil {
		return
	}
	dm.store.Delete(host)
}

// Stop terminates the background cleanup goroutine.
func (dm *DomainMemory) Stop() {
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop(ttl time.Duration) {
	interval := time.Hour
	if ttl > 0 && ttl < interval {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := time.Now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*hostEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
