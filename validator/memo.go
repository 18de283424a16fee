package validator

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/use-agent/linkscan/models"
)

// Memo holds one ValidationResult per target for a scan. The first
// stored result wins; concurrent callers for the same target share one
// computation.
type Memo struct {
	mu      sync.RWMutex
	results map[string]models.ValidationResult
	group   singleflight.Group
}

// NewMemo creates an empty Memo.
func NewMemo() *Memo {
	return &Memo{results: make(map[string]models.ValidationResult)}
}

// Get returns the stored result for target.
func (m *Memo) Get(target string) (models.ValidationResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[target]
	return r, ok
}

// Store records r unless a result already exists. It returns the result
// now held for the target and whether r was the one stored.
func (m *Memo) Store(r models.ValidationResult) (models.ValidationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.results[r.TargetURL]; ok {
		return existing, false
	}
	m.results[r.TargetURL] = r
	return r, true
}

// Do returns the stored result for target or runs fn to produce it.
// fresh is true only for the caller whose fn result was stored.
func (m *Memo) Do(target string, fn func() models.ValidationResult) (res models.ValidationResult, fresh bool) {
	if r, ok := m.Get(target); ok {
		return r, false
	}

	var stored bool
	v, _, _ := m.group.Do(target, func() (any, error) {
		if r, ok := m.Get(target); ok {
			return r, nil
		}
		var r models.ValidationResult
		r, stored = m.Store(fn())
		return r, nil
	})
	return v.(models.ValidationResult), stored
}

// Len returns the number of memoized targets.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
