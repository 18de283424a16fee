// Package cache keeps API-submitted scan jobs in memory until they expire.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/use-agent/linkscan/models"
)

// ErrFull is returned by Put when every slot holds an unfinished job.
var ErrFull = errors.New("cache: job store is full")

// entry holds a job with the cancel func of its scan.
type entry struct {
	job    models.ScanJob
	cancel context.CancelFunc
}

// Store is an in-memory job store. Finished jobs expire after the TTL.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*entry
	maxEntries int
	ttl        time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Store holding at most maxEntries jobs. A background
// goroutine evicts expired jobs until Close is called.
func New(maxEntries int, ttl time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Store{
		jobs:       make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Put stores a new job. cancel aborts its scan. When the store is at
// capacity the oldest finished job is evicted; if none is finished, Put
// fails with ErrFull.
func (s *Store) Put(job *models.ScanJob, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.maxEntries && !s.evictOldestFinishedLocked() {
		return ErrFull
	}
	s.jobs[job.ID] = &entry{job: *job, cancel: cancel}
	return nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (models.ScanJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return models.ScanJob{}, false
	}
	return e.job, true
}

// Update applies fn to the stored job under the store lock.
func (s *Store) Update(id string, fn func(*models.ScanJob)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(&e.job)
	return true
}

// Cancel stops the scan of an unfinished job. It returns the job
// snapshot and whether the job exists.
func (s *Store) Cancel(id string) (models.ScanJob, bool) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return models.ScanJob{}, false
	}
	cancel := e.cancel
	if !finished(e.job.Status) {
		e.job.Status = models.JobCanceled
	}
	job := e.job
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return job, true
}

// Active counts jobs that are queued or running.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.jobs {
		if e.job.Status == models.JobQueued || e.job.Status == models.JobRunning {
			n++
		}
	}
	return n
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the cleanup goroutine and cancels unfinished scans.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, e := range s.jobs {
			if e.cancel != nil && !finished(e.job.Status) {
				e.cancel()
			}
		}
	})
}

// Evict removes finished jobs older than the TTL and returns how many
// were removed.
func (s *Store) Evict(now time.Time) int {
	cutoff := now.Add(-s.ttl).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.jobs {
		if done(e.job) && e.job.FinishedAt <= cutoff {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (s *Store) evictOldestFinishedLocked() bool {
	var (
		oldestID string
		oldestAt int64
	)
	for id, e := range s.jobs {
		if !done(e.job) {
			continue
		}
		if oldestID == "" || e.job.FinishedAt < oldestAt {
			oldestID, oldestAt = id, e.job.FinishedAt
		}
	}
	if oldestID == "" {
		return false
	}
	delete(s.jobs, oldestID)
	return true
}

// cleanupLoop evicts expired jobs every five minutes.
func (s *Store) cleanupLoop() {
	interval := min(s.ttl, 5*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Evict(now)
		}
	}
}

// finished reports whether status is final.
func finished(status string) bool {
	switch status {
	case models.JobCompleted, models.JobFailed, models.JobCanceled:
		return true
	}
	return false
}

// done reports whether the job's scan has returned. A canceled job may
// still be draining until the runner sets FinishedAt.
func done(j models.ScanJob) bool {
	return finished(j.Status) && j.FinishedAt != 0
}
