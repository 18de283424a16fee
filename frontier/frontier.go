package frontier

import (
	"container/list"
	"sync"
)

// Entry is a page waiting to be visited.
type Entry struct {
	URL      string // canonical
	Depth    int
	Referrer string
}

// Frontier is a breadth-first queue of pages plus the set of every URL
// ever accepted. A URL is accepted at most once per Frontier.
type Frontier struct {
	mu       sync.Mutex
	queue    *list.List
	seen     map[string]struct{}
	visited  []string
	maxDepth int
	dropped  int
}

// New creates a Frontier that rejects entries deeper than maxDepth.
func New(maxDepth int) *Frontier {
	return &Frontier{
		queue:    list.New(),
		seen:     make(map[string]struct{}),
		maxDepth: maxDepth,
	}
}

// Enqueue adds e if its URL has not been seen and its depth is within
// bounds. It reports whether the entry was accepted. e.URL must already
// be canonical.
func (f *Frontier) Enqueue(e Entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[e.URL]; ok {
		return false
	}
	if e.Depth > f.maxDepth {
		f.dropped++
		return false
	}
	f.seen[e.URL] = struct{}{}
	f.queue.PushBack(e)
	return true
}

// Dequeue pops the oldest entry and records it as visited.
func (f *Frontier) Dequeue() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	front := f.queue.Front()
	if front == nil {
		return Entry{}, false
	}
	e := f.queue.Remove(front).(Entry)
	f.visited = append(f.visited, e.URL)
	return e, true
}

// MarkVisited records a URL reached some other way (for example as a
// redirect target) so it is never queued. It reports whether the URL
// was new.
func (f *Frontier) MarkVisited(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[u]; ok {
		return false
	}
	f.seen[u] = struct{}{}
	f.visited = append(f.visited, u)
	return true
}

// Seen reports whether u was ever accepted or marked visited.
func (f *Frontier) Seen(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[u]
	return ok
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// Drain empties the queue and returns what was still waiting.
func (f *Frontier) Drain() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Entry, 0, f.queue.Len())
	for e := f.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Entry))
	}
	f.queue.Init()
	return out
}

// Visited returns the dequeued URLs in visit order.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

// DepthDropped counts entries rejected for exceeding the depth limit.
func (f *Frontier) DepthDropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
