package crawler

import (
	"fmt"
	"runtime"
)

// guard trips when the scan outgrows its resource ceiling.
type guard struct {
	maxHeap     uint64
	maxFrontier int
	heapAlloc   func() uint64
}

func newGuard(maxHeap uint64, maxFrontier int) *guard {
	return &guard{maxHeap: maxHeap, maxFrontier: maxFrontier, heapAlloc: readHeapAlloc}
}

// check returns a non-empty reason when a ceiling is exceeded.
func (g *guard) check(queued int) string {
	if g.maxFrontier > 0 && queued > g.maxFrontier {
		return fmt.Sprintf("frontier holds %d pages, ceiling is %d", queued, g.maxFrontier)
	}
	if g.maxHeap > 0 {
		if heap := g.heapAlloc(); heap > g.maxHeap {
			return fmt.Sprintf("heap at %d MiB, ceiling is %d MiB", heap>>20, g.maxHeap>>20)
		}
	}
	return ""
}

func readHeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
