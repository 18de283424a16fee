package crawler

import "testing"

func TestGuardCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		g       *guard
		queued  int
		tripped bool
	}{
		{"disabled", &guard{heapAlloc: func() uint64 { return 1 << 40 }}, 1 << 20, false},
		{"frontier under ceiling", &guard{maxFrontier: 10, heapAlloc: func() uint64 { return 0 }}, 10, false},
		{"frontier over ceiling", &guard{maxFrontier: 10, heapAlloc: func() uint64 { return 0 }}, 11, true},
		{"heap over ceiling", &guard{maxHeap: 1 << 20, heapAlloc: func() uint64 { return 2 << 20 }}, 0, true},
		{"heap under ceiling", &guard{maxHeap: 4 << 20, heapAlloc: func() uint64 { return 2 << 20 }}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reason := tt.g.check(tt.queued)
			if (reason != "") != tt.tripped {
				t.Errorf("check = %q, tripped want %v", reason, tt.tripped)
			}
		})
	}
}
