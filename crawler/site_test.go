package crawler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// testSite is an httptest server with a hit counter per "METHOD /path".
type testSite struct {
	*httptest.Server
	mux *http.ServeMux

	mu   sync.Mutex
	hits map[string]int
	at   map[string][]time.Time
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	s := &testSite{
		mux:  http.NewServeMux(),
		hits: make(map[string]int),
		at:   make(map[string][]time.Time),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		s.hits[key]++
		s.at[r.URL.Path] = append(s.at[r.URL.Path], time.Now())
		s.mu.Unlock()
		s.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// page serves an HTML document at path.
func (s *testSite) page(path, body string) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body>%s</body></html>", path, body)
	})
}

// status serves an empty response with code at path.
func (s *testSite) status(path string, code int) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func (s *testSite) count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

func (s *testSite) requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.at[path])
}
