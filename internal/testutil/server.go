package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ReleaseServer serves release files from memory and counts requests per
// file name.
type ReleaseServer struct {
	*httptest.Server

	mu     sync.Mutex
	files  map[string][]byte // "v{version}/{name}" -> body
	hits   map[string]int
	agents []string
}

// NewReleaseServer starts a server; it is closed when the test ends.
func NewReleaseServer(t *testing.T) *ReleaseServer {
	t.Helper()

	rs := &ReleaseServer{
		files: make(map[string][]byte),
		hits:  make(map[string]int),
	}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.serve))
	t.Cleanup(rs.Close)

	return rs
}

// Add publishes body at /v{version}/{name}.
func (rs *ReleaseServer) Add(version, name string, body []byte) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.files["v"+version+"/"+name] = body
}

// Hits returns how many times name was requested, across versions.
func (rs *ReleaseServer) Hits(name string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.hits[name]
}

// TotalHits returns the number of requests served, including 404s.
func (rs *ReleaseServer) TotalHits() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	n := 0
	for _, h := range rs.hits {
		n += h
	}
	return n
}

// UserAgents returns the User-Agent of every request seen.
func (rs *ReleaseServer) UserAgents() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.agents...)
}

func (rs *ReleaseServer) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	rs.mu.Lock()
	name := path[strings.LastIndex(path, "/")+1:]
	rs.hits[name]++
	rs.agents = append(rs.agents, r.UserAgent())
	body, ok := rs.files[path]
	rs.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(body)
}
