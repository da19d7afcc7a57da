package llm

import "sync"

// Stats accumulates request counts by decision kind since the last
// reset, exposed via /admin/stats and /admin/export.
type Stats struct {
	mu            sync.Mutex
	TotalRequests int64                   `json:"total_requests"`
	ByKind        map[ErrorKind]int64     `json:"by_kind"`
	ByHTTPStatus  map[int]int64           `json:"by_http_status"`
	ByMalformed   map[MalformedMode]int64 `json:"by_malformed_mode"`
}

func newStats() *Stats {
	return &Stats{
		ByKind:       make(map[ErrorKind]int64),
		ByHTTPStatus: make(map[int]int64),
		ByMalformed:  make(map[MalformedMode]int64),
	}
}

func (s *Stats) record(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	s.ByKind[d.Kind]++
	if d.Kind == ErrorHTTP {
		s.ByHTTPStatus[d.HTTPStatus]++
	}
	if d.Kind == ErrorMalformed {
		s.ByMalformed[d.MalformedMode]++
	}
}

// snapshot returns a shallow copy safe to serialize without holding
// the lock during JSON encoding.
func (s *Stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Stats{
		TotalRequests: s.TotalRequests,
		ByKind:        make(map[ErrorKind]int64, len(s.ByKind)),
		ByHTTPStatus:  make(map[int]int64, len(s.ByHTTPStatus)),
		ByMalformed:   make(map[MalformedMode]int64, len(s.ByMalformed)),
	}
	for k, v := range s.ByKind {
		out.ByKind[k] = v
	}
	for k, v := range s.ByHTTPStatus {
		out.ByHTTPStatus[k] = v
	}
	for k, v := range s.ByMalformed {
		out.ByMalformed[k] = v
	}
	return out
}

func (s *Stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests = 0
	s.ByKind = make(map[ErrorKind]int64)
	s.ByHTTPStatus = make(map[int]int64)
	s.ByMalformed = make(map[MalformedMode]int64)
}
