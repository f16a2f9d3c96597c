package adapter

import (
	"sync"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// tracker is an adapter's in-memory view of its sessions, keyed by
// project path so multiple sightings of the same directory collapse
// into one session. Writers are the file watcher and the process
// scanner; readers are discovery and administrative queries.
type tracker struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newTracker() *tracker {
	return &tracker{sessions: make(map[string]*session.Session)}
}

// Get returns a snapshot of the session for the project, or nil.
func (t *tracker) Get(project string) *session.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sessions[project]; ok {
		return s.Clone()
	}
	return nil
}

// Has reports whether a session exists for the project.
func (t *tracker) Has(project string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[project]
	return ok
}

// Put stores the session under its project path.
func (t *tracker) Put(project string, s *session.Session) {
	t.mu.Lock()
	t.sessions[project] = s
	t.mu.Unlock()
}

// Mutate applies fn to the session for the project, creating it with
// create on first sighting. It returns a snapshot of the resulting
// state. The lock is held for the duration of fn.
func (t *tracker) Mutate(project string, create func() *session.Session, fn func(*session.Session)) *session.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[project]
	if !ok {
		s = create()
		t.sessions[project] = s
	}
	fn(s)
	return s.Clone()
}

// All returns snapshots of every tracked session.
func (t *tracker) All() []*session.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*session.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.Clone())
	}
	return out
}
