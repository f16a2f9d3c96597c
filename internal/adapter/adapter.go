// Package adapter turns tool-specific signal sources (structured log
// files, workspace state files, live process inventories) into a
// uniform stream of sessions and events.
package adapter

import (
	"context"
	"log"

	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/session"
	"github.com/robertcprice/agent-monitor/internal/store"
)

// Capabilities advertises what signals an adapter can extract from its
// tool.
type Capabilities struct {
	RealTimeEvents     bool `json:"real_time_events"`
	HistoricalData     bool `json:"historical_data"`
	TokenTracking      bool `json:"token_tracking"`
	CostTracking       bool `json:"cost_tracking"`
	FileChangeTracking bool `json:"file_change_tracking"`
	TranscriptAccess   bool `json:"transcript_access"`
}

// Adapter observes one family of AI tool.
type Adapter interface {
	Name() string
	Kind() session.AgentKind
	Start(ctx context.Context) error
	Stop()
	DiscoverSessions() ([]*session.Session, error)
	Capabilities() Capabilities
}

// Sink is where adapters deliver their observations. Insert-then-
// publish ordering is intentional: a subscriber reading the store sees
// at least what has been broadcast.
type Sink struct {
	Store *store.Store
	Bus   *bus.Bus
}

// UpsertSession persists a session snapshot, logging failures instead
// of propagating them so a storage hiccup never stalls a watcher.
func (s *Sink) UpsertSession(sess *session.Session) {
	if err := s.Store.UpsertSession(sess); err != nil {
		log.Printf("[adapter] upsert session %s: %v", sess.ID, err)
	}
}

// EmitEvent stores the event (duplicates are silently ignored) and
// publishes it on the bus.
func (s *Sink) EmitEvent(e *session.Event) {
	if err := s.Store.InsertEvent(e); err != nil {
		log.Printf("[adapter] insert event %s: %v", e.ID, err)
	}
	s.Bus.Publish(e)
}

// seedDiscovered installs initial discovery results into the tracker
// and the store. Projects the tracker already knows keep their existing
// session, so the first watcher or scanner sighting after startup does
// not mint a duplicate.
func seedDiscovered(t *tracker, sink *Sink, sessions []*session.Session) {
	for _, s := range sessions {
		if t.Has(s.ProjectPath) {
			continue
		}
		t.Put(s.ProjectPath, s)
		sink.UpsertSession(s.Clone())
	}
}

// Registry owns the set of configured adapters.
type Registry struct {
	adapters []Adapter
}

// Register appends an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// StartAll starts every adapter sequentially, stopping at the first
// failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, a := range r.adapters {
		if err := a.Start(ctx); err != nil {
			return err
		}
		log.Printf("[adapter] %s started", a.Name())
	}
	return nil
}

// StopAll stops every adapter sequentially.
func (r *Registry) StopAll() {
	for _, a := range r.adapters {
		a.Stop()
		log.Printf("[adapter] %s stopped", a.Name())
	}
}
