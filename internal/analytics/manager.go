package analytics

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/session"
)

// SessionAnalytics is the per-session interpretation state.
type SessionAnalytics struct {
	SessionID         string
	ExitDetector      *ExitDetector
	CircuitBreaker    *CircuitBreaker
	LoopCount         uint64
	FilesChangedTotal int
	ErrorsTotal       int
	LastActivity      time.Time
}

func newSessionAnalytics(sessionID string) *SessionAnalytics {
	return &SessionAnalytics{
		SessionID:      sessionID,
		ExitDetector:   NewExitDetector(),
		CircuitBreaker: NewCircuitBreaker(),
		LastActivity:   time.Now().UTC(),
	}
}

// SessionAnalyticsState is the serializable per-session snapshot.
type SessionAnalyticsState struct {
	LoopCount         uint64              `json:"loop_count"`
	FilesChangedTotal int                 `json:"files_changed_total"`
	ErrorsTotal       int                 `json:"errors_total"`
	ExitDetector      ExitDetectorState   `json:"exit_detector"`
	CircuitBreaker    CircuitBreakerState `json:"circuit_breaker"`
	LastActivity      time.Time           `json:"last_activity"`
}

// Status is the full engine snapshot serialized to disk.
type Status struct {
	Timestamp          time.Time                        `json:"timestamp"`
	RateLimiter        RateLimiterState                 `json:"rate_limiter"`
	Sessions           map[string]SessionAnalyticsState `json:"sessions"`
	ActiveSessionCount int                              `json:"active_session_count"`
}

// Manager owns per-session analytics and the global rate limiter.
// Each structure is guarded by its own lock so event processing never
// contends with rate-limit checks from request handlers.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*SessionAnalytics

	limiterMu sync.Mutex
	limiter   *RateLimiter

	snapshotPath string
}

// NewManager builds a manager whose limiter allows maxCallsPerHour.
func NewManager(maxCallsPerHour int) *Manager {
	return &Manager{
		sessions: make(map[string]*SessionAnalytics),
		limiter:  NewRateLimiter(maxCallsPerHour),
	}
}

// SetSnapshotPath enables periodic on-disk snapshots of engine state.
func (m *Manager) SetSnapshotPath(path string) {
	m.snapshotPath = path
}

// SetRateLimitDisabled toggles rate-limit enforcement.
func (m *Manager) SetRateLimitDisabled(disabled bool) {
	m.limiterMu.Lock()
	m.limiter.SetDisabled(disabled)
	m.limiterMu.Unlock()
}

func (m *Manager) analyticsFor(sessionID string) *SessionAnalytics {
	a, ok := m.sessions[sessionID]
	if !ok {
		a = newSessionAnalytics(sessionID)
		m.sessions[sessionID] = a
	}
	return a
}

// ProcessEvent folds one event into the session's analytics. The
// boolean reports whether an exit condition was met.
func (m *Manager) ProcessEvent(e *session.Event) (ExitReason, bool) {
	if e.TokensInput != nil {
		var out int64
		if e.TokensOutput != nil {
			out = *e.TokensOutput
		}
		m.limiterMu.Lock()
		m.limiter.RecordCall(*e.TokensInput + out)
		m.limiterMu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.analyticsFor(e.SessionID)
	a.LastActivity = time.Now().UTC()

	reason, done := a.ExitDetector.AnalyzeEvent(e)

	switch e.EventKind {
	case session.EventFileModified:
		a.FilesChangedTotal++
	case session.EventError:
		a.ErrorsTotal++
	}

	return reason, done
}

// RecordLoop feeds one iteration's output into the session's circuit
// breaker and reports whether it opened.
func (m *Manager) RecordLoop(sessionID, content string, filesChanged int, tokens int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.analyticsFor(sessionID)
	a.LoopCount++
	return a.CircuitBreaker.RecordResult(content, filesChanged, tokens)
}

// CanExecute reports whether the global rate limit allows another
// call.
func (m *Manager) CanExecute() bool {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	return m.limiter.CanMakeCall()
}

// ResetCircuitBreaker closes the breaker for one session.
func (m *Manager) ResetCircuitBreaker(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.sessions[sessionID]; ok {
		a.CircuitBreaker.Reset()
	}
}

// RateLimiterSnapshot returns the limiter's current state.
func (m *Manager) RateLimiterSnapshot() RateLimiterState {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()
	return m.limiter.Snapshot()
}

// Snapshot returns the full engine state at a point in time.
func (m *Manager) Snapshot() *Status {
	m.mu.RLock()
	states := make(map[string]SessionAnalyticsState, len(m.sessions))
	for id, a := range m.sessions {
		states[id] = SessionAnalyticsState{
			LoopCount:         a.LoopCount,
			FilesChangedTotal: a.FilesChangedTotal,
			ErrorsTotal:       a.ErrorsTotal,
			ExitDetector:      a.ExitDetector.State(),
			CircuitBreaker:    a.CircuitBreaker.Snapshot(),
			LastActivity:      a.LastActivity,
		}
	}
	m.mu.RUnlock()

	return &Status{
		Timestamp:          time.Now().UTC(),
		RateLimiter:        m.RateLimiterSnapshot(),
		Sessions:           states,
		ActiveSessionCount: len(states),
	}
}

// WriteSnapshot serializes engine state to the configured path using
// write-then-rename so a crash mid-write cannot corrupt the previous
// snapshot.
func (m *Manager) WriteSnapshot() error {
	if m.snapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	tmp := m.snapshotPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.snapshotPath)
}

// Run consumes the bus subscription until the context ends, snapshotting
// engine state at the given interval. Exit signals are logged; the
// engine observes sessions but never steers them.
func (m *Manager) Run(ctx context.Context, sub *bus.Subscription, snapshotInterval time.Duration) {
	if snapshotInterval <= 0 {
		snapshotInterval = time.Minute
	}
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if reason, done := m.ProcessEvent(e); done {
				log.Printf("[analytics] session %s exit signal: %s", e.SessionID, reason)
			}
		case <-ticker.C:
			if err := m.WriteSnapshot(); err != nil {
				log.Printf("[analytics] write snapshot: %v", err)
			}
		}
	}
}
