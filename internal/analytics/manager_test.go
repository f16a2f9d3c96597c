package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/robertcprice/agent-monitor/internal/session"
)

func tokenEvent(sessionID string, in, out int64) *session.Event {
	return &session.Event{
		ID:           session.NewEventID(),
		SessionID:    sessionID,
		EventKind:    session.EventResponseGenerated,
		TokensInput:  &in,
		TokensOutput: &out,
	}
}

func TestManagerRecordsTokensAgainstLimiter(t *testing.T) {
	m := NewManager(3)

	for i := 0; i < 3; i++ {
		m.ProcessEvent(tokenEvent("s1", 10, 20))
	}
	if m.CanExecute() {
		t.Error("limiter should be exhausted after three token-bearing events")
	}
	snap := m.RateLimiterSnapshot()
	if snap.TokensThisHour != 90 {
		t.Errorf("TokensThisHour = %d, want 90", snap.TokensThisHour)
	}
}

func TestManagerEventCounters(t *testing.T) {
	m := NewManager(100)

	m.ProcessEvent(&session.Event{SessionID: "s1", EventKind: session.EventFileModified})
	m.ProcessEvent(&session.Event{SessionID: "s1", EventKind: session.EventFileModified})
	m.ProcessEvent(&session.Event{SessionID: "s1", EventKind: session.EventError})

	st := m.Snapshot()
	s1, ok := st.Sessions["s1"]
	if !ok {
		t.Fatal("session s1 missing from snapshot")
	}
	if s1.FilesChangedTotal != 2 {
		t.Errorf("FilesChangedTotal = %d, want 2", s1.FilesChangedTotal)
	}
	if s1.ErrorsTotal != 1 {
		t.Errorf("ErrorsTotal = %d, want 1", s1.ErrorsTotal)
	}
}

func TestManagerRecordLoopOpensBreaker(t *testing.T) {
	m := NewManager(100)

	if m.RecordLoop("s1", "nothing", 0, 100) {
		t.Fatal("opened too early")
	}
	if m.RecordLoop("s1", "nothing", 0, 100) {
		t.Fatal("opened too early")
	}
	if !m.RecordLoop("s1", "nothing", 0, 100) {
		t.Fatal("breaker should open on the third no-progress loop")
	}

	st := m.Snapshot()
	if st.Sessions["s1"].CircuitBreaker.State != CircuitOpen {
		t.Error("snapshot should show the breaker open")
	}

	m.ResetCircuitBreaker("s1")
	if m.Snapshot().Sessions["s1"].CircuitBreaker.State != CircuitClosed {
		t.Error("reset should close the breaker")
	}
}

func TestManagerSessionsIsolated(t *testing.T) {
	m := NewManager(100)

	for i := 0; i < 3; i++ {
		m.RecordLoop("stuck", "nothing", 0, 100)
		m.RecordLoop("fine", "edited files", 2, 100)
	}
	st := m.Snapshot()
	if st.Sessions["stuck"].CircuitBreaker.State != CircuitOpen {
		t.Error("stuck session's breaker should be open")
	}
	if st.Sessions["fine"].CircuitBreaker.State != CircuitClosed {
		t.Error("healthy session's breaker should stay closed")
	}
}

func TestWriteSnapshotAtomic(t *testing.T) {
	m := NewManager(100)
	path := filepath.Join(t.TempDir(), "nested", "analytics.json")
	m.SetSnapshotPath(path)
	m.ProcessEvent(tokenEvent("s1", 5, 5))

	if err := m.WriteSnapshot(); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if st.ActiveSessionCount != 1 {
		t.Errorf("ActiveSessionCount = %d, want 1", st.ActiveSessionCount)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should have been renamed away")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	m := NewMemoryStore(path)

	m.Write("insight", json.RawMessage(`"prefer table tests"`), "s1", []string{"style"})
	m.Write("insight", json.RawMessage(`"updated"`), "s1", []string{"style", "go"})
	m.Write("other", json.RawMessage(`42`), "", nil)

	e, ok := m.Read("insight")
	if !ok {
		t.Fatal("entry missing")
	}
	if string(e.Value) != `"updated"` {
		t.Errorf("Value = %s, want updated", e.Value)
	}
	if !e.UpdatedAt.After(e.CreatedAt) && !e.UpdatedAt.Equal(e.CreatedAt) {
		t.Error("updated_at should not precede created_at")
	}

	if err := m.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded := NewMemoryStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.List()) != 2 {
		t.Errorf("got %d entries after reload, want 2", len(reloaded.List()))
	}
	if !reloaded.Delete("other") {
		t.Error("Delete should report the entry existed")
	}
	if _, ok := reloaded.Read("other"); ok {
		t.Error("deleted entry still readable")
	}
}

func TestMemoryStoreLoadMissingFile(t *testing.T) {
	m := NewMemoryStore(filepath.Join(t.TempDir(), "absent.json"))
	if err := m.Load(); err != nil {
		t.Errorf("Load of missing file should be a no-op, got %v", err)
	}
}
