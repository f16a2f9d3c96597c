package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *session.Session {
	now := time.Now().UTC()
	return &session.Session{
		ID:             id,
		AgentKind:      session.KindClaude,
		ExternalID:     "ext-" + id,
		ProjectPath:    "/home/user/proj-" + id,
		Status:         session.StatusActive,
		StartedAt:      now.Add(-time.Hour),
		LastActivityAt: now,
	}
}

func TestUpsertSession_InsertThenUpdate(t *testing.T) {
	s := openTestStore(t)

	sess := testSession("s1")
	sess.MessageCount = 5
	if err := s.UpsertSession(sess); err != nil {
		t.Fatal(err)
	}

	sess.MessageCount = 10
	sess.Status = session.StatusCompleted
	sess.AddTokens(1000, 2000)
	if err := s.UpsertSession(sess); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("session not found after upsert")
	}
	if got.MessageCount != 10 {
		t.Errorf("MessageCount = %d, want 10", got.MessageCount)
	}
	if got.Status != session.StatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.TokensInput != 1000 || got.TokensOutput != 2000 {
		t.Errorf("tokens = %d/%d, want 1000/2000", got.TokensInput, got.TokensOutput)
	}

	want := session.EstimatedCost(1000, 2000)
	if math.Abs(got.EstimatedCost-want) > 1e-9 {
		t.Errorf("EstimatedCost = %v, want %v", got.EstimatedCost, want)
	}
}

func TestUpsertSession_ImmutableFields(t *testing.T) {
	s := openTestStore(t)

	orig := testSession("s1")
	if err := s.UpsertSession(orig); err != nil {
		t.Fatal(err)
	}

	// A second upsert with different identity fields must not rewrite them.
	mutated := orig.Clone()
	mutated.AgentKind = session.KindAider
	mutated.ExternalID = "other"
	mutated.ProjectPath = "/elsewhere"
	mutated.StartedAt = orig.StartedAt.Add(time.Hour)
	if err := s.UpsertSession(mutated); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentKind != session.KindClaude {
		t.Errorf("AgentKind overwritten: %v", got.AgentKind)
	}
	if got.ExternalID != orig.ExternalID {
		t.Errorf("ExternalID overwritten: %q", got.ExternalID)
	}
	if got.ProjectPath != orig.ProjectPath {
		t.Errorf("ProjectPath overwritten: %q", got.ProjectPath)
	}
	if !got.StartedAt.Equal(orig.StartedAt.Truncate(time.Millisecond)) {
		t.Errorf("StartedAt overwritten: %v", got.StartedAt)
	}
}

func testEvent(id, sessionID string, ts time.Time) *session.Event {
	return &session.Event{
		ID:        id,
		SessionID: sessionID,
		EventKind: session.EventResponseGenerated,
		Timestamp: ts,
		AgentKind: session.KindClaude,
		Content:   "content of " + id,
	}
}

func TestInsertEvent_StableIDIdempotence(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}

	ts := time.Now().UTC()
	id := session.StableEventID("s1", ts, session.EventResponseGenerated, "hello")
	e := testEvent(id, "s1", ts)

	// Inserting the same id any number of times leaves exactly one row.
	for i := 0; i < 5; i++ {
		if err := s.InsertEvent(e); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	events, err := s.GetSessionEvents("s1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ID != id {
		t.Errorf("event id = %q, want %q", events[0].ID, id)
	}
}

func TestDeleteCascade(t *testing.T) {
	s := openTestStore(t)

	claude := testSession("c1")
	aider := testSession("a1")
	aider.AgentKind = session.KindAider
	for _, sess := range []*session.Session{claude, aider} {
		if err := s.UpsertSession(sess); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Now().UTC()
	if err := s.InsertEvent(testEvent("e1", "c1", now)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(testEvent("e2", "a1", now)); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteSessionsByKind(session.KindClaude)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d sessions, want 1", n)
	}

	if got, _ := s.GetSession("c1"); got != nil {
		t.Error("claude session still present after delete")
	}
	events, _ := s.GetRecentEvents(100)
	if len(events) != 1 || events[0].ID != "e2" {
		t.Errorf("expected only e2 to survive, got %v", events)
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(testEvent("e1", "s1", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatal(err)
	}

	sessions, _ := s.GetRecentSessions(24, 100)
	events, _ := s.GetRecentEvents(100)
	if len(sessions) != 0 || len(events) != 0 {
		t.Errorf("expected empty store, got %d sessions %d events", len(sessions), len(events))
	}
}

func TestGetActiveSessions_OrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	old := testSession("old")
	old.LastActivityAt = now.Add(-time.Hour)
	fresh := testSession("fresh")
	fresh.LastActivityAt = now
	done := testSession("done")
	done.Status = session.StatusCompleted

	for _, sess := range []*session.Session{old, fresh, done} {
		if err := s.UpsertSession(sess); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetActiveSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d active sessions, want 2", len(got))
	}
	if got[0].ID != "fresh" || got[1].ID != "old" {
		t.Errorf("order = [%s %s], want [fresh old]", got[0].ID, got[1].ID)
	}
}

func TestGetRecentSessions_Window(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	recent := testSession("recent")
	recent.LastActivityAt = now.Add(-30 * time.Minute)
	stale := testSession("stale")
	stale.LastActivityAt = now.Add(-48 * time.Hour)

	for _, sess := range []*session.Session{recent, stale} {
		if err := s.UpsertSession(sess); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetRecentSessions(24, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "recent" {
		t.Errorf("window filter failed: %v", got)
	}
}

func TestGetSummaryMetrics(t *testing.T) {
	s := openTestStore(t)

	a := testSession("a")
	a.MessageCount = 10
	a.ToolCallCount = 3
	a.AddTokens(1000, 2000)

	b := testSession("b")
	b.Status = session.StatusCompleted
	b.MessageCount = 5
	b.ToolCallCount = 1
	b.AddTokens(500, 500)

	for _, sess := range []*session.Session{a, b} {
		if err := s.UpsertSession(sess); err != nil {
			t.Fatal(err)
		}
	}

	m, err := s.GetSummaryMetrics(24)
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", m.TotalSessions)
	}
	if m.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", m.ActiveSessions)
	}
	if m.TotalMessages != 15 {
		t.Errorf("TotalMessages = %d, want 15", m.TotalMessages)
	}
	if m.TotalTools != 4 {
		t.Errorf("TotalTools = %d, want 4", m.TotalTools)
	}
	wantCost := session.EstimatedCost(1000, 2000) + session.EstimatedCost(500, 500)
	if math.Abs(m.TotalCost-wantCost) > 1e-9 {
		t.Errorf("TotalCost = %v, want %v", m.TotalCost, wantCost)
	}
}

func TestEventOrderingAndFields(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	tokens := int64(42)
	first := &session.Event{
		ID:          "e1",
		SessionID:   "s1",
		EventKind:   session.EventToolStart,
		Timestamp:   base,
		AgentKind:   session.KindClaude,
		Content:     "[TOOL: Bash]\n{\"cmd\":\"ls\"}",
		ToolName:    "Bash",
		TokensInput: &tokens,
	}
	second := testEvent("e2", "s1", base.Add(time.Second))

	if err := s.InsertEvent(first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(second); err != nil {
		t.Fatal(err)
	}

	events, err := s.GetSessionEvents("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].ID != "e2" || events[1].ID != "e1" {
		t.Errorf("order = [%s %s], want [e2 e1]", events[0].ID, events[1].ID)
	}

	got := events[1]
	if got.ToolName != "Bash" {
		t.Errorf("ToolName = %q, want Bash", got.ToolName)
	}
	if got.TokensInput == nil || *got.TokensInput != 42 {
		t.Errorf("TokensInput = %v, want 42", got.TokensInput)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, base)
	}
}

func TestGetEvent(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEvent(testEvent("e1", "s1", time.Now())); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEvent("e1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "e1" {
		t.Fatalf("GetEvent(e1) = %v", got)
	}

	missing, err := s.GetEvent("nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing event")
	}
}
