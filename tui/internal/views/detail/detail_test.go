package detail

import (
	"testing"
	"time"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
)

func testEvents(ids ...string) []*client.Event {
	events := make([]*client.Event, 0, len(ids))
	for _, id := range ids {
		events = append(events, &client.Event{
			ID:        id,
			SessionID: "sess-1",
			EventType: "response_generated",
			Timestamp: time.Now(),
			Content:   "content for " + id,
		})
	}
	return events
}

func TestSetEventsKeepsCursorOnHeadInsert(t *testing.T) {
	m := New("dark")
	m.SetSize(100, 30)
	m.Open(&client.Session{ID: "sess-1"})

	m.SetEvents(testEvents("e1", "e2", "e3"))
	m.MoveCursor(1)
	if got := m.CursorID(); got != "e2" {
		t.Fatalf("cursor = %q, want e2", got)
	}

	// Two new events arrive at the head of the refreshed list.
	m.SetEvents(testEvents("n1", "n2", "e1", "e2", "e3"))

	if got := m.CursorID(); got != "e2" {
		t.Errorf("cursor after refresh = %q, want e2", got)
	}
	if got := m.ScrollOffset(); got != 2 {
		t.Errorf("scroll offset = %d, want 2", got)
	}
}

func TestSetEventsCursorAgedOutKeepsSlot(t *testing.T) {
	m := New("dark")
	m.SetSize(100, 30)
	m.Open(&client.Session{ID: "sess-1"})

	m.SetEvents(testEvents("e1", "e2", "e3"))
	m.MoveCursor(2)
	if got := m.CursorID(); got != "e3" {
		t.Fatalf("cursor = %q, want e3", got)
	}

	// e3 fell out of the window; the cursor stays on the last row.
	m.SetEvents(testEvents("n1", "e1", "e2"))
	if got := m.CursorID(); got != "e2" {
		t.Errorf("cursor after age-out = %q, want e2", got)
	}
}

func TestToggleExpand(t *testing.T) {
	m := New("dark")
	m.SetSize(100, 30)
	m.Open(&client.Session{ID: "sess-1"})

	m.ToggleExpand()
	if m.Expanded() {
		t.Error("expand with no events should be a no-op")
	}

	m.SetEvents(testEvents("e1", "e2"))
	m.ToggleExpand()
	if !m.Expanded() {
		t.Fatal("expected expanded after toggle")
	}
	m.ToggleExpand()
	if m.Expanded() {
		t.Error("expected collapsed after second toggle")
	}
}

func TestOpenResetsState(t *testing.T) {
	m := New("dark")
	m.SetSize(100, 30)
	m.Open(&client.Session{ID: "sess-1"})
	m.SetEvents(testEvents("e1", "e2", "e3"))
	m.MoveCursor(2)
	m.ToggleExpand()

	m.Open(&client.Session{ID: "sess-2"})
	if m.Expanded() {
		t.Error("expected collapsed after open")
	}
	if got := m.CursorID(); got != "" {
		t.Errorf("cursor = %q, want empty", got)
	}
	if got := m.ScrollOffset(); got != 0 {
		t.Errorf("scroll offset = %d, want 0", got)
	}
	if len(m.Events) != 0 {
		t.Errorf("events = %d, want 0", len(m.Events))
	}
}
