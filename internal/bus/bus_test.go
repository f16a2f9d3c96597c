package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
)

func makeEvent(i int) *session.Event {
	return &session.Event{
		ID:        fmt.Sprintf("evt_%d", i),
		SessionID: "s1",
		EventKind: session.EventCustom,
		Timestamp: time.Now(),
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		b.Publish(makeEvent(i))
	}

	for i := 0; i < 10; i++ {
		select {
		case e := <-sub.C:
			want := fmt.Sprintf("evt_%d", i)
			if e.ID != want {
				t.Errorf("event %d: id = %q, want %q", i, e.ID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewWithCapacity(100)
	sub := b.Subscribe() // idle subscriber, never reads
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			b.Publish(makeEvent(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	if sub.Lagged() == 0 {
		t.Error("idle subscriber should have observed lag")
	}

	// The subscriber resumes from a later event rather than the first.
	e := <-sub.C
	if e.ID == "evt_0" {
		t.Errorf("expected oldest events to have been dropped, got %s", e.ID)
	}
}

func TestSlowSubscriberDoesNotAffectFastOne(t *testing.T) {
	b := NewWithCapacity(10)
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	// Drain the fast subscriber in step with publishing; the slow one
	// is never read, so only it overflows its buffer.
	for i := 0; i < 100; i++ {
		b.Publish(makeEvent(i))
		select {
		case e := <-fast.C:
			want := fmt.Sprintf("evt_%d", i)
			if e.ID != want {
				t.Fatalf("event %d: id = %q, want %q", i, e.ID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber stalled at event %d", i)
		}
	}

	if fast.Lagged() != 0 {
		t.Errorf("fast subscriber lagged %d, want 0", fast.Lagged())
	}
	if slow.Lagged() == 0 {
		t.Error("slow subscriber should have lagged")
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount after Close = %d, want 0", got)
	}

	// Publishing after close must not panic.
	b.Publish(makeEvent(0))

	// Closed channel yields zero values.
	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel")
	}
}
