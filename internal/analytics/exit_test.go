package analytics

import (
	"testing"

	"github.com/robertcprice/agent-monitor/internal/session"
)

func contentEvent(content string) *session.Event {
	return &session.Event{
		ID:        "evt_test",
		SessionID: "s1",
		EventKind: session.EventResponseGenerated,
		Content:   content,
	}
}

func TestDoneSignalsNeedAStreak(t *testing.T) {
	d := NewExitDetector()

	if _, done := d.AnalyzeEvent(contentEvent("All tasks completed successfully!")); done {
		t.Fatal("one done signal should not trigger an exit")
	}
	reason, done := d.AnalyzeEvent(contentEvent("All done, everything is working!"))
	if !done || reason != ExitCompletionSignals {
		t.Errorf("got (%v, %v), want (completion_signals, true)", reason, done)
	}
}

func TestDoneStreakResetsOnOrdinaryContent(t *testing.T) {
	d := NewExitDetector()

	d.AnalyzeEvent(contentEvent("all tasks completed"))
	d.AnalyzeEvent(contentEvent("now refactoring the parser"))
	if _, done := d.AnalyzeEvent(contentEvent("all tasks completed")); done {
		t.Error("done streak should have been reset by ordinary content")
	}
}

func TestStrongCompletionFiresImmediately(t *testing.T) {
	d := NewExitDetector()

	reason, done := d.AnalyzeEvent(contentEvent("Implementation complete. Ready for review!"))
	if !done || reason != ExitStrongCompletion {
		t.Errorf("got (%v, %v), want (strong_completion, true)", reason, done)
	}
}

func TestTestSaturation(t *testing.T) {
	d := NewExitDetector()

	for i := 0; i < 2; i++ {
		if _, done := d.AnalyzeEvent(contentEvent("Running cargo test...")); done {
			t.Fatalf("exit after %d test-only events, want none before 3", i+1)
		}
	}
	reason, done := d.AnalyzeEvent(contentEvent("Running pytest..."))
	if !done || reason != ExitTestSaturation {
		t.Errorf("got (%v, %v), want (test_saturation, true)", reason, done)
	}
}

func TestProgressWordResetsTestStreak(t *testing.T) {
	d := NewExitDetector()

	d.AnalyzeEvent(contentEvent("running tests"))
	d.AnalyzeEvent(contentEvent("running tests again, then fix the regression"))
	d.AnalyzeEvent(contentEvent("running tests"))
	if _, done := d.AnalyzeEvent(contentEvent("running tests")); done {
		t.Error("a test mention with a progress word should reset the streak")
	}
}

func TestScenarioTestsThenStrongCompletion(t *testing.T) {
	d := NewExitDetector()

	d.AnalyzeEvent(contentEvent("Running cargo test..."))
	d.AnalyzeEvent(contentEvent("Running cargo test..."))
	reason, done := d.AnalyzeEvent(contentEvent("Implementation complete. Ready for review!"))
	if !done || reason != ExitStrongCompletion {
		t.Errorf("got (%v, %v), want (strong_completion, true)", reason, done)
	}
}

func TestIsTaskListComplete(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"unchecked box", "- [x] a\n- [ ] b", false},
		{"all checked", "- [x] a\n- [X] b", true},
		{"star bullets", "* [x] a\n* [X] b", true},
		{"no checkboxes", "plain text", false},
		{"mixed star unchecked", "* [x] a\n* [ ] b", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTaskListComplete(tt.text); got != tt.want {
				t.Errorf("IsTaskListComplete(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectorResetClearsState(t *testing.T) {
	d := NewExitDetector()
	d.AnalyzeEvent(contentEvent("all tasks completed"))
	d.Reset()

	st := d.State()
	if st.DoneSignalCount != 0 || st.RecentContentCount != 0 {
		t.Errorf("state after reset = %+v, want zeroed", st)
	}
}
