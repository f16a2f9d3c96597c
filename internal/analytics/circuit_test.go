package analytics

import (
	"encoding/json"
	"testing"
)

func TestCircuitStateJSONRoundTrip(t *testing.T) {
	for _, state := range []CircuitState{CircuitClosed, CircuitOpen, CircuitHalfOpen} {
		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", state, err)
		}
		var got CircuitState
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != state {
			t.Errorf("round trip %v: got %v", state, got)
		}
	}

	var unknown CircuitState = CircuitOpen
	if err := json.Unmarshal([]byte(`"bogus"`), &unknown); err != nil {
		t.Fatalf("Unmarshal bogus: %v", err)
	}
	if unknown != CircuitClosed {
		t.Errorf("unknown name = %v, want closed", unknown)
	}
}

func TestCircuitOpensOnNoProgress(t *testing.T) {
	cb := NewCircuitBreaker()

	if cb.RecordResult("nothing changed", 0, 100) {
		t.Fatal("opened after one no-progress loop")
	}
	if cb.RecordResult("still nothing", 0, 100) {
		t.Fatal("opened after two no-progress loops")
	}
	if !cb.RecordResult("no changes again", 0, 100) {
		t.Fatal("did not open after three no-progress loops")
	}
	if !cb.IsOpen() {
		t.Error("breaker should report open")
	}
}

func TestProgressResetsNoProgressStreak(t *testing.T) {
	cb := NewCircuitBreaker()

	cb.RecordResult("nothing", 0, 100)
	cb.RecordResult("nothing", 0, 100)
	cb.RecordResult("edited three files", 3, 100) // progress
	cb.RecordResult("nothing", 0, 100)
	if cb.IsOpen() {
		t.Error("breaker opened despite progress resetting the streak")
	}
}

func TestLargeTokenUseCountsAsProgress(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < 5; i++ {
		cb.RecordResult("long response", 0, 5000)
	}
	if cb.IsOpen() {
		t.Error("token-heavy loops should count as progress")
	}
}

func TestCircuitOpensOnRepeatedError(t *testing.T) {
	cb := NewCircuitBreaker()

	same := "Error: Connection refused"
	for i := 0; i < 4; i++ {
		if cb.RecordResult(same, 1, 100) {
			t.Fatalf("opened on attempt %d, want open on the 5th", i+1)
		}
	}
	if !cb.RecordResult(same, 1, 100) {
		t.Fatal("did not open on the 5th identical error")
	}
	if !cb.IsOpen() {
		t.Error("breaker should report open")
	}
}

func TestDifferentErrorResetsSignatureCount(t *testing.T) {
	cb := NewCircuitBreaker()

	cb.RecordResult("error: connection refused", 1, 100)
	cb.RecordResult("error: connection refused", 1, 100)
	cb.RecordResult("error: file not found", 1, 100) // new signature, count back to 1
	for i := 0; i < 3; i++ {
		cb.RecordResult("error: file not found", 1, 100)
	}
	if cb.IsOpen() {
		t.Error("breaker opened before 5 consecutive identical errors")
	}
	if !cb.RecordResult("error: file not found", 1, 100) {
		t.Error("should open on the 5th consecutive identical error")
	}
}

func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreaker()
	for i := 0; i < 3; i++ {
		cb.RecordResult("no progress", 0, 100)
	}
	if !cb.IsOpen() {
		t.Fatal("breaker should be open")
	}

	cb.Reset()
	if cb.IsOpen() || !cb.IsClosed() {
		t.Error("breaker should be closed after reset")
	}
	if cb.NoProgressCount() != 0 {
		t.Errorf("NoProgressCount = %d after reset, want 0", cb.NoProgressCount())
	}
	snap := cb.Snapshot()
	if snap.OpenedAt != nil || snap.OpenReason != "" {
		t.Errorf("snapshot after reset = %+v, want cleared open fields", snap)
	}
}

func TestLoopHistoryBounded(t *testing.T) {
	cb := NewCircuitBreaker()
	for i := 0; i < 25; i++ {
		cb.RecordResult("made an edit", 1, 100)
	}
	if got := cb.Snapshot().LoopHistoryCount; got != maxLoopHistory {
		t.Errorf("loop history = %d, want %d", got, maxLoopHistory)
	}
}
