package analytics

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// errorPatterns are matched against lower-cased output lines.
var errorPatterns = []string{
	"error:",
	"error!",
	"exception:",
	"exception!",
	"fatal:",
	"fatal!",
	"panic:",
	"failed:",
	"failure:",
	"traceback",
	"stack trace",
}

// CircuitState is the breaker's position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen is reserved for a timed probe; the core
	// algorithm never enters it.
	CircuitHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half_open",
}

func (s CircuitState) String() string {
	if n, ok := circuitStateNames[s]; ok {
		return n
	}
	return "closed"
}

func (s CircuitState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CircuitState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range circuitStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	*s = CircuitClosed
	return nil
}

// LoopResult records one observed iteration.
type LoopResult struct {
	Timestamp      time.Time `json:"timestamp"`
	FilesChanged   int       `json:"files_changed"`
	ErrorsDetected int       `json:"errors_detected"`
	OutputLength   int       `json:"output_length"`
	TokensUsed     int64     `json:"tokens_used"`
	HadProgress    bool      `json:"had_progress"`
}

const (
	maxLoopHistory         = 10
	noProgressThreshold    = 3
	repeatedErrorThreshold = 5
)

// CircuitBreaker opens when a session stagnates or keeps hitting the
// same error. Not safe for concurrent use; the manager serializes
// access.
type CircuitBreaker struct {
	state              CircuitState
	loopHistory        []LoopResult
	noProgressCount    int
	repeatedErrorCount int
	lastErrorSignature string
	openedAt           *time.Time
	openReason         string
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: CircuitClosed}
}

func (c *CircuitBreaker) IsClosed() bool       { return c.state == CircuitClosed }
func (c *CircuitBreaker) IsOpen() bool         { return c.state == CircuitOpen }
func (c *CircuitBreaker) State() CircuitState  { return c.state }
func (c *CircuitBreaker) NoProgressCount() int { return c.noProgressCount }

// RecordResult folds one iteration into the breaker and reports
// whether it opened the circuit.
func (c *CircuitBreaker) RecordResult(content string, filesChanged int, tokensUsed int64) bool {
	lower := strings.ToLower(content)

	errorsDetected := 0
	for _, p := range errorPatterns {
		if strings.Contains(lower, p) {
			errorsDetected++
		}
	}

	// The first line mentioning an error pattern is the signature used
	// to recognize the same failure recurring.
	var signature string
	if errorsDetected > 0 {
		for _, line := range strings.Split(lower, "\n") {
			if containsAny(line, errorPatterns) {
				signature = line
				break
			}
		}
	}

	hadProgress := filesChanged > 0 || tokensUsed > 1000

	c.loopHistory = append(c.loopHistory, LoopResult{
		Timestamp:      time.Now().UTC(),
		FilesChanged:   filesChanged,
		ErrorsDetected: errorsDetected,
		OutputLength:   len(content),
		TokensUsed:     tokensUsed,
		HadProgress:    hadProgress,
	})
	if len(c.loopHistory) > maxLoopHistory {
		c.loopHistory = c.loopHistory[1:]
	}

	if hadProgress {
		c.noProgressCount = 0
	} else {
		c.noProgressCount++
	}

	if signature != "" {
		if signature == c.lastErrorSignature {
			c.repeatedErrorCount++
		} else {
			c.repeatedErrorCount = 1
		}
		c.lastErrorSignature = signature
	} else {
		c.repeatedErrorCount = 0
		c.lastErrorSignature = ""
	}

	if c.noProgressCount >= noProgressThreshold {
		c.open(fmt.Sprintf("no progress for %d consecutive loops", c.noProgressCount))
		return true
	}
	if c.repeatedErrorCount >= repeatedErrorThreshold {
		c.open(fmt.Sprintf("same error repeated %d times", c.repeatedErrorCount))
		return true
	}
	return false
}

func (c *CircuitBreaker) open(reason string) {
	c.state = CircuitOpen
	now := time.Now().UTC()
	c.openedAt = &now
	c.openReason = reason
	log.Printf("[analytics] circuit breaker opened: %s", reason)
}

// Reset closes the circuit and zeroes all counters.
func (c *CircuitBreaker) Reset() {
	c.state = CircuitClosed
	c.noProgressCount = 0
	c.repeatedErrorCount = 0
	c.lastErrorSignature = ""
	c.openedAt = nil
	c.openReason = ""
}

// CircuitBreakerState is the serializable breaker snapshot.
type CircuitBreakerState struct {
	State              CircuitState `json:"state"`
	NoProgressCount    int          `json:"no_progress_count"`
	RepeatedErrorCount int          `json:"repeated_error_count"`
	OpenedAt           *time.Time   `json:"opened_at,omitempty"`
	OpenReason         string       `json:"open_reason,omitempty"`
	LoopHistoryCount   int          `json:"loop_history_count"`
}

// Snapshot returns a point-in-time copy of the breaker state.
func (c *CircuitBreaker) Snapshot() CircuitBreakerState {
	s := CircuitBreakerState{
		State:              c.state,
		NoProgressCount:    c.noProgressCount,
		RepeatedErrorCount: c.repeatedErrorCount,
		OpenReason:         c.openReason,
		LoopHistoryCount:   len(c.loopHistory),
	}
	if c.openedAt != nil {
		t := *c.openedAt
		s.OpenedAt = &t
	}
	return s
}
