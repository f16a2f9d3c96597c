// Package analytics interprets the event stream: completion detection,
// stagnation circuit breaking, and API rate accounting. It reads from
// the bus and never writes back to the store.
package analytics

import (
	"encoding/json"
	"strings"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// ExitReason explains why a session looks finished or stuck.
type ExitReason int

const (
	ExitTaskListComplete ExitReason = iota
	ExitCompletionSignals
	ExitStrongCompletion
	ExitProjectComplete
	ExitTestSaturation
	ExitUserRequested
	ExitCircuitBreakerOpen
	ExitRateLimitExceeded
	ExitAPILimitReached
)

var exitReasonNames = map[ExitReason]string{
	ExitTaskListComplete:   "task_list_complete",
	ExitCompletionSignals:  "completion_signals",
	ExitStrongCompletion:   "strong_completion",
	ExitProjectComplete:    "project_complete",
	ExitTestSaturation:     "test_saturation",
	ExitUserRequested:      "user_requested",
	ExitCircuitBreakerOpen: "circuit_breaker_open",
	ExitRateLimitExceeded:  "rate_limit_exceeded",
	ExitAPILimitReached:    "api_limit_reached",
}

func (r ExitReason) String() string {
	if s, ok := exitReasonNames[r]; ok {
		return s
	}
	return "unknown"
}

func (r ExitReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// donePatterns are completion phrases counted toward a graceful exit.
var donePatterns = []string{
	"all tasks completed",
	"all tasks complete",
	"implementation complete",
	"feature complete",
	"work complete",
	"all done",
	"everything is done",
	"finished implementing",
	"successfully completed",
	"task completed successfully",
	"no more tasks",
	"nothing left to do",
}

// strongCompletionPatterns trigger an immediate exit signal.
var strongCompletionPatterns = []string{
	"all requirements have been met",
	"the implementation is complete",
	"all features are working",
	"tests are passing",
	"ready for review",
	"ready to merge",
	"pr ready",
	"pull request ready",
}

// testOnlyPatterns mark activity that is just re-running tests.
var testOnlyPatterns = []string{
	"running tests",
	"test passed",
	"tests passed",
	"all tests pass",
	"pytest",
	"cargo test",
	"npm test",
	"jest",
	"vitest",
}

// progressWords exempt a test mention from test-only counting.
var progressWords = []string{"implement", "fix", "add", "create"}

const (
	maxRecentContent        = 20
	doneThreshold           = 2
	testSaturationThreshold = 3
	completionThreshold     = 2
)

// ExitDetector tracks completion signals for one session. Not safe for
// concurrent use; the manager serializes access.
type ExitDetector struct {
	doneSignalCount          int
	testOnlyCount            int
	completionIndicatorCount int
	recentContent            []string
}

// NewExitDetector returns a detector with zeroed counters.
func NewExitDetector() *ExitDetector {
	return &ExitDetector{}
}

// AnalyzeEvent folds one event into the detection state. The boolean
// reports whether an exit condition was met.
func (d *ExitDetector) AnalyzeEvent(e *session.Event) (ExitReason, bool) {
	content := strings.ToLower(e.Content)

	if content != "" {
		d.recentContent = append(d.recentContent, content)
		if len(d.recentContent) > maxRecentContent {
			d.recentContent = d.recentContent[1:]
		}
	}

	if containsAny(content, donePatterns) {
		d.doneSignalCount++
	} else {
		d.doneSignalCount = 0
	}

	if containsAny(content, strongCompletionPatterns) {
		d.completionIndicatorCount++
		// Strong signals end the session without waiting for a streak.
		return ExitStrongCompletion, true
	}

	if containsAny(content, testOnlyPatterns) && !containsAny(content, progressWords) {
		d.testOnlyCount++
	} else if content != "" {
		d.testOnlyCount = 0
	}

	if d.doneSignalCount >= doneThreshold {
		return ExitCompletionSignals, true
	}
	if d.completionIndicatorCount >= completionThreshold {
		return ExitProjectComplete, true
	}
	if d.testOnlyCount >= testSaturationThreshold {
		return ExitTestSaturation, true
	}
	return 0, false
}

// Reset clears all counters and the content history.
func (d *ExitDetector) Reset() {
	*d = ExitDetector{}
}

// ExitDetectorState is the serializable detector snapshot.
type ExitDetectorState struct {
	DoneSignalCount          int `json:"done_signal_count"`
	TestOnlyCount            int `json:"test_only_count"`
	CompletionIndicatorCount int `json:"completion_indicator_count"`
	RecentContentCount       int `json:"recent_content_count"`
}

// State returns a point-in-time copy of the counters.
func (d *ExitDetector) State() ExitDetectorState {
	return ExitDetectorState{
		DoneSignalCount:          d.doneSignalCount,
		TestOnlyCount:            d.testOnlyCount,
		CompletionIndicatorCount: d.completionIndicatorCount,
		RecentContentCount:       len(d.recentContent),
	}
}

// IsTaskListComplete reports whether the text holds a Markdown task
// list with every checkbox checked. Text without checkboxes is not
// complete.
func IsTaskListComplete(content string) bool {
	hasCheckboxes := false
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "- [ ]") || strings.HasPrefix(t, "* [ ]"):
			return false
		case strings.HasPrefix(t, "- [x]") || strings.HasPrefix(t, "- [X]") ||
			strings.HasPrefix(t, "* [x]") || strings.HasPrefix(t, "* [X]"):
			hasCheckboxes = true
		}
	}
	return hasCheckboxes
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
