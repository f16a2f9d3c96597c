package analytics

import (
	"time"
)

// RateLimiter is a fixed-window counter keyed by the current hour
// stamp. Not safe for concurrent use; the manager serializes access.
type RateLimiter struct {
	disabled        bool
	callsThisHour   int
	maxCallsPerHour int
	lastResetHour   string
	totalCalls      uint64
	tokensThisHour  int64

	// now is swappable so tests can cross hour boundaries.
	now func() time.Time
}

// NewRateLimiter returns a limiter allowing maxCallsPerHour within
// each wall-clock hour.
func NewRateLimiter(maxCallsPerHour int) *RateLimiter {
	r := &RateLimiter{
		maxCallsPerHour: maxCallsPerHour,
		now:             time.Now,
	}
	r.lastResetHour = r.hourStamp()
	return r
}

// NewUnlimitedRateLimiter returns a limiter that never refuses a call.
func NewUnlimitedRateLimiter() *RateLimiter {
	r := NewRateLimiter(int(^uint(0) >> 1))
	r.disabled = true
	return r
}

func (r *RateLimiter) hourStamp() string {
	return r.now().UTC().Format("2006010215")
}

func (r *RateLimiter) maybeResetHour() {
	current := r.hourStamp()
	if current != r.lastResetHour {
		r.callsThisHour = 0
		r.tokensThisHour = 0
		r.lastResetHour = current
	}
}

// CanMakeCall reports whether another call fits in the current window.
// Always true while disabled.
func (r *RateLimiter) CanMakeCall() bool {
	if r.disabled {
		return true
	}
	r.maybeResetHour()
	return r.callsThisHour < r.maxCallsPerHour
}

// RecordCall counts one call and its token usage against the window.
func (r *RateLimiter) RecordCall(tokens int64) {
	r.maybeResetHour()
	r.callsThisHour++
	r.totalCalls++
	r.tokensThisHour += tokens
}

// SetDisabled toggles enforcement. The effect is immediate.
func (r *RateLimiter) SetDisabled(disabled bool) {
	r.disabled = disabled
}

// IsDisabled reports whether enforcement is off.
func (r *RateLimiter) IsDisabled() bool {
	return r.disabled
}

// RemainingCalls returns how many calls are left in the window.
func (r *RateLimiter) RemainingCalls() int {
	r.maybeResetHour()
	if r.callsThisHour >= r.maxCallsPerHour {
		return 0
	}
	return r.maxCallsPerHour - r.callsThisHour
}

// SecondsUntilReset returns the seconds left until the next hour
// boundary.
func (r *RateLimiter) SecondsUntilReset() int64 {
	now := r.now().UTC()
	return int64((59-now.Minute())*60 + (60 - now.Second()))
}

// RateLimiterState is the serializable limiter snapshot.
type RateLimiterState struct {
	Disabled          bool   `json:"disabled"`
	CallsThisHour     int    `json:"calls_this_hour"`
	MaxCallsPerHour   int    `json:"max_calls_per_hour"`
	RemainingCalls    int    `json:"remaining_calls"`
	TotalCalls        uint64 `json:"total_calls"`
	TokensThisHour    int64  `json:"tokens_this_hour"`
	SecondsUntilReset int64  `json:"seconds_until_reset"`
}

// Snapshot returns a point-in-time copy of the limiter state.
func (r *RateLimiter) Snapshot() RateLimiterState {
	remaining := r.maxCallsPerHour - r.callsThisHour
	if remaining < 0 {
		remaining = 0
	}
	return RateLimiterState{
		Disabled:          r.disabled,
		CallsThisHour:     r.callsThisHour,
		MaxCallsPerHour:   r.maxCallsPerHour,
		RemainingCalls:    remaining,
		TotalCalls:        r.totalCalls,
		TokensThisHour:    r.tokensThisHour,
		SecondsUntilReset: r.SecondsUntilReset(),
	}
}
