package session

import (
	"encoding/json"
	"time"
)

// AgentKind identifies the family of AI tool a session belongs to.
type AgentKind int

const (
	KindClaude AgentKind = iota
	KindCursor
	KindAider
	KindGemini
	KindCodex
	KindCustom
)

var agentKindNames = map[AgentKind]string{
	KindClaude: "claude_code",
	KindCursor: "cursor",
	KindAider:  "aider",
	KindGemini: "gemini",
	KindCodex:  "codex",
	KindCustom: "custom",
}

var agentKindFromName = map[string]AgentKind{
	"claude_code": KindClaude,
	"cursor":      KindCursor,
	"aider":       KindAider,
	"gemini":      KindGemini,
	"codex":       KindCodex,
	"custom":      KindCustom,
}

func (k AgentKind) String() string {
	if s, ok := agentKindNames[k]; ok {
		return s
	}
	return "custom"
}

// ParseAgentKind maps a wire name back to an AgentKind. Unknown names
// map to KindCustom.
func ParseAgentKind(s string) AgentKind {
	if k, ok := agentKindFromName[s]; ok {
		return k
	}
	return KindCustom
}

func (k AgentKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *AgentKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseAgentKind(s)
	return nil
}

// Status is the coarse lifecycle state of a session.
type Status int

const (
	StatusActive Status = iota
	StatusIdle
	StatusCompleted
	StatusCrashed
	StatusUnknown
)

var statusNames = map[Status]string{
	StatusActive:    "active",
	StatusIdle:      "idle",
	StatusCompleted: "completed",
	StatusCrashed:   "crashed",
	StatusUnknown:   "unknown",
}

var statusFromName = map[string]Status{
	"active":    StatusActive,
	"idle":      StatusIdle,
	"completed": StatusCompleted,
	"crashed":   StatusCrashed,
	"unknown":   StatusUnknown,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStatus maps a wire name back to a Status. Unknown names map to
// StatusUnknown.
func ParseStatus(s string) Status {
	if v, ok := statusFromName[s]; ok {
		return v
	}
	return StatusUnknown
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = ParseStatus(n)
	return nil
}

// EventKind classifies a single observed action within a session.
type EventKind int

const (
	EventSessionStart EventKind = iota
	EventSessionEnd
	EventPromptReceived
	EventResponseGenerated
	EventThinking
	EventToolStart
	EventToolComplete
	EventToolExecuted
	EventFileRead
	EventFileModified
	EventError
	EventCustom
)

var eventKindNames = map[EventKind]string{
	EventSessionStart:      "session_start",
	EventSessionEnd:        "session_end",
	EventPromptReceived:    "prompt_received",
	EventResponseGenerated: "response_generated",
	EventThinking:          "thinking",
	EventToolStart:         "tool_start",
	EventToolComplete:      "tool_complete",
	EventToolExecuted:      "tool_executed",
	EventFileRead:          "file_read",
	EventFileModified:      "file_modified",
	EventError:             "error",
	EventCustom:            "custom",
}

var eventKindFromName = map[string]EventKind{
	"session_start":      EventSessionStart,
	"session_end":        EventSessionEnd,
	"prompt_received":    EventPromptReceived,
	"response_generated": EventResponseGenerated,
	"thinking":           EventThinking,
	"tool_start":         EventToolStart,
	"tool_complete":      EventToolComplete,
	"tool_executed":      EventToolExecuted,
	"file_read":          EventFileRead,
	"file_modified":      EventFileModified,
	"error":              EventError,
	"custom":             EventCustom,
}

func (e EventKind) String() string {
	if s, ok := eventKindNames[e]; ok {
		return s
	}
	return "custom"
}

// ParseEventKind maps a wire name back to an EventKind. Unknown names
// map to EventCustom.
func ParseEventKind(s string) EventKind {
	if k, ok := eventKindFromName[s]; ok {
		return k
	}
	return EventCustom
}

func (e EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*e = ParseEventKind(s)
	return nil
}

// Per-token pricing used to derive estimated_cost. Global design
// constants; adapters recompute cost from totals after every token
// update.
const (
	CostPerInputToken  = 3e-6
	CostPerOutputToken = 15e-6
)

// EstimatedCost applies the pricing constants to token totals.
func EstimatedCost(tokensIn, tokensOut int64) float64 {
	return float64(tokensIn)*CostPerInputToken + float64(tokensOut)*CostPerOutputToken
}

// Session is one reconstructed run of an AI tool against one project
// directory.
type Session struct {
	ID              string                     `json:"id"`
	AgentKind       AgentKind                  `json:"agent_type"`
	ExternalID      string                     `json:"external_id"`
	ProjectPath     string                     `json:"project_path"`
	Status          Status                     `json:"status"`
	StartedAt       time.Time                  `json:"started_at"`
	LastActivityAt  time.Time                  `json:"last_activity_at"`
	EndedAt         *time.Time                 `json:"ended_at,omitempty"`
	DurationSeconds float64                    `json:"duration_seconds"`
	MessageCount    int64                      `json:"message_count"`
	ToolCallCount   int64                      `json:"tool_call_count"`
	FileOperations  int64                      `json:"file_operations"`
	TokensInput     int64                      `json:"tokens_input"`
	TokensOutput    int64                      `json:"tokens_output"`
	EstimatedCost   float64                    `json:"estimated_cost"`
	ModelID         string                     `json:"model_id,omitempty"`
	PID             int32                      `json:"pid,omitempty"`
	CurrentTask     string                     `json:"current_task,omitempty"`
	Progress        float64                    `json:"progress"`
	Metadata        map[string]json.RawMessage `json:"metadata,omitempty"`
}

// Touch advances last_activity_at and the derived duration. Timestamps
// never move backwards.
func (s *Session) Touch(t time.Time) {
	if t.After(s.LastActivityAt) {
		s.LastActivityAt = t
	}
	if !s.StartedAt.IsZero() {
		s.DurationSeconds = s.LastActivityAt.Sub(s.StartedAt).Seconds()
	}
}

// AddTokens accumulates token counters and recomputes the cost from
// the running totals.
func (s *Session) AddTokens(in, out int64) {
	s.TokensInput += in
	s.TokensOutput += out
	s.EstimatedCost = EstimatedCost(s.TokensInput, s.TokensOutput)
}

// Clone returns a deep copy of the Session, duplicating pointer and
// map fields so the copy can be mutated independently of the original.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if len(s.Metadata) > 0 {
		c.Metadata = make(map[string]json.RawMessage, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// SetMeta stores a string value in the metadata map, allocating it on
// first use.
func (s *Session) SetMeta(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]json.RawMessage)
	}
	data, _ := json.Marshal(value)
	s.Metadata[key] = data
}

// Event is a single timestamped observation attached to a session.
type Event struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	EventKind        EventKind       `json:"event_type"`
	Timestamp        time.Time       `json:"timestamp"`
	AgentKind        AgentKind       `json:"agent_type"`
	Content          string          `json:"content,omitempty"`
	WorkingDirectory string          `json:"working_directory,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	FilePath         string          `json:"file_path,omitempty"`
	TokensInput      *int64          `json:"tokens_input,omitempty"`
	TokensOutput     *int64          `json:"tokens_output,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	RawData          json.RawMessage `json:"raw_data,omitempty"`
}

// SummaryMetrics aggregates activity over a trailing time window.
type SummaryMetrics struct {
	TotalSessions  int64   `json:"total_sessions"`
	ActiveSessions int64   `json:"active_sessions"`
	TotalMessages  int64   `json:"total_messages"`
	TotalTools     int64   `json:"total_tools"`
	TotalCost      float64 `json:"total_cost"`
}
