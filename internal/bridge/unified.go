// Package bridge speaks a line-delimited tagged-union protocol to one
// external terminal-integration consumer over a local socket.
package bridge

import (
	"encoding/json"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// TokenUsage is the token block shared with the external consumer.
type TokenUsage struct {
	InputTokens      int64  `json:"input_tokens"`
	OutputTokens     int64  `json:"output_tokens"`
	CacheReadTokens  *int64 `json:"cache_read_tokens"`
	CacheWriteTokens *int64 `json:"cache_write_tokens"`
}

// UnifiedSessionState is the cross-system session shape.
type UnifiedSessionState struct {
	ID            string                     `json:"id"`
	AgentType     string                     `json:"agent_type"`
	ProjectPath   string                     `json:"project_path"`
	Status        string                     `json:"status"`
	StartedAt     time.Time                  `json:"started_at"`
	LastActivity  time.Time                  `json:"last_activity"`
	MessageCount  int64                      `json:"message_count"`
	ToolCallCount int64                      `json:"tool_call_count"`
	Tokens        TokenUsage                 `json:"tokens"`
	EstimatedCost float64                    `json:"estimated_cost"`
	ModelID       string                     `json:"model_id,omitempty"`
	TerminalID    string                     `json:"terminal_id,omitempty"`
	Metadata      map[string]json.RawMessage `json:"metadata,omitempty"`
}

// UnifiedSession converts a session to the wire shape.
func UnifiedSession(s *session.Session) UnifiedSessionState {
	return UnifiedSessionState{
		ID:            s.ID,
		AgentType:     s.AgentKind.String(),
		ProjectPath:   s.ProjectPath,
		Status:        s.Status.String(),
		StartedAt:     s.StartedAt,
		LastActivity:  s.LastActivityAt,
		MessageCount:  s.MessageCount,
		ToolCallCount: s.ToolCallCount,
		Tokens: TokenUsage{
			InputTokens:  s.TokensInput,
			OutputTokens: s.TokensOutput,
		},
		EstimatedCost: s.EstimatedCost,
		ModelID:       s.ModelID,
		TerminalID:    s.ExternalID,
		Metadata:      s.Metadata,
	}
}

// UnifiedAgentEvent is the tagged event union. EventKind selects which
// of the optional fields are populated.
type UnifiedAgentEvent struct {
	EventKind string    `json:"event_kind"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	AgentType        string          `json:"agent_type,omitempty"`
	ProjectPath      string          `json:"project_path,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	ContentPreview   string          `json:"content_preview,omitempty"`
	Tokens           *TokenUsage     `json:"tokens,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	ToolInputPreview string          `json:"tool_input_preview,omitempty"`
	Success          *bool           `json:"success,omitempty"`
	DurationMs       *uint64         `json:"duration_ms,omitempty"`
	FilePath         string          `json:"file_path,omitempty"`
	LinesChanged     *int            `json:"lines_changed,omitempty"`
	ErrorType        string          `json:"error_type,omitempty"`
	Message          string          `json:"message,omitempty"`
	EventType        string          `json:"event_type,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// UnifiedEvent converts a stored event to the wire union.
func UnifiedEvent(e *session.Event) UnifiedAgentEvent {
	u := UnifiedAgentEvent{
		SessionID: e.SessionID,
		Timestamp: e.Timestamp,
	}
	switch e.EventKind {
	case session.EventSessionStart:
		u.EventKind = "SessionStarted"
		u.AgentType = e.AgentKind.String()
		u.ProjectPath = e.WorkingDirectory
	case session.EventSessionEnd:
		u.EventKind = "SessionEnded"
		u.Reason = "completed"
	case session.EventPromptReceived:
		u.EventKind = "PromptReceived"
		u.ContentPreview = e.Content
	case session.EventResponseGenerated:
		u.EventKind = "ResponseGenerated"
		u.ContentPreview = e.Content
		if e.TokensInput != nil {
			var out int64
			if e.TokensOutput != nil {
				out = *e.TokensOutput
			}
			u.Tokens = &TokenUsage{InputTokens: *e.TokensInput, OutputTokens: out}
		}
	case session.EventThinking:
		u.EventKind = "Thinking"
		u.ContentPreview = e.Content
	case session.EventToolStart:
		u.EventKind = "ToolStarted"
		u.ToolName = e.ToolName
		u.ToolInputPreview = e.Content
	case session.EventToolComplete, session.EventToolExecuted:
		u.EventKind = "ToolCompleted"
		u.ToolName = e.ToolName
		success := true
		u.Success = &success
	case session.EventFileRead:
		u.EventKind = "FileRead"
		u.FilePath = e.FilePath
	case session.EventFileModified:
		u.EventKind = "FileWritten"
		u.FilePath = e.FilePath
	case session.EventError:
		u.EventKind = "Error"
		u.ErrorType = "unknown"
		u.Message = e.ErrorMessage
	default:
		u.EventKind = "Custom"
		u.EventType = "custom"
		if len(e.RawData) > 0 {
			u.Data = e.RawData
		} else {
			u.Data = json.RawMessage(`{}`)
		}
	}
	return u
}

// Message is the top-level protocol union, tagged by MessageType.
type Message struct {
	MessageType string `json:"message_type"`

	Session *UnifiedSessionState `json:"session,omitempty"`
	Event   *UnifiedAgentEvent   `json:"event,omitempty"`
	// Pointer so an empty SessionsList still serializes as [].
	Sessions *[]UnifiedSessionState `json:"sessions,omitempty"`

	SessionID *string `json:"session_id,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
