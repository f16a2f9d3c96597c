// Package client provides HTTP and WebSocket clients for the agent
// monitor daemon. Types mirror the daemon wire protocol without
// importing daemon packages.
package client

import "time"

// Session statuses as serialized by the daemon.
const (
	StatusActive    = "active"
	StatusIdle      = "idle"
	StatusCompleted = "completed"
	StatusCrashed   = "crashed"
	StatusUnknown   = "unknown"
)

// Session mirrors the daemon's session shape.
type Session struct {
	ID              string     `json:"id"`
	AgentType       string     `json:"agent_type"`
	ExternalID      string     `json:"external_id"`
	ProjectPath     string     `json:"project_path"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	MessageCount    int64      `json:"message_count"`
	ToolCallCount   int64      `json:"tool_call_count"`
	TokensInput     int64      `json:"tokens_input"`
	TokensOutput    int64      `json:"tokens_output"`
	EstimatedCost   float64    `json:"estimated_cost"`
	ModelID         string     `json:"model_id,omitempty"`
	PID             int32      `json:"pid,omitempty"`
	CurrentTask     string     `json:"current_task,omitempty"`
	Progress        float64    `json:"progress"`
}

// Event mirrors the daemon's event shape.
type Event struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	AgentType    string    `json:"agent_type"`
	Content      string    `json:"content,omitempty"`
	ToolName     string    `json:"tool_name,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	TokensInput  *int64    `json:"tokens_input,omitempty"`
	TokensOutput *int64    `json:"tokens_output,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// SummaryMetrics mirrors /api/metrics/summary.
type SummaryMetrics struct {
	TotalSessions  int64   `json:"total_sessions"`
	ActiveSessions int64   `json:"active_sessions"`
	TotalMessages  int64   `json:"total_messages"`
	TotalTools     int64   `json:"total_tools"`
	TotalCost      float64 `json:"total_cost"`
}

// Health mirrors /health.
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	DatabaseOK     bool   `json:"database_ok"`
	ActiveSessions int64  `json:"active_sessions"`
	TotalEvents24h int64  `json:"total_events_24h"`
}

// Frame is the push envelope the daemon broadcasts on /api/ws.
type Frame struct {
	Type     string          `json:"type"`
	Sessions []*Session      `json:"sessions,omitempty"`
	Metrics  *SummaryMetrics `json:"metrics,omitempty"`
}
