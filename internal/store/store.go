// Package store persists sessions and events in a single local SQLite
// database file.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width RFC 3339 variant (millisecond precision,
// always UTC) so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	// Rows written by other tooling may carry full RFC 3339.
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Store wraps the SQLite connection pool. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory, opens the database and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			agent_type TEXT NOT NULL,
			external_id TEXT NOT NULL,
			project_path TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'unknown',
			started_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			ended_at TEXT,
			duration_seconds REAL DEFAULT 0,
			message_count INTEGER DEFAULT 0,
			tool_call_count INTEGER DEFAULT 0,
			file_operations INTEGER DEFAULT 0,
			tokens_input INTEGER DEFAULT 0,
			tokens_output INTEGER DEFAULT 0,
			estimated_cost REAL DEFAULT 0,
			model_id TEXT,
			pid INTEGER,
			current_task TEXT,
			progress REAL DEFAULT 0,
			metadata_json TEXT DEFAULT '{}',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			content TEXT,
			working_directory TEXT,
			tool_name TEXT,
			file_path TEXT,
			tokens_input INTEGER,
			tokens_output INTEGER,
			error_message TEXT,
			raw_data_json TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_agent_type ON sessions(agent_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_id ON session_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON session_events(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSession inserts a session or updates its mutable subset.
// Immutable fields (id, agent_type, external_id, project_path,
// started_at) are never overwritten. Idempotent.
func (s *Store) UpsertSession(sess *session.Session) error {
	metadata := []byte("{}")
	if sess.Metadata != nil {
		var err error
		metadata, err = json.Marshal(sess.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	var endedAt any
	if sess.EndedAt != nil {
		endedAt = formatTime(*sess.EndedAt)
	}
	var pid any
	if sess.PID != 0 {
		pid = sess.PID
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (
			id, agent_type, external_id, project_path, status,
			started_at, last_activity_at, ended_at, duration_seconds,
			message_count, tool_call_count, file_operations,
			tokens_input, tokens_output, estimated_cost,
			model_id, pid, current_task, progress, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_activity_at = excluded.last_activity_at,
			ended_at = excluded.ended_at,
			duration_seconds = excluded.duration_seconds,
			message_count = excluded.message_count,
			tool_call_count = excluded.tool_call_count,
			file_operations = excluded.file_operations,
			tokens_input = excluded.tokens_input,
			tokens_output = excluded.tokens_output,
			estimated_cost = excluded.estimated_cost,
			current_task = excluded.current_task,
			progress = excluded.progress,
			metadata_json = excluded.metadata_json,
			updated_at = CURRENT_TIMESTAMP`,
		sess.ID, sess.AgentKind.String(), sess.ExternalID, sess.ProjectPath,
		sess.Status.String(), formatTime(sess.StartedAt),
		formatTime(sess.LastActivityAt), endedAt, sess.DurationSeconds,
		sess.MessageCount, sess.ToolCallCount, sess.FileOperations,
		sess.TokensInput, sess.TokensOutput, sess.EstimatedCost,
		nullable(sess.ModelID), pid, nullable(sess.CurrentTask),
		sess.Progress, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", sess.ID, err)
	}
	return nil
}

// InsertEvent inserts an event, silently ignoring duplicate ids. This
// is the dedup contract that makes re-reading log tails safe.
func (s *Store) InsertEvent(e *session.Event) error {
	var rawData any
	if len(e.RawData) > 0 {
		rawData = string(e.RawData)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO session_events (
			id, session_id, event_type, timestamp, agent_type,
			content, working_directory, tool_name, file_path,
			tokens_input, tokens_output, error_message, raw_data_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.EventKind.String(), formatTime(e.Timestamp),
		e.AgentKind.String(), nullable(e.Content),
		nullable(e.WorkingDirectory), nullable(e.ToolName),
		nullable(e.FilePath), e.TokensInput, e.TokensOutput,
		nullable(e.ErrorMessage), rawData,
	)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}
	return nil
}

// GetSession returns the session with the given id, or nil if absent.
func (s *Store) GetSession(id string) (*session.Session, error) {
	rows, err := s.db.Query(sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSession(rows)
}

// GetActiveSessions returns active sessions newest-first.
func (s *Store) GetActiveSessions(limit int) ([]*session.Session, error) {
	return s.querySessions(sessionColumns+`
		FROM sessions
		WHERE status = 'active'
		ORDER BY last_activity_at DESC
		LIMIT ?`, limit)
}

// GetRecentSessions returns sessions with activity in the trailing
// window, newest-first.
func (s *Store) GetRecentSessions(hours int, limit int) ([]*session.Session, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	return s.querySessions(sessionColumns+`
		FROM sessions
		WHERE last_activity_at > ?
		ORDER BY last_activity_at DESC
		LIMIT ?`, cutoff, limit)
}

// GetSummaryMetrics aggregates session counters over the trailing
// window.
func (s *Store) GetSummaryMetrics(hours int) (*session.SummaryMetrics, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))

	var m session.SummaryMetrics
	var messages, tools sql.NullInt64
	var cost sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END),
			SUM(message_count),
			SUM(tool_call_count),
			SUM(estimated_cost)
		FROM sessions
		WHERE last_activity_at > ?`, cutoff,
	).Scan(&m.TotalSessions, &m.ActiveSessions, &messages, &tools, &cost)
	if err != nil {
		return nil, fmt.Errorf("summary metrics: %w", err)
	}
	m.TotalMessages = messages.Int64
	m.TotalTools = tools.Int64
	m.TotalCost = cost.Float64
	return &m, nil
}

// GetRecentEvents returns events across all sessions, newest-first.
func (s *Store) GetRecentEvents(limit int) ([]*session.Event, error) {
	return s.queryEvents(eventColumns+`
		FROM session_events
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
}

// GetSessionEvents returns a session's events, newest-first.
func (s *Store) GetSessionEvents(sessionID string, limit int) ([]*session.Event, error) {
	return s.queryEvents(eventColumns+`
		FROM session_events
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, sessionID, limit)
}

// GetEvent returns the event with the given id, or nil if absent.
func (s *Store) GetEvent(id string) (*session.Event, error) {
	rows, err := s.db.Query(eventColumns+` FROM session_events WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEvent(rows)
}

// CountEventsSince counts events with timestamps in the trailing
// window.
func (s *Store) CountEventsSince(hours int) (int64, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM session_events WHERE timestamp > ?`, cutoff,
	).Scan(&n)
	return n, err
}

// DeleteSessionsByKind removes all sessions of one agent kind along
// with their events, returning the number of sessions deleted.
func (s *Store) DeleteSessionsByKind(kind session.AgentKind) (int64, error) {
	_, err := s.db.Exec(`
		DELETE FROM session_events
		WHERE session_id IN (SELECT id FROM sessions WHERE agent_type = ?)`,
		kind.String())
	if err != nil {
		return 0, fmt.Errorf("deleting events for %s: %w", kind, err)
	}

	res, err := s.db.Exec(`DELETE FROM sessions WHERE agent_type = ?`, kind.String())
	if err != nil {
		return 0, fmt.Errorf("deleting sessions for %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// ClearAll removes every session and event.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM session_events`); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM sessions`)
	return err
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

const sessionColumns = `SELECT id, agent_type, external_id, project_path, status,
	started_at, last_activity_at, ended_at, duration_seconds,
	message_count, tool_call_count, file_operations,
	tokens_input, tokens_output, estimated_cost,
	model_id, pid, current_task, progress, metadata_json`

const eventColumns = `SELECT id, session_id, event_type, timestamp, agent_type,
	content, working_directory, tool_name, file_path,
	tokens_input, tokens_output, error_message, raw_data_json`

func (s *Store) querySessions(query string, args ...any) ([]*session.Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) queryEvents(query string, args ...any) ([]*session.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSession(rows *sql.Rows) (*session.Session, error) {
	var (
		sess                           session.Session
		agentType, status              string
		startedAt, lastActivity        string
		endedAt, modelID, currentTask  sql.NullString
		pid                            sql.NullInt64
		metadataJSON                   string
	)
	err := rows.Scan(
		&sess.ID, &agentType, &sess.ExternalID, &sess.ProjectPath, &status,
		&startedAt, &lastActivity, &endedAt, &sess.DurationSeconds,
		&sess.MessageCount, &sess.ToolCallCount, &sess.FileOperations,
		&sess.TokensInput, &sess.TokensOutput, &sess.EstimatedCost,
		&modelID, &pid, &currentTask, &sess.Progress, &metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.AgentKind = session.ParseAgentKind(agentType)
	sess.Status = session.ParseStatus(status)
	sess.StartedAt = parseTime(startedAt)
	sess.LastActivityAt = parseTime(lastActivity)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		sess.EndedAt = &t
	}
	sess.ModelID = modelID.String
	if pid.Valid {
		sess.PID = int32(pid.Int64)
	}
	sess.CurrentTask = currentTask.String
	if metadataJSON != "" && metadataJSON != "{}" {
		_ = json.Unmarshal([]byte(metadataJSON), &sess.Metadata)
	}
	return &sess, nil
}

func scanEvent(rows *sql.Rows) (*session.Event, error) {
	var (
		e                       session.Event
		eventType, agentType    string
		timestamp               string
		content, workingDir     sql.NullString
		toolName, filePath      sql.NullString
		errorMessage, rawData   sql.NullString
		tokensIn, tokensOut     sql.NullInt64
	)
	err := rows.Scan(
		&e.ID, &e.SessionID, &eventType, &timestamp, &agentType,
		&content, &workingDir, &toolName, &filePath,
		&tokensIn, &tokensOut, &errorMessage, &rawData,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	e.EventKind = session.ParseEventKind(eventType)
	e.AgentKind = session.ParseAgentKind(agentType)
	e.Timestamp = parseTime(timestamp)
	e.Content = content.String
	e.WorkingDirectory = workingDir.String
	e.ToolName = toolName.String
	e.FilePath = filePath.String
	if tokensIn.Valid {
		v := tokensIn.Int64
		e.TokensInput = &v
	}
	if tokensOut.Valid {
		v := tokensOut.Int64
		e.TokensOutput = &v
	}
	e.ErrorMessage = errorMessage.String
	if rawData.Valid && rawData.String != "" {
		e.RawData = json.RawMessage(rawData.String)
	}
	return &e, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
