package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robertcprice/agent-monitor/internal/session"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500

	// overFetchLimit bounds the rows pulled from the store before
	// in-process filtering and pagination.
	overFetchLimit = 1000

	csvPreviewLen = 100
)

// meta rides on every versioned response.
type meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Version   string    `json:"version"`
}

// envelope is the uniform v1 response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    meta   `json:"meta"`
}

func (s *Server) newMeta() meta {
	return meta{
		Timestamp: time.Now().UTC(),
		RequestID: uuid.NewString(),
		Version:   s.version,
	}
}

func (s *Server) writeV1(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data, Meta: s.newMeta()})
}

func (s *Server) writeV1Error(w http.ResponseWriter, statusCode int, msg string) {
	writeJSON(w, statusCode, envelope{Success: false, Error: msg, Meta: s.newMeta()})
}

// pageEnvelope is the pagination shape nested inside Data.
type pageEnvelope struct {
	Items      any `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// paginate slices items after filtering. total_pages is ceil(total /
// per_page); an out-of-range page yields an empty items slice.
func paginate[T any](items []T, page, perPage int) pageEnvelope {
	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return pageEnvelope{
		Items:      items[start:end],
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}

func pageParams(r *http.Request) (page, perPage int) {
	page = queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage = queryInt(r, "per_page", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (s *Server) handleV1Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.GetRecentSessions(defaultHoursWindow, overFetchLimit)
	if err != nil {
		s.writeV1Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	sessions = s.filter.FilterSlice(sessions)

	q := r.URL.Query()
	agentType := q.Get("agent_type")
	statusFilter := q.Get("status")
	project := q.Get("project")
	activeOnly := queryBool(r, "active_only")

	filtered := sessions[:0]
	for _, sess := range sessions {
		if agentType != "" && sess.AgentKind.String() != agentType {
			continue
		}
		if statusFilter != "" && sess.Status.String() != statusFilter {
			continue
		}
		if project != "" && !strings.Contains(sess.ProjectPath, project) {
			continue
		}
		if activeOnly && sess.Status != session.StatusActive {
			continue
		}
		filtered = append(filtered, sess)
	}

	page, perPage := pageParams(r)
	s.writeV1(w, http.StatusOK, paginate(filtered, page, perPage))
}

func (s *Server) handleV1Session(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeV1Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil || !s.filter.IsAllowed(sess.ProjectPath) {
		s.writeV1Error(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeV1(w, http.StatusOK, s.filter.Apply(sess))
}

func (s *Server) handleV1SessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.GetSessionEvents(r.PathValue("id"), overFetchLimit)
	if err != nil {
		s.writeV1Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	page, perPage := pageParams(r)
	s.writeV1(w, http.StatusOK, paginate(events, page, perPage))
}

// eventFilter captures the shared event query parameters.
type eventFilter struct {
	sessionID string
	eventType string
	since     *time.Time
	until     *time.Time
}

func parseEventFilter(r *http.Request) (eventFilter, error) {
	var f eventFilter
	q := r.URL.Query()
	f.sessionID = q.Get("session_id")
	f.eventType = q.Get("event_type")
	for _, key := range []string{"since", "until"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: %v", key, err)
		}
		if key == "since" {
			f.since = &t
		} else {
			f.until = &t
		}
	}
	return f, nil
}

func (f *eventFilter) match(e *session.Event) bool {
	if f.sessionID != "" && e.SessionID != f.sessionID {
		return false
	}
	if f.eventType != "" && e.EventKind.String() != f.eventType {
		return false
	}
	if f.since != nil && e.Timestamp.Before(*f.since) {
		return false
	}
	if f.until != nil && e.Timestamp.After(*f.until) {
		return false
	}
	return true
}

func (s *Server) filteredEvents(r *http.Request) ([]*session.Event, error) {
	filter, err := parseEventFilter(r)
	if err != nil {
		return nil, err
	}
	events, err := s.store.GetRecentEvents(overFetchLimit)
	if err != nil {
		return nil, err
	}
	filtered := events[:0]
	for _, e := range events {
		if filter.match(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *Server) handleV1Events(w http.ResponseWriter, r *http.Request) {
	filtered, err := s.filteredEvents(r)
	if err != nil {
		s.writeV1Error(w, http.StatusBadRequest, err.Error())
		return
	}
	page, perPage := pageParams(r)
	s.writeV1(w, http.StatusOK, paginate(filtered, page, perPage))
}

func (s *Server) handleV1Event(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEvent(r.PathValue("id"))
	if err != nil {
		s.writeV1Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if e == nil {
		s.writeV1Error(w, http.StatusNotFound, "event not found")
		return
	}
	s.writeV1(w, http.StatusOK, e)
}

func (s *Server) handleV1Export(w http.ResponseWriter, r *http.Request) {
	events, err := s.filteredEvents(r)
	if err != nil {
		s.writeV1Error(w, http.StatusBadRequest, err.Error())
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, events)
	case "jsonl":
		w.Header().Set("Content-Type", "application/jsonl")
		enc := json.NewEncoder(w)
		for _, e := range events {
			enc.Encode(e)
		}
	case "csv":
		s.exportCSV(w, events)
	default:
		s.writeV1Error(w, http.StatusBadRequest, "unsupported format: "+format)
	}
}

func (s *Server) exportCSV(w http.ResponseWriter, events []*session.Event) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "session_id", "event_type", "timestamp", "agent_type", "tool_name", "content_preview"})
	for _, e := range events {
		cw.Write([]string{
			e.ID,
			e.SessionID,
			e.EventKind.String(),
			e.Timestamp.UTC().Format(time.RFC3339),
			e.AgentKind.String(),
			e.ToolName,
			csvPreview(e.Content),
		})
	}
	cw.Flush()
}

// csvPreview flattens content onto one cell: commas become semicolons,
// newlines become spaces, and the result is capped at 100 characters.
// The cap counts runes so a multi-byte character is never split.
func csvPreview(content string) string {
	content = strings.ReplaceAll(content, ",", ";")
	content = strings.ReplaceAll(content, "\r\n", " ")
	content = strings.ReplaceAll(content, "\n", " ")
	if runes := []rune(content); len(runes) > csvPreviewLen {
		content = string(runes[:csvPreviewLen])
	}
	return content
}

func (s *Server) handleV1ClearSessions(w http.ResponseWriter, r *http.Request) {
	agentType := r.URL.Query().Get("agent_type")
	if agentType == "" {
		if err := s.store.ClearAll(); err != nil {
			s.writeV1Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeV1(w, http.StatusOK, map[string]any{"cleared": "all"})
		return
	}

	n, err := s.store.DeleteSessionsByKind(session.ParseAgentKind(agentType))
	if err != nil {
		s.writeV1Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeV1(w, http.StatusOK, map[string]any{"cleared": agentType, "sessions_deleted": n})
}

func (s *Server) handleV1ListWebhooks(w http.ResponseWriter, r *http.Request) {
	s.writeV1(w, http.StatusOK, s.webhooks.List())
}

func (s *Server) handleV1CreateWebhook(w http.ResponseWriter, r *http.Request) {
	// An absent "enabled" means on; only an explicit false disables.
	reg := WebhookRegistration{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		s.writeV1Error(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if reg.URL == "" {
		s.writeV1Error(w, http.StatusBadRequest, "url is required")
		return
	}
	if len(reg.Events) == 0 {
		reg.Events = []string{"*"}
	}
	s.writeV1(w, http.StatusCreated, s.webhooks.Register(&reg))
}

func (s *Server) handleV1DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.webhooks.Remove(r.PathValue("id")) {
		s.writeV1Error(w, http.StatusNotFound, "webhook not found")
		return
	}
	s.writeV1(w, http.StatusOK, map[string]bool{"deleted": true})
}
