package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/robertcprice/agent-monitor/internal/analytics"
	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/session"
	"github.com/robertcprice/agent-monitor/internal/status"
	"github.com/robertcprice/agent-monitor/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	manager := analytics.NewManager(100)
	reporter := status.NewReporter(st, manager, "test", time.Now())
	return NewServer("127.0.0.1", 0, st, bus.New(), manager, reporter, "test"), st
}

func seedSession(t *testing.T, st *store.Store, id string, kind session.AgentKind, stat session.Status) {
	t.Helper()
	now := time.Now().UTC()
	err := st.UpsertSession(&session.Session{
		ID:             id,
		AgentKind:      kind,
		ProjectPath:    "/work/" + id,
		Status:         stat,
		StartedAt:      now,
		LastActivityAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
}

func seedEvent(t *testing.T, st *store.Store, sessionID, content string, ts time.Time) *session.Event {
	t.Helper()
	e := &session.Event{
		ID:        session.StableEventID(sessionID, ts, session.EventResponseGenerated, content),
		SessionID: sessionID,
		EventKind: session.EventResponseGenerated,
		Timestamp: ts,
		AgentKind: session.KindClaude,
		Content:   content,
	}
	if err := st.InsertEvent(e); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	return e
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	cors(mux).ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "s1", session.KindClaude, session.StatusActive)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["database_ok"] != true {
		t.Error("database_ok should be true")
	}
	if body["active_sessions"].(float64) != 1 {
		t.Errorf("active_sessions = %v, want 1", body["active_sessions"])
	}
}

func TestLegacySessionStub(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/sessions/whatever", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestLegacySessionsActiveOnly(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "a", session.KindClaude, session.StatusActive)
	seedSession(t, st, "b", session.KindClaude, session.StatusCompleted)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions?active_only=true", "")
	var sessions []*session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "a" {
		t.Errorf("got %d sessions, want only the active one", len(sessions))
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodOptions, "/api/sessions", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing permissive CORS header")
	}
}

func TestPrivacyFilterAppliedToSessions(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "visible", session.KindClaude, session.StatusActive)
	seedSession(t, st, "hidden", session.KindClaude, session.StatusActive)
	s.SetPrivacyFilter(&session.PrivacyFilter{
		MaskProjectPaths: true,
		BlockedPaths:     []string{"/work/hidden"},
	})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions", "")
	var sessions []*session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want blocked path excluded", len(sessions))
	}
	if sessions[0].ProjectPath != "visible" {
		t.Errorf("project_path = %q, want masked to base name", sessions[0].ProjectPath)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/sessions/hidden", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("blocked session lookup status = %d, want 404", rec.Code)
	}
}

type v1Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    struct {
		RequestID string `json:"request_id"`
		Version   string `json:"version"`
	} `json:"meta"`
}

type pageData struct {
	Items      json.RawMessage `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

func decodeV1(t *testing.T, rec *httptest.ResponseRecorder) v1Response {
	t.Helper()
	var resp v1Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode v1 envelope: %v", err)
	}
	if resp.Meta.RequestID == "" {
		t.Error("meta.request_id missing")
	}
	return resp
}

func TestPaginationLaw(t *testing.T) {
	s, st := newTestServer(t)
	for i := 0; i < 23; i++ {
		seedSession(t, st, fmt.Sprintf("s%02d", i), session.KindClaude, session.StatusActive)
	}

	perPage := 10
	var collected int
	var total, totalPages int
	for page := 1; ; page++ {
		rec := doRequest(t, s, http.MethodGet,
			fmt.Sprintf("/api/v1/sessions?page=%d&per_page=%d", page, perPage), "")
		resp := decodeV1(t, rec)
		var pd pageData
		if err := json.Unmarshal(resp.Data, &pd); err != nil {
			t.Fatalf("decode page: %v", err)
		}
		var items []*session.Session
		if err := json.Unmarshal(pd.Items, &items); err != nil {
			t.Fatalf("decode items: %v", err)
		}
		collected += len(items)
		total, totalPages = pd.Total, pd.TotalPages
		if page >= pd.TotalPages {
			break
		}
	}
	if collected != total {
		t.Errorf("sum of items over pages = %d, want total %d", collected, total)
	}
	if want := (total + perPage - 1) / perPage; totalPages != want {
		t.Errorf("total_pages = %d, want ceil(%d/%d) = %d", totalPages, total, perPage, want)
	}
}

func TestV1SessionFilters(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "c1", session.KindClaude, session.StatusActive)
	seedSession(t, st, "a1", session.KindAider, session.StatusActive)
	seedSession(t, st, "c2", session.KindClaude, session.StatusCompleted)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/sessions?agent_type=claude_code&active_only=true", "")
	resp := decodeV1(t, rec)
	var pd pageData
	json.Unmarshal(resp.Data, &pd)
	if pd.Total != 1 {
		t.Errorf("filtered total = %d, want 1", pd.Total)
	}
}

func TestV1SessionNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/sessions/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	resp := decodeV1(t, rec)
	if resp.Success || resp.Error == "" {
		t.Error("error envelope should have success=false and an error message")
	}
}

func TestV1EventTimeFilters(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "s1", session.KindClaude, session.StatusActive)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	seedEvent(t, st, "s1", "early", base)
	seedEvent(t, st, "s1", "late", base.Add(2*time.Hour))

	since := base.Add(time.Hour).Format(time.RFC3339)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/events?since="+since, "")
	resp := decodeV1(t, rec)
	var pd pageData
	json.Unmarshal(resp.Data, &pd)
	if pd.Total != 1 {
		t.Errorf("total = %d, want 1 event after since", pd.Total)
	}
}

func TestExportCSVEscaping(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "s1", session.KindClaude, session.StatusActive)
	seedEvent(t, st, "s1", "a, b\nc", time.Now().UTC())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/export?format=csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "a; b c") {
		t.Errorf("csv preview not escaped, body:\n%s", body)
	}
	if strings.Contains(body, "a, b\nc") {
		t.Error("raw content leaked into csv")
	}
}

func TestExportJSONL(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "s1", session.KindClaude, session.StatusActive)
	base := time.Now().UTC()
	seedEvent(t, st, "s1", "one", base)
	seedEvent(t, st, "s1", "two", base.Add(time.Second))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/export?format=jsonl", "")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d jsonl lines, want 2", len(lines))
	}
	for _, line := range lines {
		var e session.Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Errorf("line is not valid JSON: %v", err)
		}
	}
}

func TestCSVPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 150) + ",end"
	got := csvPreview(long)
	if len(got) != 100 {
		t.Errorf("preview length = %d, want 100", len(got))
	}
	if strings.Contains(got, ",") {
		t.Error("preview should not contain commas")
	}

	multibyte := strings.Repeat("é", 150)
	got = csvPreview(multibyte)
	if !utf8.ValidString(got) {
		t.Error("preview split a multi-byte rune")
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("preview rune count = %d, want 100", n)
	}
}

func TestRootServesDashboard(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<title>Agent Monitor</title>") {
		t.Error("root did not serve the dashboard page")
	}
	if strings.Contains(body, "<pre>") {
		t.Error("root looks like a directory listing")
	}
}

func TestWebSocketInitialAndPing(t *testing.T) {
	s, st := newTestServer(t)
	seedSession(t, st, "s1", session.KindClaude, session.StatusActive)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var initial wsFrame
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if initial.Type != "initial" {
		t.Errorf("first frame type = %q, want initial", initial.Type)
	}
	if len(initial.Sessions) != 1 {
		t.Errorf("initial frame carries %d sessions, want 1", len(initial.Sessions))
	}
	if initial.Metrics == nil {
		t.Error("initial frame missing metrics")
	}

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong struct {
		Type string `json:"type"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != "pong" {
		t.Errorf("reply type = %q, want pong", pong.Type)
	}
}
