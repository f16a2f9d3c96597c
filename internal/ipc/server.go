// Package ipc serves line-delimited JSON queries over a local unix
// socket. It is the cheapest query path for shell hooks and the TUI.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/robertcprice/agent-monitor/internal/adapter"
	"github.com/robertcprice/agent-monitor/internal/session"
	"github.com/robertcprice/agent-monitor/internal/store"
)

const (
	maxActiveSessions = 100
	metricsWindow     = 24
	recentEventLimit  = 50
)

// Server accepts connections on a unix socket and answers one JSON
// request per line.
type Server struct {
	path  string
	store *store.Store
	sink  *adapter.Sink

	ln     net.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a server bound to the socket path. The sink lets
// hook_event requests feed the same pipeline the adapters use.
func NewServer(path string, st *store.Store, sink *adapter.Sink) *Server {
	return &Server{path: path, store: st, sink: sink}
}

// Start removes any stale socket file, binds, and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket %s: %w", s.path, err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	s.ln = ln

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.acceptLoop(ctx)
	log.Printf("[ipc] listening on %s", s.path)
	return nil
}

// Stop closes the listener, waits for in-flight connections, and
// removes the socket file.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[ipc] accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handleConn(ctx, conn)
		}()
	}
}

// request is the envelope every IPC message shares. Action-specific
// fields ride alongside and are decoded on demand.
type request struct {
	Action string `json:"action"`

	// hook_event payload
	SessionID  string `json:"session_id,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	AgentType  string `json:"agent_type,omitempty"`
	Content    string `json:"content,omitempty"`
	WorkingDir string `json:"working_directory,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(map[string]string{"error": "invalid JSON: " + err.Error()})
			continue
		}
		if err := enc.Encode(s.dispatch(&req)); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req *request) any {
	switch req.Action {
	case "get_sessions":
		sessions, err := s.store.GetActiveSessions(maxActiveSessions)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"sessions": sessions}

	case "get_metrics":
		metrics, err := s.store.GetSummaryMetrics(metricsWindow)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"metrics": metrics}

	case "get_events":
		events, err := s.store.GetRecentEvents(recentEventLimit)
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return map[string]any{"events": events}

	case "hook_event":
		return s.ingestHookEvent(req)

	default:
		return map[string]string{"error": "Unknown action: " + req.Action}
	}
}

// ingestHookEvent turns a shell-hook notification into a stored and
// broadcast event, same as an adapter observation.
func (s *Server) ingestHookEvent(req *request) any {
	if req.SessionID == "" {
		return map[string]string{"error": "hook_event requires session_id"}
	}
	now := time.Now().UTC()
	kind := session.EventCustom
	if req.EventType != "" {
		kind = session.ParseEventKind(req.EventType)
	}
	evt := &session.Event{
		ID:               session.StableEventID(req.SessionID, now, kind, req.Content),
		SessionID:        req.SessionID,
		EventKind:        kind,
		Timestamp:        now,
		AgentKind:        session.ParseAgentKind(req.AgentType),
		Content:          req.Content,
		WorkingDirectory: req.WorkingDir,
		ToolName:         req.ToolName,
	}
	s.sink.EmitEvent(evt)
	return map[string]any{"ok": true, "event_id": evt.ID}
}
