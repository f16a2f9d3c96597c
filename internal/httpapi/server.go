// Package httpapi is the daemon's REST, WebSocket, and SSE surface.
// Handlers are stateless reads over the store; push paths fan out from
// the bus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/robertcprice/agent-monitor/internal/analytics"
	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/frontend"
	"github.com/robertcprice/agent-monitor/internal/session"
	"github.com/robertcprice/agent-monitor/internal/status"
	"github.com/robertcprice/agent-monitor/internal/store"
)

const (
	defaultSessionLimit = 50
	defaultEventLimit   = 50
	defaultHoursWindow  = 24
	updateInterval      = 5 * time.Second
)

// Server owns the HTTP listener and its push machinery.
type Server struct {
	host      string
	port      int
	store     *store.Store
	bus       *bus.Bus
	manager   *analytics.Manager
	reporter  *status.Reporter
	hub       *Hub
	webhooks  *WebhookRegistry
	filter    *session.PrivacyFilter
	version   string
	startedAt time.Time

	httpSrv *http.Server
	cancel  context.CancelFunc
}

// NewServer wires the HTTP surface over the daemon's shared state.
func NewServer(host string, port int, st *store.Store, b *bus.Bus, manager *analytics.Manager, reporter *status.Reporter, version string) *Server {
	s := &Server{
		host:      host,
		port:      port,
		store:     st,
		bus:       b,
		manager:   manager,
		reporter:  reporter,
		webhooks:  NewWebhookRegistry(),
		filter:    &session.PrivacyFilter{},
		version:   version,
		startedAt: time.Now(),
	}
	s.hub = newHub(st)
	return s
}

// Webhooks exposes the registry for test and admin wiring.
func (s *Server) Webhooks() *WebhookRegistry {
	return s.webhooks
}

// SetPrivacyFilter installs masking and path filtering on every surface
// that serves sessions. Must be called before Start.
func (s *Server) SetPrivacyFilter(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	s.filter = f
	s.hub.filter = f
}

// SetupRoutes registers every handler on the mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	// Legacy surface.
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionStub)
	mux.HandleFunc("GET /api/metrics/summary", s.handleMetricsSummary)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPI)

	// Versioned surface.
	mux.HandleFunc("GET /api/v1/sessions", s.handleV1Sessions)
	mux.HandleFunc("DELETE /api/v1/sessions", s.handleV1ClearSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleV1Session)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.handleV1SessionEvents)
	mux.HandleFunc("GET /api/v1/events", s.handleV1Events)
	mux.HandleFunc("GET /api/v1/events/{id}", s.handleV1Event)
	mux.HandleFunc("GET /api/v1/export", s.handleV1Export)
	mux.HandleFunc("GET /api/v1/stream", s.handleSSE)
	mux.HandleFunc("GET /api/v1/webhooks", s.handleV1ListWebhooks)
	mux.HandleFunc("POST /api/v1/webhooks", s.handleV1CreateWebhook)
	mux.HandleFunc("DELETE /api/v1/webhooks/{id}", s.handleV1DeleteWebhook)

	mux.Handle("GET /", frontend.Handler())
}

// Start runs the listener and the background broadcasters.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpSrv = &http.Server{Addr: addr, Handler: cors(mux)}

	go s.hub.run(ctx, updateInterval)
	go s.dispatchWebhooks(ctx)

	go func() {
		log.Printf("[http] listening on %s", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[http] serve: %v", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, allowing in-flight requests a short
// grace period.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(ctx)
	}
}

// dispatchWebhooks forwards every bus event to matching registrations.
func (s *Server) dispatchWebhooks(ctx context.Context) {
	sub := s.bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			s.webhooks.Dispatch(e.EventKind.String(), e)
		}
	}
}

// cors applies the permissive local-trust policy.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSessionLimit)

	var (
		sessions []*session.Session
		err      error
	)
	if queryBool(r, "active_only") {
		sessions, err = s.store.GetActiveSessions(limit)
	} else {
		sessions, err = s.store.GetRecentSessions(defaultHoursWindow, limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.filter.FilterSlice(sessions))
}

// handleSessionStub keeps the legacy path shape; clients are expected
// to use /api/v1/sessions/{id}.
func (s *Server) handleSessionStub(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "Not implemented"})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", defaultHoursWindow)
	metrics, err := s.store.GetSummaryMetrics(hours)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultEventLimit)
	events, err := s.store.GetRecentEvents(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.Ping() == nil

	var activeCount int
	if active, err := s.store.GetActiveSessions(1000); err == nil {
		activeCount = len(active)
	}
	events24h, _ := s.store.CountEventsSince(defaultHoursWindow)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"database_ok":      dbOK,
		"active_sessions":  activeCount,
		"total_events_24h": events24h,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    s.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"pid":        os.Getpid(),
		"started_at": s.startedAt.UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reporter.Snapshot())
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := frontend.OpenAPI()
	if doc == nil {
		http.Error(w, "document unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(doc)
}
