package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robertcprice/agent-monitor/internal/session"
	"github.com/robertcprice/agent-monitor/internal/store"
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	close(c.send)
}

// wsFrame is the push envelope sent to dashboard clients.
type wsFrame struct {
	Type     string                  `json:"type"`
	Sessions []*session.Session      `json:"sessions,omitempty"`
	Metrics  *session.SummaryMetrics `json:"metrics,omitempty"`
}

// Hub fans periodic snapshots out to WebSocket clients. A client that
// cannot drain its send channel is disconnected rather than allowed to
// stall the rest.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	store   *store.Store
	filter  *session.PrivacyFilter
}

func newHub(st *store.Store) *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		store:   st,
		filter:  &session.PrivacyFilter{},
	}
}

// snapshotFrame builds a frame of current sessions and 24 h metrics.
func (h *Hub) snapshotFrame(frameType string) ([]byte, error) {
	sessions, err := h.store.GetActiveSessions(defaultSessionLimit)
	if err != nil {
		return nil, err
	}
	metrics, err := h.store.GetSummaryMetrics(defaultHoursWindow)
	if err != nil {
		return nil, err
	}
	if !h.filter.IsNoop() {
		sessions = h.filter.FilterSlice(sessions)
	}
	return json.Marshal(wsFrame{Type: frameType, Sessions: sessions, Metrics: metrics})
}

func (h *Hub) addClient(conn *websocket.Conn) *wsClient {
	c := newWSClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	if data, err := h.snapshotFrame("initial"); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return c
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("[http] ws client too slow, disconnecting")
			h.removeClient(c)
		}
	}
}

// run pushes an update frame to every client on each tick.
func (h *Hub) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.clientCount() == 0 {
				continue
			}
			data, err := h.snapshotFrame("update")
			if err != nil {
				log.Printf("[http] ws snapshot: %v", err)
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// clientRequest is a frame sent by the dashboard.
type clientRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Local-only trust model; any origin may connect.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[http] ws upgrade: %v", err)
		return
	}

	c := s.hub.addClient(conn)
	defer s.hub.removeClient(c)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req clientRequest
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		switch req.Action {
		case "refresh":
			if frame, err := s.hub.snapshotFrame("update"); err == nil {
				select {
				case c.send <- frame:
				default:
				}
			}
		case "ping":
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}
