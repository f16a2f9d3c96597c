package bridge

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

	"github.com/robertcprice/agent-monitor/internal/bus"
	"github.com/robertcprice/agent-monitor/internal/store"
)

const sendQueueSize = 64

// conn is one connected consumer with a buffered outbound queue. A
// consumer that stops draining is disconnected rather than allowed to
// stall the broadcaster.
type conn struct {
	raw  net.Conn
	send chan []byte
}

func newConn(raw net.Conn) *conn {
	c := &conn{raw: raw, send: make(chan []byte, sendQueueSize)}
	go c.writePump()
	return c
}

func (c *conn) writePump() {
	defer c.raw.Close()
	w := bufio.NewWriter(c.raw)
	for msg := range c.send {
		if _, err := w.Write(msg); err != nil {
			return
		}
		if err := w.WriteByte('\n'); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (c *conn) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Server accepts consumers on a local socket, answers their requests,
// and pushes session updates and event notifications to all of them.
type Server struct {
	path  string
	store *store.Store
	bus   *bus.Bus

	ln     net.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*conn]bool
}

// NewServer builds a bridge bound to the socket path.
func NewServer(path string, st *store.Store, b *bus.Bus) *Server {
	return &Server{
		path:  path,
		store: st,
		bus:   b,
		conns: make(map[*conn]bool),
	}
}

// Start binds the socket and runs the accept and broadcast loops.
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
	s.wg.Add(2)
	go s.acceptLoop(ctx)
	go s.broadcastLoop(ctx)
	log.Printf("[bridge] listening on %s", s.path)
	return nil
}

// Stop closes the listener and every consumer connection.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		delete(s.conns, c)
		close(c.send)
	}
	s.mu.Unlock()
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[bridge] accept: %v", err)
			continue
		}
		c := newConn(raw)
		s.mu.Lock()
		s.conns[c] = true
		s.mu.Unlock()

		// A new consumer immediately learns the current active set.
		s.sendSessionsList(c)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.readLoop(ctx, c)
			s.drop(c)
		}()
	}
}

func (s *Server) drop(c *conn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.sendError(c, "invalid_json", err.Error())
			continue
		}
		switch msg.MessageType {
		case "Ping":
			s.sendMessage(c, &Message{MessageType: "Pong"})
		case "GetSessions":
			s.sendSessionsList(c)
		case "Subscribe", "Unsubscribe":
			// Subscription is implicit on all broadcasts; acknowledged
			// by effect only.
		default:
			s.sendError(c, "unknown_message", "unknown message_type: "+msg.MessageType)
		}
	}
}

func (s *Server) sendMessage(c *conn, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[bridge] marshal %s: %v", msg.MessageType, err)
		return
	}
	if !c.enqueue(data) {
		log.Printf("[bridge] consumer too slow, disconnecting")
		s.drop(c)
	}
}

func (s *Server) sendError(c *conn, code, message string) {
	s.sendMessage(c, &Message{MessageType: "Error", Code: code, Message: message})
}

func (s *Server) sendSessionsList(c *conn) {
	sessions, err := s.store.GetActiveSessions(100)
	if err != nil {
		s.sendError(c, "storage", err.Error())
		return
	}
	unified := make([]UnifiedSessionState, 0, len(sessions))
	for _, sess := range sessions {
		unified = append(unified, UnifiedSession(sess))
	}
	s.sendMessage(c, &Message{MessageType: "SessionsList", Sessions: &unified})
}

// broadcastLoop forwards every bus event as an EventNotification plus
// a SessionUpdate for the session it belongs to. Events are stored
// before they are published, so the session read always reflects the
// event.
func (s *Server) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()
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
			unified := UnifiedEvent(e)
			s.broadcast(&Message{MessageType: "EventNotification", Event: &unified})

			if sess, err := s.store.GetSession(e.SessionID); err == nil && sess != nil {
				u := UnifiedSession(sess)
				s.broadcast(&Message{MessageType: "SessionUpdate", Session: &u})
			}
		}
	}
}

func (s *Server) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[bridge] marshal %s: %v", msg.MessageType, err)
		return
	}
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if !c.enqueue(data) {
			log.Printf("[bridge] consumer too slow, disconnecting")
			s.drop(c)
		}
	}
}
