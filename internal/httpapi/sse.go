package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const sseKeepAlive = 30 * time.Second

// handleSSE bridges the bus onto a text/event-stream response. Each
// event is one SSE message named after its kind; keep-alive comments
// hold idle proxies open.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	sub := s.bus.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	var lastLag uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if lag := sub.Lagged(); lag > lastLag {
				log.Printf("[http] sse subscriber lagged, %d events dropped", lag-lastLag)
				lastLag = lag
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.EventKind, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
