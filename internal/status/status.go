// Package status builds the aggregate daemon snapshot and periodically
// dumps it to a JSON file for out-of-process consumers.
package status

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robertcprice/agent-monitor/internal/analytics"
	"github.com/robertcprice/agent-monitor/internal/store"
)

// Document is the status schema written to disk and served at /status.
type Document struct {
	DaemonStatus  string           `json:"daemon_status"`
	Version       string           `json:"version"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Sessions      SessionsSection  `json:"sessions"`
	Analytics     AnalyticsSection `json:"analytics"`
}

type SessionsSection struct {
	ActiveCount int              `json:"active_count"`
	Total24h    int64            `json:"total_24h"`
	ByAgentType map[string]int64 `json:"by_agent_type"`
}

type AnalyticsSection struct {
	TotalMessages int64                       `json:"total_messages"`
	TotalCost     float64                     `json:"total_cost"`
	RateLimit     *analytics.RateLimiterState `json:"rate_limit,omitempty"`
}

// Reporter assembles Documents from live daemon state.
type Reporter struct {
	store     *store.Store
	manager   *analytics.Manager
	version   string
	startedAt time.Time
}

// NewReporter wires a reporter over the store and analytics engine.
func NewReporter(st *store.Store, manager *analytics.Manager, version string, startedAt time.Time) *Reporter {
	return &Reporter{store: st, manager: manager, version: version, startedAt: startedAt}
}

// Snapshot queries current aggregate state. Partial failures degrade
// the document rather than failing it; the daemon status stays
// reportable even when a query errors.
func (r *Reporter) Snapshot() *Document {
	doc := &Document{
		DaemonStatus:  "running",
		Version:       r.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		Sessions: SessionsSection{
			ByAgentType: make(map[string]int64),
		},
	}

	if active, err := r.store.GetActiveSessions(1000); err == nil {
		doc.Sessions.ActiveCount = len(active)
		for _, s := range active {
			doc.Sessions.ByAgentType[s.AgentKind.String()]++
		}
	} else {
		log.Printf("[status] active sessions: %v", err)
	}

	if metrics, err := r.store.GetSummaryMetrics(24); err == nil {
		doc.Sessions.Total24h = metrics.TotalSessions
		doc.Analytics.TotalMessages = metrics.TotalMessages
		doc.Analytics.TotalCost = metrics.TotalCost
	} else {
		log.Printf("[status] summary metrics: %v", err)
	}

	if r.manager != nil {
		state := r.manager.RateLimiterSnapshot()
		doc.Analytics.RateLimit = &state
	}
	return doc
}

// Writer dumps the reporter's snapshot to a file on an interval.
type Writer struct {
	reporter *Reporter
	path     string
	interval time.Duration
}

// NewWriter builds a writer targeting path every interval.
func NewWriter(reporter *Reporter, path string, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Writer{reporter: reporter, path: path, interval: interval}
}

// WriteOnce writes one snapshot with write-then-rename so readers
// never observe a torn file.
func (w *Writer) WriteOnce() error {
	data, err := json.MarshalIndent(w.reporter.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

// Run writes immediately and then on every tick until the context
// ends.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.WriteOnce(); err != nil {
		log.Printf("[status] write: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteOnce(); err != nil {
				log.Printf("[status] write: %v", err)
			}
		}
	}
}
