package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/robertcprice/agent-monitor/internal/session"
)

const (
	// tailWindow is how many trailing lines a change notification
	// processes. Stable event ids make re-reading the same lines a
	// no-op, so the window only needs to cover a burst of appends.
	tailWindow = 50

	// backfillWindow is how many trailing lines discovery reads from
	// each log to reconstruct recent history.
	backfillWindow = 1000

	// activeWindow is how recent the last log activity must be for a
	// backfilled session to count as still active.
	activeWindow = 30 * time.Minute
)

// ClaudeAdapter observes Claude-style CLI agents through their JSONL
// conversation logs and the live process table.
type ClaudeAdapter struct {
	home         string
	scanInterval time.Duration
	sink         *Sink
	tracker      *tracker

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClaudeAdapter builds an adapter watching the given log directory
// (typically ~/.claude) and rescanning processes at scanInterval.
func NewClaudeAdapter(home string, scanInterval time.Duration, sink *Sink) *ClaudeAdapter {
	if scanInterval <= 0 {
		scanInterval = time.Minute
	}
	return &ClaudeAdapter{
		home:         home,
		scanInterval: scanInterval,
		sink:         sink,
		tracker:      newTracker(),
	}
}

func (a *ClaudeAdapter) Name() string            { return "claude" }
func (a *ClaudeAdapter) Kind() session.AgentKind { return session.KindClaude }

func (a *ClaudeAdapter) Capabilities() Capabilities {
	return Capabilities{
		RealTimeEvents:   true,
		HistoricalData:   true,
		TokenTracking:    true,
		CostTracking:     true,
		TranscriptAccess: true,
	}
}

// Start runs one discovery pass over the logs and the process table,
// then wires the file watcher over the log tree and kicks off the
// periodic process scan. A missing log directory is not an error;
// only the process scan runs in that case.
func (a *ClaudeAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if found, err := a.DiscoverSessions(); err == nil {
		seedDiscovered(a.tracker, a.sink, found)
	}

	if _, err := os.Stat(a.home); err == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("claude watcher: %w", err)
		}
		a.watcher = w

		if err := w.Add(a.home); err != nil {
			log.Printf("[claude] watch %s: %v", a.home, err)
		}
		a.watchTree(filepath.Join(a.home, "projects"))

		a.wg.Add(1)
		go a.watchLoop(ctx)
	} else {
		log.Printf("[claude] log directory %s not found, file watch disabled", a.home)
	}

	a.wg.Add(1)
	go a.scanLoop(ctx)
	return nil
}

// Stop tears down the watcher and waits for the loops to drain.
func (a *ClaudeAdapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.wg.Wait()
}

// watchTree adds watches for root and every directory below it.
// fsnotify watches are not recursive, so new subdirectories are added
// as Create events arrive.
func (a *ClaudeAdapter) watchTree(root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if werr := a.watcher.Add(path); werr != nil {
				log.Printf("[claude] watch %s: %v", path, werr)
			}
		}
		return nil
	})
}

func (a *ClaudeAdapter) watchLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := a.watcher.Add(ev.Name); err != nil {
						log.Printf("[claude] watch %s: %v", ev.Name, err)
					}
					continue
				}
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(ev.Name) != ".jsonl" {
				continue
			}
			a.processFile(ev.Name)
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[claude] watcher error: %v", err)
		}
	}
}

// processFile re-reads the tail of a changed log and folds each entry
// into the tracked state. Already-seen lines produce duplicate event
// ids that the store ignores.
func (a *ClaudeAdapter) processFile(path string) {
	lines, err := readTailLines(path, tailWindow)
	if err != nil {
		log.Printf("[claude] read %s: %v", path, err)
		return
	}
	for _, line := range lines {
		var entry historyEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		a.processEntry(&entry, "file_watch")
	}
}

// processEntry applies one log entry to its project's session and
// emits the corresponding event.
func (a *ClaudeAdapter) processEntry(entry *historyEntry, source string) {
	project := entry.projectPath()
	if project == "" {
		return
	}
	if entry.Type == "file-history-snapshot" {
		return
	}

	ts, ok := entry.parseTimestamp()
	if !ok {
		ts = time.Now().UTC()
	}

	snap := a.tracker.Mutate(project,
		func() *session.Session {
			s := a.newSession(project, ts)
			s.SetMeta("source", source)
			if entry.SessionID != "" {
				s.ExternalID = entry.SessionID
			}
			return s
		},
		func(s *session.Session) {
			s.MessageCount++
			s.Status = session.StatusActive
			s.Touch(ts)
			if s.ExternalID == "" && entry.SessionID != "" {
				s.ExternalID = entry.SessionID
			}
			if entry.Message != nil {
				if u := entry.Message.Usage; u != nil {
					s.AddTokens(u.InputTokens, u.OutputTokens)
				}
				if s.ModelID == "" && entry.Message.Model != "" {
					s.ModelID = entry.Message.Model
				}
			}
			if entry.Type == "assistant" {
				s.ToolCallCount += entry.toolUseCount()
			}
		})
	a.sink.UpsertSession(snap)

	kind := session.EventCustom
	if entry.Message != nil {
		switch entry.Message.Role {
		case "user":
			kind = session.EventPromptReceived
		case "assistant":
			kind = session.EventResponseGenerated
		}
	}

	content, toolName := entry.buildContent()
	evt := &session.Event{
		ID:               session.StableEventID(snap.ID, ts, kind, content),
		SessionID:        snap.ID,
		EventKind:        kind,
		Timestamp:        ts,
		AgentKind:        session.KindClaude,
		Content:          content,
		WorkingDirectory: project,
		ToolName:         toolName,
	}
	if entry.Message != nil && entry.Message.Usage != nil {
		in, out := entry.Message.Usage.InputTokens, entry.Message.Usage.OutputTokens
		evt.TokensInput = &in
		evt.TokensOutput = &out
	}
	a.sink.EmitEvent(evt)
}

func (a *ClaudeAdapter) newSession(project string, ts time.Time) *session.Session {
	return &session.Session{
		ID:             session.NewSessionID(),
		AgentKind:      session.KindClaude,
		ProjectPath:    project,
		Status:         session.StatusActive,
		StartedAt:      ts,
		LastActivityAt: ts,
	}
}

func (a *ClaudeAdapter) scanLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.scanInterval)
	defer ticker.Stop()

	a.scanProcesses()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scanProcesses()
		}
	}
}

// scanProcesses registers sessions for live CLI processes whose
// project the log watcher has not seen yet.
func (a *ClaudeAdapter) scanProcesses() {
	procs, err := listProcesses()
	if err != nil {
		log.Printf("[claude] process scan: %v", err)
		return
	}
	now := time.Now().UTC()
	for _, p := range procs {
		if !strings.Contains(p.Name, "claude") && !strings.Contains(p.Cmdline, "@anthropic-ai/claude-code") {
			continue
		}
		if p.Cwd == "" || a.tracker.Has(p.Cwd) {
			continue
		}
		s := a.newSession(p.Cwd, now)
		s.ExternalID = fmt.Sprintf("proc_%d", p.PID)
		s.PID = p.PID
		s.SetMeta("source", "process_scan")
		a.tracker.Put(p.Cwd, s)
		a.sink.UpsertSession(s.Clone())
	}
}

// DiscoverSessions combines live processes with a bounded backfill of
// the on-disk logs. Results are deduplicated by project path, earliest
// source wins.
func (a *ClaudeAdapter) DiscoverSessions() ([]*session.Session, error) {
	var found []*session.Session

	procs, err := listProcesses()
	if err == nil {
		now := time.Now().UTC()
		for _, p := range procs {
			if !strings.Contains(p.Name, "claude") && !strings.Contains(p.Cmdline, "@anthropic-ai/claude-code") {
				continue
			}
			if p.Cwd == "" {
				continue
			}
			s := a.newSession(p.Cwd, now)
			s.ExternalID = fmt.Sprintf("proc_%d", p.PID)
			s.PID = p.PID
			found = append(found, s)
		}
	}

	found = append(found, a.backfillFromLogs()...)
	return dedupeByProject(found), nil
}

// backfillFromLogs reconstructs sessions from the trailing window of
// every log file. Sessions whose last entry falls inside the active
// window are reported active, the rest completed.
func (a *ClaudeAdapter) backfillFromLogs() []*session.Session {
	var paths []string
	if p := filepath.Join(a.home, "history.jsonl"); fileExists(p) {
		paths = append(paths, p)
	}
	filepath.WalkDir(filepath.Join(a.home, "projects"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && filepath.Ext(path) == ".jsonl" {
			paths = append(paths, path)
		}
		return nil
	})

	byProject := make(map[string]*session.Session)
	var order []string
	for _, path := range paths {
		lines, err := readTailLines(path, backfillWindow)
		if err != nil {
			continue
		}
		for _, line := range lines {
			var entry historyEntry
			if json.Unmarshal([]byte(line), &entry) != nil {
				continue
			}
			project := entry.projectPath()
			if project == "" || entry.Type == "file-history-snapshot" {
				continue
			}
			ts, ok := entry.parseTimestamp()
			if !ok {
				continue
			}

			s, seen := byProject[project]
			if !seen {
				s = a.newSession(project, ts)
				if entry.SessionID != "" {
					s.ExternalID = entry.SessionID
				}
				s.SetMeta("source", "history_backfill")
				byProject[project] = s
				order = append(order, project)
			}
			if ts.Before(s.StartedAt) {
				s.StartedAt = ts
			}
			s.MessageCount++
			s.Touch(ts)
			if entry.Message != nil {
				if u := entry.Message.Usage; u != nil {
					s.AddTokens(u.InputTokens, u.OutputTokens)
				}
				if s.ModelID == "" && entry.Message.Model != "" {
					s.ModelID = entry.Message.Model
				}
			}
			if entry.Type == "assistant" {
				s.ToolCallCount += entry.toolUseCount()
			}
		}
	}

	cutoff := time.Now().Add(-activeWindow)
	out := make([]*session.Session, 0, len(order))
	for _, project := range order {
		s := byProject[project]
		if s.LastActivityAt.Before(cutoff) {
			s.Status = session.StatusCompleted
			ended := s.LastActivityAt
			s.EndedAt = &ended
		}
		out = append(out, s)
	}
	return out
}

// dedupeByProject keeps the first session seen for each project path.
func dedupeByProject(sessions []*session.Session) []*session.Session {
	seen := make(map[string]struct{}, len(sessions))
	out := sessions[:0]
	for _, s := range sessions {
		if _, dup := seen[s.ProjectPath]; dup {
			continue
		}
		seen[s.ProjectPath] = struct{}{}
		out = append(out, s)
	}
	return out
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
