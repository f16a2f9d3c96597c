package adapter

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// historyMaxAge is how far back a chat history file still counts as a
// recent aider session during discovery.
const historyMaxAge = 7 * 24 * time.Hour

// AiderAdapter observes aider pair-programming sessions through live
// processes and the chat history files aider leaves in project
// directories.
type AiderAdapter struct {
	scanRoots    []string
	scanInterval time.Duration
	sink         *Sink
	tracker      *tracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAiderAdapter builds an adapter scanning the conventional project
// roots under the user's home directory.
func NewAiderAdapter(scanInterval time.Duration, sink *Sink) *AiderAdapter {
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}
	return &AiderAdapter{
		scanRoots:    aiderScanRoots(),
		scanInterval: scanInterval,
		sink:         sink,
		tracker:      newTracker(),
	}
}

func aiderScanRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "projects"),
		filepath.Join(home, "dev"),
		filepath.Join(home, "code"),
		filepath.Join(home, "workspace"),
		home,
	}
}

func (a *AiderAdapter) Name() string            { return "aider" }
func (a *AiderAdapter) Kind() session.AgentKind { return session.KindAider }

func (a *AiderAdapter) Capabilities() Capabilities {
	return Capabilities{
		HistoricalData: true,
		TokenTracking:  true,
		CostTracking:   true,
	}
}

// Start runs one discovery pass over processes and chat history files,
// then begins the periodic process scan.
func (a *AiderAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if found, err := a.DiscoverSessions(); err == nil {
		seedDiscovered(a.tracker, a.sink, found)
	}
	a.wg.Add(1)
	go a.scanLoop(ctx)
	return nil
}

func (a *AiderAdapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *AiderAdapter) scanLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.scanInterval)
	defer ticker.Stop()

	a.scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scan()
		}
	}
}

func (a *AiderAdapter) scan() {
	procs, err := listProcesses()
	if err != nil {
		log.Printf("[aider] process scan: %v", err)
		return
	}
	now := time.Now().UTC()
	for _, p := range procs {
		if !isAiderProcess(p) || p.Cwd == "" {
			continue
		}
		if a.tracker.Has(p.Cwd) {
			continue
		}
		s := a.newSession(p.Cwd, now)
		s.ExternalID = fmt.Sprintf("aider_%d", p.PID)
		s.PID = p.PID
		s.ModelID = extractModelFlag(p.Cmdline)
		s.SetMeta("source", "process_scan")
		a.tracker.Put(p.Cwd, s)
		a.sink.UpsertSession(s.Clone())
	}
}

// isAiderProcess matches aider invocations while excluding unrelated
// tools whose names merely start with the same prefix.
func isAiderProcess(p procInfo) bool {
	return strings.Contains(p.Cmdline, "aider") && !strings.Contains(p.Cmdline, "aider-")
}

// extractModelFlag pulls the value of a --model argument out of a
// command line. Returns "" when the flag is absent.
func extractModelFlag(cmdline string) string {
	const flag = "--model"
	idx := strings.Index(cmdline, flag)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimLeft(cmdline[idx+len(flag):], " =")
	if rest == "" {
		return ""
	}
	if cut := strings.IndexAny(rest, " \t"); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

// DiscoverSessions reports live aider processes plus recently touched
// chat history files under the scan roots, deduplicated by project.
func (a *AiderAdapter) DiscoverSessions() ([]*session.Session, error) {
	var found []*session.Session
	now := time.Now().UTC()

	procs, err := listProcesses()
	if err == nil {
		for _, p := range procs {
			if !isAiderProcess(p) || p.Cwd == "" {
				continue
			}
			s := a.newSession(p.Cwd, now)
			s.ExternalID = fmt.Sprintf("aider_%d", p.PID)
			s.PID = p.PID
			s.ModelID = extractModelFlag(p.Cmdline)
			found = append(found, s)
		}
	}

	found = append(found, a.historySessions(now)...)
	return dedupeByProject(found), nil
}

// historySessions walks one level below each scan root looking for
// .aider.chat.history.md files modified within the retention window.
func (a *AiderAdapter) historySessions(now time.Time) []*session.Session {
	var out []*session.Session
	seen := make(map[string]struct{})
	for _, root := range a.scanRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			project := filepath.Join(root, e.Name())
			if _, dup := seen[project]; dup {
				continue
			}
			fi, err := os.Stat(filepath.Join(project, ".aider.chat.history.md"))
			if err != nil {
				continue
			}
			mtime := fi.ModTime().UTC()
			if now.Sub(mtime) > historyMaxAge {
				continue
			}
			seen[project] = struct{}{}

			s := a.newSession(project, mtime)
			s.ExternalID = "aider_history_" + e.Name()
			s.Status = session.StatusCompleted
			ended := mtime
			s.EndedAt = &ended
			s.SetMeta("source", "history_file")
			out = append(out, s)
		}
	}
	return out
}

func (a *AiderAdapter) newSession(project string, ts time.Time) *session.Session {
	return &session.Session{
		ID:             session.NewSessionID(),
		AgentKind:      session.KindAider,
		ProjectPath:    project,
		Status:         session.StatusActive,
		StartedAt:      ts,
		LastActivityAt: ts,
	}
}
