package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// CursorAdapter observes Cursor editor sessions through the workspace
// state the editor leaves on disk plus the live process table. Cursor
// exposes no token or cost telemetry, so the adapter only reports
// presence and working directory.
type CursorAdapter struct {
	appDir       string
	scanInterval time.Duration
	sink         *Sink
	tracker      *tracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCursorAdapter builds an adapter rooted at the platform's Cursor
// application-support directory.
func NewCursorAdapter(scanInterval time.Duration, sink *Sink) *CursorAdapter {
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}
	return &CursorAdapter{
		appDir:       cursorAppDir(),
		scanInterval: scanInterval,
		sink:         sink,
		tracker:      newTracker(),
	}
}

// cursorAppDir resolves where Cursor keeps its per-workspace state.
func cursorAppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cursor")
	case "linux":
		return filepath.Join(home, ".config", "Cursor")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Cursor")
	default:
		return filepath.Join(home, ".cursor")
	}
}

func (a *CursorAdapter) Name() string            { return "cursor" }
func (a *CursorAdapter) Kind() session.AgentKind { return session.KindCursor }

func (a *CursorAdapter) Capabilities() Capabilities {
	return Capabilities{
		HistoricalData:     true,
		FileChangeTracking: true,
	}
}

// Start runs one discovery pass over workspace state and processes,
// then begins the periodic scan.
func (a *CursorAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if found, err := a.DiscoverSessions(); err == nil {
		seedDiscovered(a.tracker, a.sink, found)
	}
	a.wg.Add(1)
	go a.scanLoop(ctx)
	return nil
}

func (a *CursorAdapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *CursorAdapter) scanLoop(ctx context.Context) {
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

func (a *CursorAdapter) scan() {
	for _, s := range a.collect() {
		if a.tracker.Has(s.ProjectPath) {
			continue
		}
		a.tracker.Put(s.ProjectPath, s)
		a.sink.UpsertSession(s.Clone())
	}
}

// DiscoverSessions reports workspaces from disk state and editor
// processes, deduplicated by project path.
func (a *CursorAdapter) DiscoverSessions() ([]*session.Session, error) {
	return dedupeByProject(a.collect()), nil
}

func (a *CursorAdapter) collect() []*session.Session {
	found := a.workspaceSessions()

	procs, err := listProcesses()
	if err != nil {
		if found == nil {
			log.Printf("[cursor] process scan: %v", err)
		}
		return dedupeByProject(found)
	}
	now := time.Now().UTC()
	for _, p := range procs {
		if !strings.Contains(p.Name, "cursor") || strings.Contains(p.Name, "cursorless") {
			continue
		}
		// Helper processes run from inside the app bundle; only the
		// window opened on a real project is a session.
		if p.Cwd == "" || strings.Contains(p.Cwd, "Application Support") {
			continue
		}
		s := a.newSession(p.Cwd, now)
		s.ExternalID = fmt.Sprintf("proc_%d", p.PID)
		s.PID = p.PID
		s.SetMeta("source", "process_scan")
		found = append(found, s)
	}
	return dedupeByProject(found)
}

// workspaceSessions reads Cursor's per-workspace storage directories.
// Each one records the folder the workspace was opened on; presence of
// the state database marks it as having been used.
func (a *CursorAdapter) workspaceSessions() []*session.Session {
	if a.appDir == "" {
		return nil
	}
	root := filepath.Join(a.appDir, "User", "workspaceStorage")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var out []*session.Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		folder, ok := readWorkspaceFolder(filepath.Join(dir, "workspace.json"))
		if !ok {
			continue
		}
		if !fileExists(filepath.Join(dir, "state.vscdb")) {
			continue
		}

		fi, err := os.Stat(dir)
		if err != nil {
			continue
		}
		ts := fi.ModTime().UTC()
		s := a.newSession(folder, ts)
		s.ExternalID = "workspace_" + e.Name()
		s.Status = session.StatusIdle
		s.SetMeta("source", "workspace_storage")
		out = append(out, s)
	}
	return out
}

// readWorkspaceFolder extracts the opened folder from workspace.json,
// stripping the file:// scheme and percent-encoding.
func readWorkspaceFolder(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var ws struct {
		Folder string `json:"folder"`
	}
	if json.Unmarshal(data, &ws) != nil || ws.Folder == "" {
		return "", false
	}
	folder := strings.TrimPrefix(ws.Folder, "file://")
	if decoded, err := url.PathUnescape(folder); err == nil {
		folder = decoded
	}
	return folder, true
}

func (a *CursorAdapter) newSession(project string, ts time.Time) *session.Session {
	return &session.Session{
		ID:             session.NewSessionID(),
		AgentKind:      session.KindCursor,
		ProjectPath:    project,
		Status:         session.StatusActive,
		StartedAt:      ts,
		LastActivityAt: ts,
	}
}
