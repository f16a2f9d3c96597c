// Package app wires the monitor TUI together: poll loops, the push
// connection, key handling, and view composition.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
	"github.com/robertcprice/agent-monitor/tui/internal/theme"
	"github.com/robertcprice/agent-monitor/tui/internal/views/dashboard"
	"github.com/robertcprice/agent-monitor/tui/internal/views/detail"
	sessionlist "github.com/robertcprice/agent-monitor/tui/internal/views/sessions"
	"github.com/robertcprice/agent-monitor/tui/internal/views/statusbar"
)

const metricsHours = 24

type sessionTickMsg time.Time
type eventTickMsg time.Time

type sessionsMsg struct {
	sessions []*client.Session
	err      error
}

type eventsMsg struct {
	sessionID string
	events    []*client.Event
	err       error
}

type metricsMsg struct {
	metrics *client.SummaryMetrics
	err     error
}

type healthMsg struct {
	health *client.Health
	err    error
}

// Model is the root bubbletea model.
type Model struct {
	cfg  *client.Config
	http *client.HTTPClient
	ws   *client.WSClient

	ctx    context.Context
	cancel context.CancelFunc
	keys   keyMap

	width  int
	height int

	sessions     []*client.Session
	selectedID   string
	selectedIdx  int
	scrollOffset int

	showDetail bool

	statusBar statusbar.Model
	dash      dashboard.Model
	table     sessionlist.Model
	detail    detail.Model

	connected   bool
	live        bool
	version     string
	animRunning bool
}

// New creates the root model. ws may be nil when live updates are
// disabled.
func New(cfg *client.Config, httpClient *client.HTTPClient, ws *client.WSClient) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	return &Model{
		cfg:       cfg,
		http:      httpClient,
		ws:        ws,
		ctx:       ctx,
		cancel:    cancel,
		keys:      defaultKeyMap(),
		statusBar: statusbar.New(),
		dash:      dashboard.New(),
		table:     sessionlist.New(),
		detail:    detail.New(cfg.MarkdownStyle),
	}
}

// Init starts the poll loops and, when enabled, the push connection.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.fetchSessions(),
		m.fetchMetrics(),
		m.fetchHealth(),
		m.sessionTick(),
		m.eventTick(),
	}
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	return tea.Batch(cmds...)
}

func (m *Model) sessionTick() tea.Cmd {
	return tea.Tick(m.cfg.SessionPoll, func(t time.Time) tea.Msg {
		return sessionTickMsg(t)
	})
}

func (m *Model) eventTick() tea.Cmd {
	return tea.Tick(m.cfg.EventPoll, func(t time.Time) tea.Msg {
		return eventTickMsg(t)
	})
}

func (m *Model) fetchSessions() tea.Cmd {
	return func() tea.Msg {
		list, err := m.http.GetActiveSessions(m.cfg.SessionLimit)
		return sessionsMsg{sessions: list, err: err}
	}
}

func (m *Model) fetchEvents(sessionID string) tea.Cmd {
	return func() tea.Msg {
		events, err := m.http.GetSessionEvents(sessionID, m.cfg.EventLimit)
		return eventsMsg{sessionID: sessionID, events: events, err: err}
	}
}

func (m *Model) fetchMetrics() tea.Cmd {
	return func() tea.Msg {
		metrics, err := m.http.GetMetrics(metricsHours)
		return metricsMsg{metrics: metrics, err: err}
	}
}

func (m *Model) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := m.http.GetHealth()
		return healthMsg{health: h, err: err}
	}
}

// Update handles one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionTickMsg:
		return m, tea.Batch(m.fetchSessions(), m.fetchMetrics(), m.sessionTick())

	case eventTickMsg:
		// The event poll pauses while an event is held open so the
		// expanded content cannot shift under the reader.
		cmds := []tea.Cmd{m.eventTick()}
		if m.showDetail && !m.detail.Expanded() && m.selectedID != "" {
			cmds = append(cmds, m.fetchEvents(m.selectedID))
		}
		return m, tea.Batch(cmds...)

	case sessionsMsg:
		m.connected = msg.err == nil
		if msg.err == nil {
			m.applySessions(msg.sessions)
		}
		return m, nil

	case eventsMsg:
		if msg.err == nil && m.showDetail && msg.sessionID == m.selectedID && !m.detail.Expanded() {
			m.detail.SetEvents(msg.events)
		}
		return m, nil

	case metricsMsg:
		if msg.err == nil {
			m.dash.SetMetrics(msg.metrics)
			return m, m.startAnim()
		}
		return m, nil

	case healthMsg:
		if msg.err == nil {
			m.version = msg.health.Version
		}
		return m, nil

	case dashboard.AnimTickMsg:
		m.dash.Update()
		if m.dash.Animating() {
			return m, dashboard.Tick()
		}
		m.animRunning = false
		return m, nil

	case client.WSConnectedMsg:
		m.live = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.live = false
		return m, m.ws.Listen(m.ctx)

	case client.WSFrameMsg:
		if msg.Frame.Sessions != nil {
			m.connected = true
			m.applySessions(msg.Frame.Sessions)
		}
		var cmd tea.Cmd
		if msg.Frame.Metrics != nil {
			m.dash.SetMetrics(msg.Frame.Metrics)
			cmd = m.startAnim()
		}
		return m, tea.Batch(cmd, m.ws.ReadLoop(m.ctx))
	}

	return m, nil
}

func (m *Model) startAnim() tea.Cmd {
	if m.animRunning || !m.dash.Animating() {
		return nil
	}
	m.animRunning = true
	return dashboard.Tick()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys

	switch {
	case key.Matches(msg, k.Quit):
		m.cancel()
		return m, tea.Quit
	}

	if m.showDetail {
		switch {
		case key.Matches(msg, k.Back):
			if m.detail.Expanded() {
				m.detail.ToggleExpand()
			} else {
				m.showDetail = false
			}
		case key.Matches(msg, k.Expand):
			m.detail.ToggleExpand()
		case key.Matches(msg, k.Up):
			if m.detail.Expanded() {
				m.detail.ScrollExpanded(-1)
			} else {
				m.detail.MoveCursor(-1)
			}
		case key.Matches(msg, k.Down):
			if m.detail.Expanded() {
				m.detail.ScrollExpanded(1)
			} else {
				m.detail.MoveCursor(1)
			}
		case key.Matches(msg, k.Refresh):
			if !m.detail.Expanded() && m.selectedID != "" {
				return m, m.fetchEvents(m.selectedID)
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, k.Up):
		m.moveSelection(-1)
	case key.Matches(msg, k.Down):
		m.moveSelection(1)
	case key.Matches(msg, k.Enter):
		if sess := m.selectedSession(); sess != nil {
			m.showDetail = true
			m.detail.Open(sess)
			return m, m.fetchEvents(sess.ID)
		}
	case key.Matches(msg, k.Refresh):
		cmds := []tea.Cmd{m.fetchSessions(), m.fetchMetrics()}
		if m.ws != nil && m.live {
			m.ws.Refresh()
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// applySessions installs a refreshed list, re-locating the selection by
// session id. New sessions land at the head, so when the selected row
// moved down the scroll offset shifts by the same delta and the screen
// does not jump.
func (m *Model) applySessions(list []*client.Session) {
	prevIdx := indexOf(m.sessions, m.selectedID)
	m.sessions = list

	if m.selectedID == "" {
		if len(list) > 0 {
			m.selectedIdx = 0
			m.selectedID = list[0].ID
		}
		return
	}

	newIdx := indexOf(list, m.selectedID)
	if newIdx < 0 {
		// The selected session left the window; hold the visual slot.
		if m.selectedIdx >= len(list) {
			m.selectedIdx = len(list) - 1
		}
		if m.selectedIdx < 0 {
			m.selectedIdx = 0
			m.selectedID = ""
		} else {
			m.selectedID = list[m.selectedIdx].ID
		}
		m.clampScroll()
		return
	}

	if delta := newIdx - prevIdx; delta > 0 {
		m.scrollOffset += delta
	}
	m.selectedIdx = newIdx
	m.clampScroll()

	// Keep the detail header current for the open session.
	if m.showDetail {
		if sess := m.selectedSession(); sess != nil {
			m.detail.Session = sess
		}
	}
}

func indexOf(list []*client.Session, id string) int {
	if id == "" {
		return -1
	}
	for i, s := range list {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) selectedSession() *client.Session {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.sessions) {
		return nil
	}
	return m.sessions[m.selectedIdx]
}

func (m *Model) moveSelection(delta int) {
	if len(m.sessions) == 0 {
		return
	}
	m.selectedIdx += delta
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	if m.selectedIdx >= len(m.sessions) {
		m.selectedIdx = len(m.sessions) - 1
	}
	m.selectedID = m.sessions[m.selectedIdx].ID
	m.clampScroll()
}

func (m *Model) clampScroll() {
	rows := m.tableRows()
	if m.selectedIdx < m.scrollOffset {
		m.scrollOffset = m.selectedIdx
	}
	if m.selectedIdx >= m.scrollOffset+rows {
		m.scrollOffset = m.selectedIdx - rows + 1
	}
	if max := len(m.sessions) - 1; m.scrollOffset > max {
		m.scrollOffset = max
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m *Model) tableRows() int {
	rows := m.table.Height - 3
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height

	m.statusBar.Width = width
	m.dash.Width = width
	m.table.Width = width
	// Dashboard panel is 3 lines, the status bar and help line one each.
	m.table.Height = height - 5
	if m.table.Height < 4 {
		m.table.Height = 4
	}
	m.detail.SetSize(width, height-5)
	m.clampScroll()
}

// View composes the screen.
func (m *Model) View() string {
	if m.width == 0 {
		return "Starting…"
	}

	m.statusBar.Connected = m.connected
	m.statusBar.Live = m.live
	m.statusBar.Version = m.version
	m.statusBar.Sessions = m.sessions

	var body string
	var help string
	if m.showDetail {
		body = m.detail.View()
		help = ""
	} else {
		body = m.table.View(m.sessions, m.selectedIdx, m.scrollOffset)
		help = theme.StyleDimmed.Render("  [↑/↓] select  [enter] open  [r] refresh  [q] quit")
	}

	parts := []string{m.dash.View(), body}
	if help != "" {
		parts = append(parts, help)
	}
	parts = append(parts, m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
