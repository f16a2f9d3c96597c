// Package detail renders one session's event feed with an expandable
// markdown view of event content.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
	"github.com/robertcprice/agent-monitor/tui/internal/theme"
)

const previewLen = 80

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(12)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)
)

// Model holds the detail view state. Cursor and scroll survive event
// refreshes; an expanded event pauses refreshes entirely (the app
// checks Expanded before polling).
type Model struct {
	Session *client.Session
	Events  []*client.Event

	Width  int
	Height int

	cursor       int
	cursorID     string
	scrollOffset int
	expandedID   string

	viewport viewport.Model
	renderer *glamour.TermRenderer
	mdStyle  string
}

// New creates a detail model. markdownStyle is a glamour style name
// ("dark", "light", "auto").
func New(markdownStyle string) Model {
	if markdownStyle == "" {
		markdownStyle = "auto"
	}
	return Model{mdStyle: markdownStyle, viewport: viewport.New(80, 20)}
}

// SetSize resizes the panel and the expanded viewport.
func (m *Model) SetSize(width, height int) {
	m.Width = width
	m.Height = height
	m.viewport.Width = width - 4
	m.viewport.Height = height - 8
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.renderer = nil // rebuilt at the new wrap width
}

// Open points the view at a session, clearing cursor, scroll, and
// expansion state left over from the previous one.
func (m *Model) Open(s *client.Session) {
	m.Session = s
	m.Events = nil
	m.cursor = 0
	m.cursorID = ""
	m.scrollOffset = 0
	m.expandedID = ""
}

// Expanded reports whether an event is held open.
func (m Model) Expanded() bool {
	return m.expandedID != ""
}

// SetEvents installs a refreshed event list, re-locating the cursor by
// event id. New events arrive at the head, so when the list grows
// there the scroll offset shifts by the delta to keep the cursor row
// visually stable.
func (m *Model) SetEvents(events []*client.Event) {
	prevIdx := m.indexOf(m.cursorID)
	m.Events = events

	if m.cursorID == "" {
		if len(events) > 0 {
			m.cursor = 0
			m.cursorID = events[0].ID
		}
		return
	}

	newIdx := m.indexOf(m.cursorID)
	if newIdx < 0 {
		// The event aged out of the window; keep the same visual slot.
		if m.cursor >= len(events) {
			m.cursor = len(events) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
			m.cursorID = ""
		} else {
			m.cursorID = events[m.cursor].ID
		}
		return
	}

	if delta := newIdx - prevIdx; delta > 0 {
		m.scrollOffset += delta
	}
	m.cursor = newIdx
	m.clampScroll()
}

func (m *Model) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range m.Events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// CursorID returns the id of the event under the cursor.
func (m Model) CursorID() string {
	return m.cursorID
}

// ScrollOffset returns the index of the first visible event row.
func (m Model) ScrollOffset() int {
	return m.scrollOffset
}

// MoveCursor shifts the cursor by delta rows, scrolling as needed.
func (m *Model) MoveCursor(delta int) {
	if len(m.Events) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.Events) {
		m.cursor = len(m.Events) - 1
	}
	m.cursorID = m.Events[m.cursor].ID
	m.clampScroll()
}

func (m *Model) clampScroll() {
	rows := m.visibleRows()
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+rows {
		m.scrollOffset = m.cursor - rows + 1
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m Model) visibleRows() int {
	rows := m.Height - 9
	if rows < 3 {
		rows = 3
	}
	return rows
}

// ToggleExpand opens or closes the markdown view of the cursor event.
func (m *Model) ToggleExpand() {
	if m.expandedID != "" {
		m.expandedID = ""
		return
	}
	if len(m.Events) == 0 {
		return
	}
	e := m.Events[m.cursor]
	m.expandedID = e.ID
	m.viewport.SetContent(m.renderMarkdown(e))
	m.viewport.GotoTop()
}

// ScrollExpanded moves the expanded viewport.
func (m *Model) ScrollExpanded(delta int) {
	if m.expandedID == "" {
		return
	}
	if delta < 0 {
		m.viewport.LineUp(-delta)
	} else {
		m.viewport.LineDown(delta)
	}
}

func (m *Model) renderMarkdown(e *client.Event) string {
	content := e.Content
	if content == "" && e.ErrorMessage != "" {
		content = e.ErrorMessage
	}
	if content == "" {
		return theme.StyleDimmed.Render("(no content)")
	}
	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.mdStyle),
			glamour.WithWordWrap(m.viewport.Width),
		)
		if err != nil {
			return content
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// View renders the full panel.
func (m Model) View() string {
	if m.Session == nil {
		return ""
	}
	var b strings.Builder
	m.renderHeader(&b)

	if m.expandedID != "" {
		b.WriteString(m.viewport.View() + "\n")
		b.WriteString(styleFooter.Render("[space] collapse  [j/k] scroll  [esc] back"))
	} else {
		m.renderEventList(&b)
		b.WriteString(styleFooter.Render("[space] expand  [j/k] move  [esc] back"))
	}

	width := m.Width
	if width < 40 {
		width = 40
	}
	return stylePanel.Width(width - 2).Render(b.String())
}

func (m Model) renderHeader(b *strings.Builder) {
	s := m.Session
	title := theme.StyleHeader.Render("Session: " + displayName(s))
	b.WriteString(title + "\n")

	writeRow(b, "Agent", theme.AgentBadge(s.AgentType)+" "+s.AgentType)
	if s.ModelID != "" {
		writeRow(b, "Model", lipgloss.NewStyle().Foreground(theme.ModelColor(s.ModelID)).Render(s.ModelID))
	}
	writeRow(b, "Status", lipgloss.NewStyle().Foreground(theme.StatusColor(s.Status)).Render(s.Status))
	writeRow(b, "Project", truncate(s.ProjectPath, 48))
	writeRow(b, "Tokens", fmt.Sprintf("%d in / %d out  ($%.4f)", s.TokensInput, s.TokensOutput, s.EstimatedCost))
	writeRow(b, "Activity", fmt.Sprintf("%d msgs  %d tool calls, last %s", s.MessageCount, s.ToolCallCount, formatAge(s.LastActivityAt)))
	b.WriteString("\n")
}

func (m Model) renderEventList(b *strings.Builder) {
	if len(m.Events) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  No events yet") + "\n")
		return
	}

	end := m.scrollOffset + m.visibleRows()
	if end > len(m.Events) {
		end = len(m.Events)
	}
	for i := m.scrollOffset; i < end; i++ {
		b.WriteString(m.renderEventRow(m.Events[i], i == m.cursor) + "\n")
	}
	if end < len(m.Events) {
		b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("  … %d more", len(m.Events)-end)) + "\n")
	}
}

func (m Model) renderEventRow(e *client.Event, selected bool) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}
	ts := theme.StyleDimmed.Render(e.Timestamp.Local().Format("15:04:05"))
	kind := lipgloss.NewStyle().Foreground(eventColor(e.EventType)).Width(20).Render(e.EventType)

	preview := e.Content
	if preview == "" {
		switch {
		case e.ToolName != "":
			preview = e.ToolName
		case e.FilePath != "":
			preview = e.FilePath
		case e.ErrorMessage != "":
			preview = e.ErrorMessage
		}
	}
	preview = strings.ReplaceAll(preview, "\n", " ")
	if len(preview) > previewLen {
		preview = preview[:previewLen-1] + "…"
	}

	return prefix + ts + " " + kind + " " + styleValue.Render(preview)
}

func eventColor(eventType string) lipgloss.Color {
	switch eventType {
	case "error":
		return theme.ColorDanger
	case "tool_start", "tool_complete", "tool_executed":
		return theme.ColorWarning
	case "prompt_received":
		return theme.ColorAccent
	case "response_generated", "thinking":
		return theme.ColorClaude
	case "file_read", "file_modified":
		return theme.ColorHealthy
	default:
		return theme.ColorDimmed
	}
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func displayName(s *client.Session) string {
	if s.ProjectPath != "" {
		parts := strings.Split(s.ProjectPath, "/")
		return parts[len(parts)-1]
	}
	if len(s.ID) >= 8 {
		return s.ID[:8]
	}
	return s.ID
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}
