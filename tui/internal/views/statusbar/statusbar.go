// Package statusbar renders the single-line footer: connection state,
// session counts by status, and daemon version.
package statusbar

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
	"github.com/robertcprice/agent-monitor/tui/internal/theme"
)

var (
	styleConnected = lipgloss.NewStyle().Foreground(theme.ColorHealthy)
	styleOffline   = lipgloss.NewStyle().Foreground(theme.ColorWarning)
	styleCount     = lipgloss.NewStyle().Foreground(theme.ColorBright)
	styleDim       = lipgloss.NewStyle().Foreground(theme.ColorDimmed)
)

// Model holds the status line state.
type Model struct {
	Width     int
	Connected bool
	Live      bool // push frames flowing, not just polls
	Version   string
	Sessions  []*client.Session
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the footer line.
func (m Model) View() string {
	var parts []string

	if m.Connected {
		mode := "polling"
		if m.Live {
			mode = "live"
		}
		parts = append(parts, styleConnected.Render("● Connected ("+mode+")"))
	} else {
		parts = append(parts, styleOffline.Render("○ Connecting…"))
	}

	active, idle, done, crashed := countByStatus(m.Sessions)
	parts = append(parts, styleCount.Render(fmt.Sprintf("%d active", active)))
	if idle > 0 {
		parts = append(parts, styleDim.Render(fmt.Sprintf("%d idle", idle)))
	}
	if done > 0 {
		parts = append(parts, styleDim.Render(fmt.Sprintf("%d done", done)))
	}
	if crashed > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorDanger).
			Render(fmt.Sprintf("%d crashed", crashed)))
	}

	if m.Version != "" {
		parts = append(parts, styleDim.Render("daemon v"+m.Version))
	}

	line := strings.Join(parts, styleDim.Render("  │  "))
	return lipgloss.NewStyle().Width(m.Width).Padding(0, 1).Render(line)
}

func countByStatus(list []*client.Session) (active, idle, done, crashed int) {
	for _, s := range list {
		switch s.Status {
		case client.StatusActive:
			active++
		case client.StatusIdle:
			idle++
		case client.StatusCompleted:
			done++
		case client.StatusCrashed:
			crashed++
		}
	}
	return
}
