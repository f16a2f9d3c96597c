// Package sessions renders the scrolling session table.
package sessions

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
	"github.com/robertcprice/agent-monitor/tui/internal/theme"
)

// Column widths, fixed layout.
const (
	colName   = 24
	colAgent  = 12
	colModel  = 14
	colTokens = 10
	colTools  = 7
	colMsgs   = 7
	colCost   = 9
	colStatus = 11
)

// Model holds the visible-window state of the session table. The app
// owns the data and the selection; this view only renders.
type Model struct {
	Width  int
	Height int
}

// New creates a sessions view.
func New() Model {
	return Model{}
}

// visibleRows is how many session lines fit under the header rows.
func (m Model) visibleRows() int {
	rows := m.Height - 3
	if rows < 1 {
		rows = 1
	}
	return rows
}

// View renders the table window starting at offset with the row at
// selectedIdx highlighted. Indexes are into the full list.
func (m Model) View(list []*client.Session, selectedIdx, offset int) string {
	dim := lipgloss.NewStyle().Foreground(theme.ColorDimmed)

	header := fmt.Sprintf("  %-*s %-*s %-*s %*s %*s %*s %*s %-*s",
		colName, "Project",
		colAgent, "Agent",
		colModel, "Model",
		colTokens, "Tokens",
		colTools, "Tools",
		colMsgs, "Msgs",
		colCost, "Cost",
		colStatus, "Status",
	)
	lines := []string{
		theme.StyleHeader.Render("  Sessions"),
		dim.Render(header),
		dim.Render("  " + strings.Repeat("─", min(m.Width-4, 100))),
	}

	if len(list) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No sessions detected"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	end := offset + m.visibleRows()
	if end > len(list) {
		end = len(list)
	}
	if offset > end {
		offset = end
	}
	for i := offset; i < end; i++ {
		lines = append(lines, m.renderRow(list[i], i == selectedIdx))
	}
	if end < len(list) {
		lines = append(lines, dim.Render(fmt.Sprintf("  … %d more", len(list)-end)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderRow(s *client.Session, selected bool) string {
	prefix := "  "
	if selected {
		prefix = "> "
	}

	name := DisplayName(s)
	if len(name) > colName-1 {
		name = name[:colName-2] + "…"
	}
	nameStyle := lipgloss.NewStyle().Foreground(theme.AgentColor(s.AgentType)).Width(colName)
	if selected {
		nameStyle = nameStyle.Bold(true)
	}

	dim := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	bright := lipgloss.NewStyle().Foreground(theme.ColorBright)

	line := fmt.Sprintf("%s%s %s %s %s %s %s %s %s",
		prefix,
		nameStyle.Render(name),
		dim.Width(colAgent).Render(s.AgentType),
		lipgloss.NewStyle().Foreground(theme.ModelColor(s.ModelID)).Width(colModel).Render(shortModel(s.ModelID)),
		bright.Width(colTokens).Align(lipgloss.Right).Render(FormatCount(s.TokensInput+s.TokensOutput)),
		bright.Width(colTools).Align(lipgloss.Right).Render(fmt.Sprintf("%d", s.ToolCallCount)),
		bright.Width(colMsgs).Align(lipgloss.Right).Render(fmt.Sprintf("%d", s.MessageCount)),
		bright.Width(colCost).Align(lipgloss.Right).Render(fmt.Sprintf("$%.4f", s.EstimatedCost)),
		lipgloss.NewStyle().Foreground(theme.StatusColor(s.Status)).Width(colStatus).Render(theme.StatusGlyph(s.Status)+" "+s.Status),
	)
	return line
}

// DisplayName prefers the project directory name, then the model, then
// a truncated id.
func DisplayName(s *client.Session) string {
	if s.ProjectPath != "" {
		return filepath.Base(s.ProjectPath)
	}
	if s.ModelID != "" {
		return s.ModelID
	}
	if len(s.ID) >= 8 {
		return s.ID[:8]
	}
	return s.ID
}

// shortModel returns a compact model label.
func shortModel(model string) string {
	switch {
	case strings.Contains(model, "opus"):
		return "opus"
	case strings.Contains(model, "sonnet"):
		return "sonnet"
	case strings.Contains(model, "haiku"):
		return "haiku"
	case strings.Contains(model, "gemini"):
		return "gemini"
	default:
		if len(model) > colModel-2 {
			return model[:colModel-2]
		}
		return model
	}
}

// FormatCount formats large numbers with K/M suffixes.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
