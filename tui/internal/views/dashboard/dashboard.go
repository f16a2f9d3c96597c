// Package dashboard renders the aggregate header: trailing-day
// metrics and a spring-animated daily cost bar.
package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertcprice/agent-monitor/tui/internal/client"
	"github.com/robertcprice/agent-monitor/tui/internal/theme"
	"github.com/robertcprice/agent-monitor/tui/internal/views/sessions"
)

const (
	animFPS = 30
	barLen  = 30

	// dailyBudget scales the cost bar; a full bar is this many dollars
	// spent in the trailing day.
	dailyBudget = 20.0
)

// AnimTickMsg drives the spring between data refreshes.
type AnimTickMsg time.Time

// Model holds the dashboard state.
type Model struct {
	Width   int
	metrics *client.SummaryMetrics

	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
}

// New creates a dashboard model.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(animFPS), 6.0, 0.8),
	}
}

// SetMetrics updates the aggregates and retargets the cost bar.
func (m *Model) SetMetrics(metrics *client.SummaryMetrics) {
	m.metrics = metrics
	m.target = math.Min(metrics.TotalCost/dailyBudget, 1)
}

// Animating reports whether the bar is still moving toward its target.
func (m Model) Animating() bool {
	return math.Abs(m.pos-m.target) > 0.001 || math.Abs(m.vel) > 0.001
}

// Tick returns the next animation frame command.
func Tick() tea.Cmd {
	return tea.Tick(time.Second/animFPS, func(t time.Time) tea.Msg {
		return AnimTickMsg(t)
	})
}

// Update advances the spring one frame.
func (m *Model) Update() {
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
}

// View renders the header panel.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	statStyle := lipgloss.NewStyle().Padding(0, 1)
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	var stats []string
	if m.metrics != nil {
		stats = []string{
			statStyle.Foreground(theme.ColorBright).Render(
				fmt.Sprintf("Sessions: %d", m.metrics.TotalSessions)),
			statStyle.Foreground(theme.ColorHealthy).Render(
				fmt.Sprintf("Active: %d", m.metrics.ActiveSessions)),
			statStyle.Foreground(theme.ColorAccent).Render(
				fmt.Sprintf("Msgs: %s", sessions.FormatCount(m.metrics.TotalMessages))),
			statStyle.Foreground(theme.ColorWarning).Render(
				fmt.Sprintf("Tools: %s", sessions.FormatCount(m.metrics.TotalTools))),
			statStyle.Foreground(theme.CostColor(m.metrics.TotalCost)).Render(
				fmt.Sprintf("Cost 24h: $%.2f", m.metrics.TotalCost)),
		}
	} else {
		stats = []string{statStyle.Foreground(theme.ColorDimmed).Render("Loading metrics…")}
	}

	content := strings.Join(stats, sep) + sep + m.renderCostBar()

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderCostBar draws the animated fill at the spring's current
// position, colored by the actual target.
func (m Model) renderCostBar() string {
	pos := math.Max(0, math.Min(m.pos, 1))
	filled := int(pos * barLen)
	empty := barLen - filled

	var cost float64
	if m.metrics != nil {
		cost = m.metrics.TotalCost
	}
	color := theme.CostColor(cost)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", empty))
	return bar
}
