// Package theme provides the Lip Gloss color palette and reusable
// styles for the monitor TUI. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Agent colors.
var (
	ColorClaude  = lipgloss.Color("#a855f7")
	ColorCursor  = lipgloss.Color("#3b82f6")
	ColorAider   = lipgloss.Color("#22c55e")
	ColorGemini  = lipgloss.Color("#4285f4")
	ColorCodex   = lipgloss.Color("#10b981")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Status colors.
var (
	ColorActive    = lipgloss.Color("#16a34a")
	ColorIdle      = lipgloss.Color("#4b5563")
	ColorCompleted = lipgloss.Color("#2563eb")
	ColorCrashed   = lipgloss.Color("#dc2626")
	ColorUnknown   = lipgloss.Color("#374151")
)

// Cost bar thresholds, dollars over the trailing day.
var (
	ColorCostLow  = lipgloss.Color("#22c55e")
	ColorCostMid  = lipgloss.Color("#d97706")
	ColorCostHigh = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorAccent  = lipgloss.Color("#06b6d4")
)

// AgentColor returns the color for an agent type name.
func AgentColor(agentType string) lipgloss.Color {
	switch agentType {
	case "claude_code":
		return ColorClaude
	case "cursor":
		return ColorCursor
	case "aider":
		return ColorAider
	case "gemini":
		return ColorGemini
	case "codex":
		return ColorCodex
	default:
		return ColorDefault
	}
}

// StatusColor returns the color for a session status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "active":
		return ColorActive
	case "idle":
		return ColorIdle
	case "completed":
		return ColorCompleted
	case "crashed":
		return ColorCrashed
	default:
		return ColorUnknown
	}
}

// StatusGlyph returns a Unicode glyph for a session status.
func StatusGlyph(status string) string {
	switch status {
	case "active":
		return "●"
	case "idle":
		return "◌"
	case "completed":
		return "✓"
	case "crashed":
		return "✗"
	default:
		return "?"
	}
}

// AgentBadge returns a colored badge string for an agent type.
func AgentBadge(agentType string) string {
	var short string
	switch agentType {
	case "claude_code":
		short = "[C]"
	case "cursor":
		short = "[U]"
	case "aider":
		short = "[A]"
	case "gemini":
		short = "[G]"
	case "codex":
		short = "[X]"
	default:
		short = "[?]"
	}
	return lipgloss.NewStyle().Foreground(AgentColor(agentType)).Render(short)
}

// ModelColor keys off substrings so versioned model ids share a hue.
func ModelColor(model string) lipgloss.Color {
	switch {
	case strings.Contains(model, "opus"):
		return ColorClaude
	case strings.Contains(model, "sonnet"):
		return ColorCursor
	case strings.Contains(model, "haiku"):
		return ColorAider
	case strings.Contains(model, "gemini"):
		return ColorGemini
	case strings.Contains(model, "gpt"), strings.Contains(model, "o3"):
		return ColorCodex
	default:
		return ColorDefault
	}
}

// CostColor returns the color for a trailing-day cost in dollars.
func CostColor(cost float64) lipgloss.Color {
	switch {
	case cost > 10:
		return ColorCostHigh
	case cost > 2:
		return ColorCostMid
	default:
		return ColorCostLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
