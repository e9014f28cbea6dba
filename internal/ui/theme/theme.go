// Package theme holds the lipgloss styles used by the command-line output.
package theme

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Warning   = lipgloss.Color("#EAB308") // Amber
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Label = lipgloss.NewStyle().
		Foreground(TextDim)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Prompt = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 2)
)

// Outcomes
var (
	Correct = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Incorrect = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	Warn = lipgloss.NewStyle().
		Foreground(Warning)
)

// Progress bar
var (
	ProgressFilled = lipgloss.NewStyle().
			Background(Secondary)

	ProgressEmpty = lipgloss.NewStyle().
			Background(Border)
)

// learning state → color
var stateColors = map[string]lipgloss.Style{
	"new":      lipgloss.NewStyle().Foreground(Accent),
	"learning": lipgloss.NewStyle().Foreground(Warning),
	"review":   lipgloss.NewStyle().Foreground(Secondary),
	"mastered": lipgloss.NewStyle().Foreground(Success),
}

// State renders a learning state name in its color.
func State(name string) string {
	if s, ok := stateColors[name]; ok {
		return s.Render(name)
	}
	return Body.Render(name)
}

// Tier renders a queue tier name: high in accent, low dimmed.
func Tier(name string) string {
	switch name {
	case "high":
		return lipgloss.NewStyle().Foreground(Accent).Bold(true).Render(name)
	case "low":
		return Label.Render(name)
	}
	return Body.Render(name)
}

// review status → color
var statusColors = map[string]lipgloss.Style{
	"new":      lipgloss.NewStyle().Foreground(Accent),
	"due":      lipgloss.NewStyle().Foreground(Warning),
	"overdue":  lipgloss.NewStyle().Foreground(Error).Bold(true),
	"mastered": lipgloss.NewStyle().Foreground(Success),
}

// ReviewStatus renders an item's review status in its color.
func ReviewStatus(name string) string {
	if s, ok := statusColors[name]; ok {
		return s.Render(name)
	}
	return Body.Render(name)
}

// Pad right-pads s with spaces to width display cells. Escape sequences
// and wide runes are measured the way a terminal draws them.
func Pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// Breaker renders a circuit breaker state; anything but closed is a warning.
func Breaker(state string) string {
	if state == "closed" {
		return Correct.Render(state)
	}
	return Warn.Render(state)
}
