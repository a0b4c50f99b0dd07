package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 2)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	Subtle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688"))

	MetricLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899")).
			Width(14)

	MetricValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	StatusDescending = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#00ff88"))

	StatusAscending = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffaa00"))

	StatusError = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff4444"))

	KeyHint = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688")).
		Italic(true)

	BarFull  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	BarHalf  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	BarEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// ExtensionBar draws an engine extension in [0,1]: full is an air-filled
// chamber, empty a flooded one.
func ExtensionBar(ext float64, width int) string {
	filled := int(ext * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case ext > 0.66:
		return BarFull.Render(bar)
	case ext > 0.33:
		return BarHalf.Render(bar)
	default:
		return BarEmpty.Render(bar)
	}
}

func Separator(width int) string {
	mid := width / 2
	left := strings.Repeat("─", mid-3)
	right := strings.Repeat("─", width-mid-3)
	return Subtle.Render(left + " ◆ " + right)
}
