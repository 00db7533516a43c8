package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette, shared with the dashboard
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple
	SuccessColor = lipgloss.Color("#43BF6D") // Green
	WarningColor = lipgloss.Color("#FFA500") // Orange
	ErrorColor   = lipgloss.Color("#FF5555") // Red
	MutedColor   = lipgloss.Color("#626262") // Gray
	TextColor    = lipgloss.Color("#FFFFFF")
)

// Layout constants
const (
	MinWidth = 50
	MaxWidth = 100
)

// Result markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "!"
)

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	tipTitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Bold(true)

	tipStyle = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// TerminalWidth returns the stdout width clamped to MinWidth..MaxWidth.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinWidth
	}
	return clamp(width)
}

func clamp(width int) int {
	if width < MinWidth {
		return MinWidth
	}
	if width > MaxWidth {
		return MaxWidth
	}
	return width
}

func boxStyle(color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 1)
}
