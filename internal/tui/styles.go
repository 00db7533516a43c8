package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/muurk/mypv/internal/version"
)

// AppName is shown in the dashboard header
const AppName = "MYPV DASHBOARD"

// Layout constants for responsive terminal width
const (
	MinTerminalWidth  = 60
	MaxContentWidth   = 120
	DefaultTermHeight = 24
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple
	SuccessColor = lipgloss.Color("#43BF6D") // Green
	WarningColor = lipgloss.Color("#FFA500") // Orange
	ErrorColor   = lipgloss.Color("#FF5555") // Red
	TextColor    = lipgloss.Color("#FFFFFF")
	SubtleColor  = lipgloss.Color("#626262")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	onlineStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	staleStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SubtleColor).
			Padding(0, 1)

	selectedCardStyle = cardStyle.
				BorderForeground(PrimaryColor)
)

// TerminalSize returns the stdout terminal size clamped to the supported
// range, falling back to defaults when stdout is not a terminal.
func TerminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, DefaultTermHeight
	}
	return clampWidth(width), height
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func clampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// renderHeader renders the application name and version line.
func renderHeader(width int) string {
	left := titleStyle.Render(AppName)
	right := subtleStyle.Render(" " + version.Version)
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(PrimaryColor).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
}

// renderFooter renders the status line above the help text.
func renderFooter(status, help string, width int) string {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(PrimaryColor).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, status, help))
}
