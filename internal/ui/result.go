package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Kind selects a result's color and marker.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindWarning
)

// Detail is one key/value line.
type Detail struct {
	Key   string
	Value string
}

// Result is a titled result box.
type Result struct {
	Kind            Kind
	Title           string
	Details         []Detail
	Err             error
	Troubleshooting []string
}

// Success builds a success result.
func Success(title string, details ...Detail) Result {
	return Result{Kind: KindSuccess, Title: title, Details: details}
}

// Warning builds a warning result.
func Warning(title string, details ...Detail) Result {
	return Result{Kind: KindWarning, Title: title, Details: details}
}

// Failure builds a failure result with troubleshooting tips.
func Failure(title string, err error, tips ...string) Result {
	return Result{Kind: KindFailure, Title: title, Err: err, Troubleshooting: tips}
}

func (r Result) style() (lipgloss.Color, string) {
	switch r.Kind {
	case KindFailure:
		return ErrorColor, FailureMarker
	case KindWarning:
		return WarningColor, WarningMarker
	default:
		return SuccessColor, SuccessMarker
	}
}

// Render returns the box at width.
func (r Result) Render(width int) string {
	width = clamp(width)
	color, marker := r.style()

	lines := []string{
		lipgloss.NewStyle().Foreground(color).Bold(true).Render(marker + "  " + r.Title),
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
		for _, d := range r.Details {
			lines = append(lines, keyStyle.Render(d.Key+":")+valueStyle.Render(d.Value))
		}
	}
	if r.Err != nil {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(ErrorColor).Render("Error: "+r.Err.Error()))
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, "", tipTitleStyle.Render("Troubleshooting:"))
		for _, tip := range r.Troubleshooting {
			lines = append(lines, tipStyle.Render("  • "+tip))
		}
	}

	return boxStyle(color, width).Render(strings.Join(lines, "\n"))
}

// String renders at the terminal width.
func (r Result) String() string {
	return r.Render(TerminalWidth())
}
