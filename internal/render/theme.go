// Package render turns conversation entries, health state and context blobs
// into terminal output.
package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styles used by Renderer.
type Theme struct {
	Name       string
	UserLabel  lipgloss.Style
	AgentLabel lipgloss.Style
	StepHeader lipgloss.Style
	Section    lipgloss.Style
	Code       lipgloss.Style
	Muted      lipgloss.Style
	Online     lipgloss.Style
	Offline    lipgloss.Style
	Pending    lipgloss.Style
	Active     lipgloss.Style
	Warning    lipgloss.Style
}

// DefaultTheme mirrors the web client's palette: blue user bubbles, green
// agent bubbles, gray step blocks.
func DefaultTheme() *Theme {
	return &Theme{
		Name:       "default",
		UserLabel:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		AgentLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("35")),
		StepHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		Section:    lipgloss.NewStyle().Bold(true),
		Code:       lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		Muted:      lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("242")),
		Online:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		Offline:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		Active:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")).Background(lipgloss.AdaptiveColor{Light: "153", Dark: "17"}),
		Warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// PlainTheme applies no styling.
func PlainTheme() *Theme {
	plain := lipgloss.NewStyle()
	return &Theme{
		Name:       "plain",
		UserLabel:  plain,
		AgentLabel: plain,
		StepHeader: plain,
		Section:    plain,
		Code:       plain,
		Muted:      plain,
		Online:     plain,
		Offline:    plain,
		Pending:    plain,
		Active:     plain,
		Warning:    plain,
	}
}

// ColorSupported reports whether the terminal can display colors.
func ColorSupported() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// AutoTheme picks DefaultTheme on color terminals and PlainTheme otherwise.
func AutoTheme() *Theme {
	if ColorSupported() {
		return DefaultTheme()
	}
	return PlainTheme()
}
