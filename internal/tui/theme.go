package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the console styles.
type Theme struct {
	Title     lipgloss.Style
	Label     lipgloss.Style
	Muted     lipgloss.Style
	Info      lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Countdown lipgloss.Style
	Expired   lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Panel     lipgloss.Style
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7AA2F7")),
	Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("#C0CAF5")),
	Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#565F89")),
	Info:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCFFF")),
	Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")),
	Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")),
	Countdown: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0AF68")),
	Expired:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7768E")),
	Tab:       lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#565F89")),
	ActiveTab: lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#1A1B26")).Background(lipgloss.Color("#7AA2F7")),
	Panel:     lipgloss.NewStyle().Padding(1, 2),
}
