package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7c3aed")
	ColorSecondary = lipgloss.Color("#3b82f6")
	ColorSuccess   = lipgloss.Color("#22c55e")
	ColorError     = lipgloss.Color("#ef4444")
	ColorTextMuted = lipgloss.Color("#6b7280")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	WaveStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			MarginTop(1)

	// Status styles
	PendingStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	RunningStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	CompletedStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	FailedStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SkippedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)
)
