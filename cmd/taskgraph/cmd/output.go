package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("42")
	colorError   = lipgloss.Color("196")
	colorWarn    = lipgloss.Color("214")
	colorDim     = lipgloss.Color("245")
	colorAccent  = lipgloss.Color("39")
)

func style(fg lipgloss.Color) lipgloss.Style {
	if noColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(fg)
}

func successStyle() lipgloss.Style { return style(colorSuccess).Bold(!noColor) }
func errorStyle() lipgloss.Style   { return style(colorError).Bold(!noColor) }
func warnStyle() lipgloss.Style    { return style(colorWarn) }
func dimStyle() lipgloss.Style     { return style(colorDim) }
func headerStyle() lipgloss.Style  { return style(colorAccent).Bold(!noColor) }

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMarkdown formats text for the terminal. Tools commonly answer in
// markdown, so the result is rendered rather than printed raw when asked.
func renderMarkdown(text string) (string, error) {
	styleOpt := glamour.WithAutoStyle()
	if noColor {
		styleOpt = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(80))
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	return renderer.Render(text)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
