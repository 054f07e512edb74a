package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Score lipgloss.Style
	Help  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Score: lipgloss.NewStyle().Foreground(t.Dim),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// StatusLine renders a labeled status line, e.g. for search hits:
//
//	mem_4f2a81  0.93  Alice prefers tea over coffee
func (s Styles) StatusLine(label string, score float64, text string) string {
	return fmt.Sprintf("%s  %s  %s",
		s.Label.Render(label),
		s.Score.Render(fmt.Sprintf("%.2f", score)),
		text)
}

// Rule renders a dim horizontal rule of the given width.
func (s Styles) Rule(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Help.Render(strings.Repeat("─", width))
}
