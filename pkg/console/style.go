package console

import "github.com/charmbracelet/lipgloss"

// Theme defines the color scheme of the console.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Error   lipgloss.Color
	Link    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f5f"),
	Link:    lipgloss.Color("#5fafff"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Status    lipgloss.Style
	Banner    lipgloss.Style
	Failure   lipgloss.Style
	Source    lipgloss.Style
	Media     lipgloss.Style
}

// NewStyles creates styles from a theme. r may be nil for the default
// renderer.
func NewStyles(r *lipgloss.Renderer, t Theme) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Styles{
		User:      r.NewStyle().Bold(true),
		Assistant: r.NewStyle().Bold(true).Foreground(t.Primary),
		Status:    r.NewStyle().Italic(true).Foreground(t.Dim),
		Banner:    r.NewStyle().Bold(true).Foreground(t.Error).Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(t.Error),
		Failure:   r.NewStyle().Foreground(t.Error),
		Source:    r.NewStyle().Foreground(t.Dim),
		Media:     r.NewStyle().Underline(true).Foreground(t.Link),
	}
}
