// Package watch implements "herald system watch", a terminal dashboard fed
// by the API's /healthz and /events endpoints.
package watch

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Theme keeps every colour the dashboard uses in one place.
type Theme struct {
	OK      lipgloss.Style
	Running lipgloss.Style
	Failed  lipgloss.Style
	Denied  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	DotOn  lipgloss.Style
	DotOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Denied:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#25D366")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		DotOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		DotOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

func (t Theme) tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("22")).
		Bold(false)
	return s
}
