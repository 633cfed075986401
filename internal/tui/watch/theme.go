// Package watch implements the armsd arm watch dashboard: a live view of
// every arm's Beta belief fed by the API's /events stream.
package watch

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Palette entries adapt to light and dark terminals.
var (
	colGood    = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	colBad     = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	colSample  = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	colMuted   = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
	colFaint   = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#30363D"}
	colAccent  = lipgloss.AdaptiveColor{Light: "#8250DF", Dark: "#A371F7"}
	colHeading = lipgloss.AdaptiveColor{Light: "#1F2328", Dark: "#F0F6FC"}
)

// Theme holds every style the dashboard renders with.
type Theme struct {
	Success lipgloss.Style
	Failure lipgloss.Style
	Sampled lipgloss.Style
	Pruned  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	fg := func(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Theme{
		Success:   fg(colGood),
		Failure:   fg(colBad),
		Sampled:   fg(colSample),
		Pruned:    fg(colMuted).Strikethrough(true),
		Border:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colAccent),
		Title:     fg(colHeading).Bold(true).Padding(0, 1),
		Dim:       fg(colMuted),
		Highlight: fg(colAccent),
		PulseOn:   fg(colGood),
		PulseOff:  fg(colFaint),
	}
}

// tableStyles styles the arms table to match t.
func (t Theme) tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		Foreground(colHeading).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colFaint).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(colHeading).Background(colAccent).Bold(false)
	return s
}
