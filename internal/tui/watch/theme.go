// Package watch is the `modhost watch` terminal view of a running host: its
// startup events, category progress and module outcomes.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every color of the view in one place.
type Theme struct {
	OK      lipgloss.Style
	Pending lipgloss.Style
	Failed  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	DotOn  lipgloss.Style
	DotOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
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

// outcome picks the style for a load outcome or startup state.
func (t Theme) outcome(s string) lipgloss.Style {
	switch s {
	case "success", "complete", "ok":
		return t.OK
	case "running", "":
		return t.Pending
	default:
		return t.Failed
	}
}
