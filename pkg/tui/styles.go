package tui

import "github.com/charmbracelet/lipgloss"

type Styles struct {
	Title   lipgloss.Style
	Welcome lipgloss.Style
	User    lipgloss.Style
	Bot     lipgloss.Style
	Label   lipgloss.Style
	Status  lipgloss.Style
	Error   lipgloss.Style
	Input   lipgloss.Style
}

func DefaultStyles() Styles {
	accent := lipgloss.AdaptiveColor{Light: "#0e639c", Dark: "#3794ff"}
	muted := lipgloss.AdaptiveColor{Light: "#6c6c6c", Dark: "#9d9d9d"}
	border := lipgloss.AdaptiveColor{Light: "#c8c8c8", Dark: "#3c3c3c"}

	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		Welcome: lipgloss.NewStyle().Foreground(muted).Align(lipgloss.Center),
		User: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Bot: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Label:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		Status: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#f14c4c")).Padding(0, 1),
		Input: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(border),
	}
}
