// Package ui renders the live progress view for pipeline runs.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("#8BC34A")
	errorColor   = lipgloss.Color("#e53935")
	infoColor    = lipgloss.Color("#2196F3")
	warnColor    = lipgloss.Color("#FFC107")
	mutedColor   = lipgloss.Color("245")
)

// Styles holds the styled components of the progress view.
type Styles struct {
	Title   lipgloss.Style
	Done    lipgloss.Style
	Active  lipgloss.Style
	Pending lipgloss.Style
	Failed  lipgloss.Style
	Stage   lipgloss.Style
	Message lipgloss.Style
	Help    lipgloss.Style
}

// DefaultStyles returns the symphony palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(infoColor),
		Done:    lipgloss.NewStyle().Foreground(successColor),
		Active:  lipgloss.NewStyle().Foreground(infoColor).Bold(true),
		Pending: lipgloss.NewStyle().Foreground(mutedColor),
		Failed:  lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		Stage:   lipgloss.NewStyle().Foreground(mutedColor).PaddingLeft(4),
		Message: lipgloss.NewStyle().Foreground(warnColor),
		Help:    lipgloss.NewStyle().Foreground(mutedColor),
	}
}
