// Package ux renders preflight's user-facing output: handler progress,
// warnings, pending tool calls and confirmation prompts.
package ux

import (
	"github.com/charmbracelet/lipgloss"
)

// Semantic colors
var (
	Primary     = lipgloss.Color("#8BC34A") // Lime Green
	Destructive = lipgloss.Color("#e53935") // Red
	Warning     = lipgloss.Color("#FFC107") // Yellow
	Info        = lipgloss.Color("#2196F3") // Blue
	Muted       = lipgloss.Color("#6b7280")
)

// Styles holds the lipgloss styles used by Console.
type Styles struct {
	Output  lipgloss.Style
	Bold    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Prompt  lipgloss.Style
	Quote   lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Output: lipgloss.NewStyle(),

		Bold: lipgloss.NewStyle().
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(Muted),

		Prompt: lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true),

		Quote: lipgloss.NewStyle().
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(Info),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Output:  plain,
		Bold:    plain,
		Warning: plain,
		Error:   plain,
		Muted:   plain,
		Prompt:  plain,
		Quote:   plain,
	}
}
