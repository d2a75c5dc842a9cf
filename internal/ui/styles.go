// Package ui renders mt terminal output.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/satyaki-up/matorral/internal/issues"
)

var (
	ColorTodo = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorInProgress = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorDone = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
)

var (
	TodoStyle       = lipgloss.NewStyle().Foreground(ColorTodo)
	InProgressStyle = lipgloss.NewStyle().Foreground(ColorInProgress)
	DoneStyle       = lipgloss.NewStyle().Foreground(ColorDone)
	FailStyle       = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle      = lipgloss.NewStyle().Foreground(ColorTodo)
	AccentStyle     = lipgloss.NewStyle().Foreground(ColorAccent)
	HeaderStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

const (
	IconDone = "✓"
	IconFail = "✗"
	IconUp   = "↑"
	IconDown = "↓"
)

// Tree characters for hierarchical display
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeIndent = "   "
)

const SeparatorLight = "──────────────────────────────────────────"

func categoryStyle(c issues.Category) lipgloss.Style {
	switch c {
	case issues.CategoryInProgress:
		return InProgressStyle
	case issues.CategoryDone:
		return DoneStyle
	default:
		return TodoStyle
	}
}

// RenderStatus renders a status label colored by its category.
func RenderStatus(s issues.Status) string {
	return categoryStyle(s.Category()).Render(s.Label())
}

func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

func RenderFail(s string) string {
	return FailStyle.Render(s)
}

func RenderDone(s string) string {
	return DoneStyle.Render(s)
}

// RenderHeader renders a section header in uppercase.
func RenderHeader(s string) string {
	return HeaderStyle.Render(strings.ToUpper(s))
}

func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}
