package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	textStyleColor      = lipgloss.AdaptiveColor{Light: "#36EEE0", Dark: "#00FFFF"}
	mutedStyleColor     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	warningStyleColor   = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFA500"}
	titleStyleColor     = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
	secondaryStyleColor = lipgloss.AdaptiveColor{Light: "#214358", Dark: "#AEB8C4"}
	okStyleColor        = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	nameStyle           = lipgloss.NewStyle().Foreground(textStyleColor)
)

func Title(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor).Render(text)
}

func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(textStyleColor).Render(text)
}

func Secondary(text string) string {
	return lipgloss.NewStyle().Foreground(secondaryStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

func Warning(text string) string {
	return lipgloss.NewStyle().Foreground(warningStyleColor).Render(text)
}

// Name renders a terminal name.
func Name(name string) string {
	return nameStyle.Render(name)
}

// Names renders a comma separated list of terminal names, or a muted
// placeholder when there are none.
func Names(names []string) string {
	if len(names) == 0 {
		return Muted("(none)")
	}
	rendered := make([]string, len(names))
	for i, name := range names {
		rendered[i] = Name(name)
	}
	return strings.Join(rendered, ", ")
}

// Status renders a connection status, green once connected.
func Status(status string) string {
	switch status {
	case "connected":
		return lipgloss.NewStyle().Foreground(okStyleColor).Render(status)
	case "connecting":
		return Warning(status)
	default:
		return Muted(status)
	}
}

func MaxWidth(text string, width int) string {
	if lipgloss.Width(text) > width && width > 3 {
		text = text[:width-3] + "..."
	}
	return text
}
