package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerForegroupColor = lipgloss.AdaptiveColor{Light: "#a60853", Dark: "#F652A0"}
	bannerBorderColor    = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	bannerTitleColor     = lipgloss.AdaptiveColor{Light: "#00AAAA", Dark: "#00FFFF"}
	bannerMaxWidth       = 80
	bannerStyle          = lipgloss.NewStyle().
				Padding(0, 1).
				AlignVertical(lipgloss.Top).
				AlignHorizontal(lipgloss.Left).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(bannerBorderColor)
	bannerBodyStyle  = lipgloss.NewStyle().MaxWidth(bannerMaxWidth).Foreground(bannerForegroupColor)
	bannerTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(bannerTitleColor)
)

// ShowBanner writes a bordered title and body to w. Nothing is written
// without a TTY.
func ShowBanner(w io.Writer, title string, body string) {
	if !HasTTY {
		return
	}
	block := bannerTitleStyle.Render(title) + "\n" + bannerBodyStyle.Render(body)
	fmt.Fprintln(w, bannerStyle.Render(block))
}
