package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/hrnotify/internal/conn"
	"github.com/nhle/hrnotify/internal/theme"
)

// Layout holds the terminal dimensions and the fixed bar heights.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and status bars.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left between the bars.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders the title on the left and right-aligned segments
// on the right, filling the gap with the header background.
func (l Layout) RenderHeader(title string, right ...string) string {
	left := theme.HeaderStyle.Render(title)

	segments := []string{left}
	used := lipgloss.Width(left)
	var tail []string
	for _, r := range right {
		if r == "" {
			continue
		}
		seg := theme.HeaderStyle.Render(r)
		used += lipgloss.Width(seg)
		tail = append(tail, seg)
	}

	segments = append(segments, l.filler(l.Width-used, theme.HeaderStyle))
	segments = append(segments, tail...)
	return lipgloss.JoinHorizontal(lipgloss.Top, segments...)
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		rendered,
		l.filler(l.Width-lipgloss.Width(rendered), theme.StatusBarStyle),
	)
}

func (l Layout) filler(width int, style lipgloss.Style) string {
	return lipgloss.NewStyle().
		Width(max(width, 0)).
		Background(style.GetBackground()).
		Render("")
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// UnreadBadge renders n as a counter, or nothing when n is zero.
func UnreadBadge(label string, n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%s %d", label, n)
}

// ConnectionIndicator describes the socket state for the header.
func ConnectionIndicator(s conn.State) string {
	switch s {
	case conn.StateOpen:
		return "● live"
	case conn.StateConnecting:
		return "◌ connecting"
	default:
		return "○ offline"
	}
}
