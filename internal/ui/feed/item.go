package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/theme"
)

// entryItem wraps a feed entry for bubbles/list.
type entryItem struct {
	entry feed.Entry
}

// FilterValue returns the string used for filtering.
func (i entryItem) FilterValue() string {
	return i.entry.Payload.Title + " " + i.entry.Payload.Sender
}

// delegate renders one notification per line.
type delegate struct {
	now func() time.Time
}

func (d delegate) Height() int                         { return 1 }
func (d delegate) Spacing() int                        { return 0 }
func (d delegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

// Render draws a single notification line.
func (d delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(entryItem)
	if !ok {
		return
	}
	fmt.Fprint(w, renderLine(it.entry, index == m.Index(), d.now()))
}

func renderLine(e feed.Entry, selected bool, now time.Time) string {
	marker := "●"
	if e.Read {
		marker = "○"
	}

	p := e.Payload
	parts := []string{
		marker,
		theme.ChannelStyle(e.Channel).Render(theme.ChannelLabel(e.Channel)),
	}
	if p.Status != "" {
		parts = append(parts, theme.StatusStyle(p.Status).Render(p.Status))
	}
	if p.Priority != "" {
		parts = append(parts, theme.PriorityStyle(p.Priority).Render(p.Priority))
	}

	title := p.Title
	if title == "" {
		title = p.Subtitle
	}
	parts = append(parts, title)
	if p.Sender != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorGray).Render("from "+p.Sender))
	}
	if p.AttachmentName != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorMagenta).Render("📎"))
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorGray).Render(relativeTime(e.Timestamp, now)))

	line := strings.Join(parts, " ")
	if e.Read {
		line = theme.DimmedStyle.Render(line)
	}
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
