// Package feed is the notification list view.
package feed

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/theme"
	"github.com/nhle/hrnotify/internal/unread"
)

// OpenMsg asks the parent to open a notification.
type OpenMsg struct {
	Item model.NotificationItem
}

// ClearMsg asks the parent to clear all notifications.
type ClearMsg struct{}

// Model is the notification list.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	role   model.Role
	counts unread.Counts
	width  int
	height int
}

// New creates the list for role.
func New(k *keys.KeyMap, role model.Role, width, height int) Model {
	l := list.New([]list.Item{}, delegate{now: time.Now}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:   l,
		keys:   k,
		role:   role,
		width:  width,
		height: height,
	}
}

// SetEntries replaces the rows, keeping the cursor where possible.
func (m *Model) SetEntries(entries []feed.Entry) tea.Cmd {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{entry: e}
	}
	return m.list.SetItems(items)
}

// SetCounts updates the unread counts shown in the title.
func (m *Model) SetCounts(c unread.Counts) {
	m.counts = c
	if c.Total > 0 {
		m.list.Title = fmt.Sprintf("Notifications · %d unread", c.Total)
	} else {
		m.list.Title = "Notifications"
	}
}

// Filtering reports whether the list's filter input has focus.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// Selected returns the highlighted entry.
func (m Model) Selected() (feed.Entry, bool) {
	it, ok := m.list.SelectedItem().(entryItem)
	if !ok {
		return feed.Entry{}, false
	}
	return it.entry, true
}

// Update handles messages for the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && !m.Filtering() {
		switch {
		case key.Matches(msg, m.keys.Select):
			e, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return OpenMsg{Item: e.NotificationItem} }

		case key.Matches(msg, m.keys.ClearAll):
			if len(m.list.Items()) == 0 {
				return m, nil
			}
			return m, func() tea.Msg { return ClearMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or guidance when it is empty.
func (m Model) View() string {
	if len(m.list.Items()) > 0 {
		return m.list.View()
	}

	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if len(unread.VisibleChannels(m.role)) == 0 {
		return style.Render("Your role has no notifications.\nPress tab for chat.")
	}
	return style.Render("You're all caught up.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
