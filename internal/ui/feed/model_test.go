package feed

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/unread"
)

var now = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func entries() []feed.Entry {
	return []feed.Entry{
		{NotificationItem: model.NotificationItem{
			ID: "t1", Channel: model.ChannelTicket, Timestamp: now.Add(-2 * time.Hour),
			Payload: model.Payload{Title: "Laptop broken", Sender: "Eve Doe", Status: "Open", Priority: "High"},
		}},
		{NotificationItem: model.NotificationItem{
			ID: "u1", Channel: model.ChannelTaskUpdate, Timestamp: now.Add(-3 * time.Hour),
			Payload: model.Payload{Title: "Quarterly report", Status: "in-progress"},
		}, Read: true},
	}
}

func TestEnterOpensSelected(t *testing.T) {
	m := New(keys.DefaultKeyMap(), model.RoleAdmin, 80, 20)
	m.SetEntries(entries())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg, ok := cmd().(OpenMsg)
	require.True(t, ok)
	assert.Equal(t, "t1", msg.Item.ID)
}

func TestClearNeedsItems(t *testing.T) {
	m := New(keys.DefaultKeyMap(), model.RoleAdmin, 80, 20)
	clearKey := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("C")}

	_, cmd := m.Update(clearKey)
	assert.Nil(t, cmd)

	m.SetEntries(entries())
	_, cmd = m.Update(clearKey)
	require.NotNil(t, cmd)
	assert.IsType(t, ClearMsg{}, cmd())
}

func TestCountsInTitle(t *testing.T) {
	m := New(keys.DefaultKeyMap(), model.RoleAdmin, 80, 20)
	m.SetEntries(entries())
	m.SetCounts(unread.Counts{Total: 1})
	assert.Contains(t, m.View(), "1 unread")
}

func TestEmptyStateByRole(t *testing.T) {
	emp := New(keys.DefaultKeyMap(), model.RoleEmployee, 80, 20)
	assert.Contains(t, emp.View(), "no notifications")

	admin := New(keys.DefaultKeyMap(), model.RoleAdmin, 80, 20)
	assert.Contains(t, admin.View(), "caught up")
}

func TestRenderLine(t *testing.T) {
	es := entries()
	line := renderLine(es[0], false, now)
	assert.Contains(t, line, "●")
	assert.Contains(t, line, "TICKET")
	assert.Contains(t, line, "Laptop broken")
	assert.Contains(t, line, "from Eve Doe")
	assert.Contains(t, line, "2h ago")

	read := renderLine(es[1], true, now)
	assert.Contains(t, read, "○")
	assert.Contains(t, read, "UPDATE")
}

func TestRelativeTime(t *testing.T) {
	assert.Equal(t, "", relativeTime(time.Time{}, now))
	assert.Equal(t, "just now", relativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", relativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3d ago", relativeTime(now.Add(-72*time.Hour), now))
	assert.Equal(t, "May 01", relativeTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), now))
}
