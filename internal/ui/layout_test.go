package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/hrnotify/internal/conn"
)

func TestContentHeight(t *testing.T) {
	assert.Equal(t, 22, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}

func TestRenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(60, 10)
	h := l.RenderHeader("HR Notifications", "● live", "", "3 unread")

	assert.Equal(t, 60, lipgloss.Width(h))
	assert.True(t, strings.Contains(h, "HR Notifications"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(h), "3 unread"))
}

func TestIndicators(t *testing.T) {
	assert.Equal(t, "● live", ConnectionIndicator(conn.StateOpen))
	assert.Equal(t, "○ offline", ConnectionIndicator(conn.StateClosed))
	assert.Empty(t, UnreadBadge("chat", 0))
	assert.Equal(t, "chat 2", UnreadBadge("chat", 2))
}
