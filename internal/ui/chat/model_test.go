package chat

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatstate "github.com/nhle/hrnotify/internal/chat"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/model"
)

var (
	bob = model.ChatUser{ID: "B", FirstName: "Bob"}
	t0  = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func openView(disabled, canSend bool) chatstate.View {
	return chatstate.View{
		Conversations: []model.Conversation{{ID: "c1", User: bob, UnreadCount: 0, IsDisabled: disabled}},
		Selected:      &bob,
		Messages: []model.ChatMessage{
			{ID: "m1", Sender: "B", Message: "hi", Timestamp: t0},
			{ID: "m2", Sender: "A", Message: "hello", Timestamp: t0.Add(time.Minute)},
		},
		Disabled: disabled,
		CanSend:  canSend,
	}
}

func newModel(role model.Role) Model {
	return New(keys.DefaultKeyMap(), model.RoleContext{Role: role, UserID: "A"}, 100, 30)
}

func TestSelectConversation(t *testing.T) {
	m := newModel(model.RoleEmployee)
	m.SetView(chatstate.View{Conversations: []model.Conversation{{ID: "c1", User: bob}}})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SelectMsg{User: bob}, cmd())
}

func TestComposeAndSend(t *testing.T) {
	m := newModel(model.RoleEmployee)
	m.SetView(openView(false, true))

	m, _ = m.Update(runes("i"))
	require.True(t, m.Typing())
	m = typeText(m, "on my way")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SendMsg{Text: "on my way"}, cmd())
	assert.False(t, m.Typing())
}

func TestComposeBlockedWhenDisabled(t *testing.T) {
	m := newModel(model.RoleEmployee)
	m.SetView(openView(true, false))

	m, _ = m.Update(runes("i"))
	assert.False(t, m.Typing())
	assert.Contains(t, m.View(), "disabled")
}

func TestEditAndDeleteTargetOwnLastMessage(t *testing.T) {
	m := newModel(model.RoleEmployee)
	m.SetView(openView(false, true))

	_, cmd := m.Update(runes("d"))
	require.NotNil(t, cmd)
	assert.Equal(t, DeleteMsg{ID: "m2"}, cmd())

	m, _ = m.Update(runes("e"))
	require.True(t, m.Typing())
	m = typeText(m, "!")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, EditMsg{ID: "m2", Text: "hello!"}, cmd())
}

func TestToggleByRole(t *testing.T) {
	emp := newModel(model.RoleEmployee)
	emp.SetView(openView(false, true))
	_, cmd := emp.Update(runes("x"))
	assert.Nil(t, cmd)

	admin := newModel(model.RoleAdmin)
	admin.SetView(openView(true, true))
	_, cmd = admin.Update(runes("x"))
	require.NotNil(t, cmd)
	assert.Equal(t, ToggleMsg{UserID: "B", Action: model.ToggleEnable}, cmd())
}

func TestSearchFlow(t *testing.T) {
	m := newModel(model.RoleEmployee)
	m.SetView(chatstate.View{})

	m, _ = m.Update(runes("/"))
	m = typeText(m, "car")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SearchMsg{Query: "car"}, cmd())

	carol := model.ChatUser{ID: "C", FirstName: "Carol"}
	m.SetSearchResults([]model.ChatUser{carol})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SelectMsg{User: carol}, cmd())
}
