// Package chat is the chat view: conversations on the left, the open
// conversation on the right and an input line.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	chatstate "github.com/nhle/hrnotify/internal/chat"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/theme"
)

// Messages asking the parent to act on the chat session.
type (
	SelectMsg struct{ User model.ChatUser }
	SendMsg   struct{ Text string }
	SearchMsg struct{ Query string }
	EditMsg   struct{ ID, Text string }
	DeleteMsg struct{ ID string }
	WipeMsg   struct{ UserID string }
	ToggleMsg struct {
		UserID string
		Action model.ToggleAction
	}
)

type inputMode int

const (
	modeBrowse inputMode = iota
	modeCompose
	modeSearch
	modeEdit
)

type convItem struct {
	user     model.ChatUser
	last     string
	unread   int
	disabled bool
}

func (c convItem) FilterValue() string { return c.user.FullName() }
func (c convItem) Title() string {
	name := c.user.FullName()
	if name == "" {
		name = c.user.ID
	}
	if c.unread > 0 {
		name += " " + theme.UnreadBadgeStyle.Render(fmt.Sprint(c.unread))
	}
	if c.disabled {
		name = theme.DimmedStyle.Render(name + " (disabled)")
	}
	return name
}
func (c convItem) Description() string {
	if c.user.DepartmentName != "" && c.last == "" {
		return c.user.DepartmentName
	}
	return c.last
}

// Model is the chat view.
type Model struct {
	me   model.RoleContext
	keys *keys.KeyMap

	convs    list.Model
	history  viewport.Model
	input    textinput.Model
	mode     inputMode
	editing  string
	view     chatstate.View
	searched bool

	width  int
	height int
}

// New creates the chat view for me.
func New(k *keys.KeyMap, me model.RoleContext, width, height int) Model {
	d := list.NewDefaultDelegate()
	d.ShowDescription = true
	l := list.New([]list.Item{}, d, width/3, height-2)
	l.Title = "Chats"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	in := textinput.New()
	in.CharLimit = 2000

	m := Model{
		me:      me,
		keys:    k,
		convs:   l,
		history: viewport.New(width-width/3-2, height-3),
		input:   in,
	}
	m.SetSize(width, height)
	return m
}

// Typing reports whether the input line has focus.
func (m Model) Typing() bool {
	return m.mode != modeBrowse
}

// SetView replaces the rendered chat state.
func (m *Model) SetView(v chatstate.View) tea.Cmd {
	m.view = v
	if !m.searched {
		items := make([]list.Item, 0, len(v.Conversations))
		for _, c := range v.Conversations {
			items = append(items, convItem{user: c.User, last: c.LastMessage, unread: c.UnreadCount, disabled: c.IsDisabled})
		}
		m.renderHistory()
		return m.convs.SetItems(items)
	}
	m.renderHistory()
	return nil
}

// SetSearchResults shows users matching a search in place of the
// conversation list until the next selection.
func (m *Model) SetSearchResults(users []model.ChatUser) tea.Cmd {
	m.searched = true
	m.convs.Title = "Search results"
	items := make([]list.Item, 0, len(users))
	for _, u := range users {
		items = append(items, convItem{user: u})
	}
	return m.convs.SetItems(items)
}

// Update handles messages for the chat view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	if m.Typing() {
		return m.updateInput(km)
	}

	switch {
	case key.Matches(km, m.keys.Select):
		it, ok := m.convs.SelectedItem().(convItem)
		if !ok {
			return m, nil
		}
		m.resetSearch()
		return m, func() tea.Msg { return SelectMsg{User: it.user} }

	case key.Matches(km, m.keys.Compose):
		if m.view.Selected == nil || !m.view.CanSend {
			return m, nil
		}
		cmd := m.startInput(modeCompose, "> ", "write a message...", "")
		return m, cmd

	case key.Matches(km, m.keys.Search):
		cmd := m.startInput(modeSearch, "find: ", "name or email...", "")
		return m, cmd

	case key.Matches(km, m.keys.Edit):
		last, ok := m.lastOwnMessage()
		if !ok {
			return m, nil
		}
		m.editing = last.ID
		cmd := m.startInput(modeEdit, "edit: ", "", last.Message)
		return m, cmd

	case key.Matches(km, m.keys.Delete):
		last, ok := m.lastOwnMessage()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return DeleteMsg{ID: last.ID} }

	case key.Matches(km, m.keys.WipeChat):
		if m.view.Selected == nil {
			return m, nil
		}
		id := m.view.Selected.ID
		return m, func() tea.Msg { return WipeMsg{UserID: id} }

	case key.Matches(km, m.keys.Toggle):
		if m.view.Selected == nil || m.me.Role == model.RoleEmployee {
			return m, nil
		}
		action := model.ToggleDisable
		if m.view.Disabled {
			action = model.ToggleEnable
		}
		id := m.view.Selected.ID
		return m, func() tea.Msg { return ToggleMsg{UserID: id, Action: action} }

	case key.Matches(km, m.keys.Back):
		if m.searched {
			m.resetSearch()
			cmd := m.SetView(m.view)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.convs, cmd = m.convs.Update(km)
	return m, cmd
}

func (m Model) updateInput(km tea.KeyMsg) (Model, tea.Cmd) {
	switch km.Type {
	case tea.KeyEsc:
		m.stopInput()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		mode, editing := m.mode, m.editing
		m.stopInput()
		if text == "" {
			return m, nil
		}
		switch mode {
		case modeCompose:
			return m, func() tea.Msg { return SendMsg{Text: text} }
		case modeSearch:
			return m, func() tea.Msg { return SearchMsg{Query: text} }
		case modeEdit:
			return m, func() tea.Msg { return EditMsg{ID: editing, Text: text} }
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(km)
	return m, cmd
}

func (m *Model) startInput(mode inputMode, prompt, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) stopInput() {
	m.mode = modeBrowse
	m.editing = ""
	m.input.Reset()
	m.input.Blur()
}

func (m *Model) resetSearch() {
	m.searched = false
	m.convs.Title = "Chats"
}

func (m Model) lastOwnMessage() (model.ChatMessage, bool) {
	for i := len(m.view.Messages) - 1; i >= 0; i-- {
		if msg := m.view.Messages[i]; msg.Sender == m.me.UserID && msg.ID != "" {
			return msg, true
		}
	}
	return model.ChatMessage{}, false
}

func (m *Model) renderHistory() {
	if m.view.Selected == nil {
		m.history.SetContent(theme.HelpStyle.Render("Select a conversation."))
		return
	}

	mine := lipgloss.NewStyle().Foreground(theme.ColorBlue)
	theirs := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	stamp := lipgloss.NewStyle().Foreground(theme.ColorGray)

	lines := make([]string, 0, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		who, style := m.view.Selected.FirstName, theirs
		if msg.Sender == m.me.UserID {
			who, style = "you", mine
		}
		if who == "" {
			who = msg.Sender
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			stamp.Render(msg.Timestamp.Local().Format("15:04")),
			style.Bold(true).Render(who+":"),
			style.Render(msg.Message)))
	}
	if len(lines) == 0 {
		lines = append(lines, theme.HelpStyle.Render("No messages yet."))
	}
	m.history.SetContent(strings.Join(lines, "\n"))
	m.history.GotoBottom()
}

// View renders the chat view.
func (m Model) View() string {
	left := lipgloss.NewStyle().
		Width(m.convs.Width()).
		Height(m.height - 1).
		Render(m.convs.View())

	header := theme.HelpStyle.Render("No conversation")
	if u := m.view.Selected; u != nil {
		name := u.FullName()
		if name == "" {
			name = u.ID
		}
		header = lipgloss.NewStyle().Bold(true).Render(name)
		if m.view.Disabled {
			header += " " + theme.ErrorStyle.Render("chat disabled")
		}
	}
	right := lipgloss.JoinVertical(lipgloss.Left, header, m.history.View())
	right = theme.PanelStyle.Padding(0, 1).Width(m.history.Width).Render(right)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	footer := m.input.View()
	switch {
	case m.Typing():
	case m.view.Selected != nil && !m.view.CanSend:
		footer = theme.DimmedStyle.Render("This conversation is disabled.")
	default:
		footer = theme.HelpStyle.Render("i write · / find user · e edit · d delete")
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	leftW := max(width/3, 20)
	m.convs.SetSize(leftW, max(height-1, 1))
	m.history.Width = max(width-leftW-4, 10)
	m.history.Height = max(height-4, 1)
	m.input.Width = max(width-8, 10)
	m.renderHistory()
}
