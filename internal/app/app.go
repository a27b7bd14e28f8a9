package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	chatstate "github.com/nhle/hrnotify/internal/chat"
	"github.com/nhle/hrnotify/internal/conn"
	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/session"
	"github.com/nhle/hrnotify/internal/ui"
	chatview "github.com/nhle/hrnotify/internal/ui/chat"
	"github.com/nhle/hrnotify/internal/ui/command"
	"github.com/nhle/hrnotify/internal/ui/detail"
	feedview "github.com/nhle/hrnotify/internal/ui/feed"
	helpview "github.com/nhle/hrnotify/internal/ui/help"
	"github.com/nhle/hrnotify/internal/unread"
)

// flashTTL is how long transient messages stay in the status bar.
const flashTTL = 5 * time.Second

const actionTimeout = 15 * time.Second

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewDetail
	ViewChat
	ViewHelp
	ViewCommand
)

// sessionEventMsg carries one event of the session to the UI.
type sessionEventMsg struct {
	event session.Event
}

// sessionClosedMsg is sent when the session's event stream ends.
type sessionClosedMsg struct{}

type feedLoadedMsg struct {
	entries []feed.Entry
	counts  unread.Counts
}

type chatLoadedMsg struct {
	view chatstate.View
}

type openedMsg struct {
	item   model.NotificationItem
	target feed.Target
	err    error
}

type clearedMsg struct {
	result feed.ClearResult
}

type searchResultMsg struct {
	users []model.ChatUser
	err   error
}

// chatActionMsg reports the outcome of a chat action.
type chatActionMsg struct {
	action string
	err    error
}

type flashExpiredMsg struct {
	id int
}

// Model is the root Bubble Tea model: it routes between views and
// turns session events into view updates.
type Model struct {
	svc          *session.Service
	rc           model.RoleContext
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	feedView     feedview.Model
	detailView   detail.Model
	chatView     chatview.Model
	helpView     helpview.Model
	commandView  command.Model
	ready        bool

	counts     unread.Counts
	chatUnread int
	connState  conn.State
	flash      string
	flashIsErr bool
	flashID    int
}

// New creates the root model over a started session.
func New(svc *session.Service) Model {
	k := keys.DefaultKeyMap()
	rc := svc.RoleContext()
	start := ViewFeed
	if len(unread.VisibleChannels(rc.Role)) == 0 {
		start = ViewChat
	}

	return Model{
		svc:         svc,
		rc:          rc,
		currentView: start,
		keys:        k,
		feedView:    feedview.New(k, rc.Role, 80, 22),
		detailView:  detail.New(k, 80, 22),
		chatView:    chatview.New(k, rc, 80, 22),
		helpView:    helpview.New(k, rc.Role, 80, 22),
		commandView: command.New(80, 22),
		connState:   svc.ConnectionState(),
	}
}

// Init loads the feed and chat and starts listening for session events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadFeed(),
		m.loadChat(),
		m.waitForEvent(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.feedView.SetSize(w, h)
		m.detailView.SetSize(w, h)
		m.chatView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		return m, nil

	case sessionEventMsg:
		cmd := tea.Batch(m.handleEvent(msg.event), m.waitForEvent())
		return m, cmd

	case sessionClosedMsg:
		return m, tea.Quit

	case feedLoadedMsg:
		m.counts = msg.counts
		m.feedView.SetCounts(msg.counts)
		cmd := m.feedView.SetEntries(msg.entries)
		return m, cmd

	case chatLoadedMsg:
		m.chatUnread = msg.view.UnreadTotal
		cmd := m.chatView.SetView(msg.view)
		return m, cmd

	case openedMsg:
		if msg.err != nil {
			cmd := tea.Batch(m.setFlash(msg.err.Error(), true), m.loadFeed())
			return m, cmd
		}
		m.detailView.SetItem(msg.item, msg.target)
		m.previousView = ViewFeed
		m.currentView = ViewDetail
		return m, m.loadFeed()

	case clearedMsg:
		text := fmt.Sprintf("cleared %d notifications", msg.result.Cleared)
		isErr := false
		if n := len(msg.result.AckFailures); n > 0 {
			text += fmt.Sprintf(", %d not confirmed by the server", n)
			isErr = true
		}
		if msg.result.Err != nil {
			text = "clear failed: " + msg.result.Err.Error()
			isErr = true
		}
		cmd := tea.Batch(m.setFlash(text, isErr), m.loadFeed())
		return m, cmd

	case searchResultMsg:
		if msg.err != nil {
			cmd := m.setFlash(msg.err.Error(), true)
			return m, cmd
		}
		if len(msg.users) == 0 {
			cmd := m.setFlash("no users found", false)
			return m, cmd
		}
		cmd := m.chatView.SetSearchResults(msg.users)
		return m, cmd

	case chatActionMsg:
		if msg.err != nil {
			cmd := tea.Batch(m.setFlash(chatErrorText(msg.action, msg.err), true), m.loadChat())
			return m, cmd
		}
		return m, m.loadChat()

	case flashExpiredMsg:
		if msg.id == m.flashID {
			m.flash = ""
		}
		return m, nil

	case feedview.OpenMsg:
		return m, m.open(msg.Item)

	case feedview.ClearMsg:
		return m, m.clear()

	case detail.BackMsg:
		m.currentView = ViewFeed
		return m, nil

	case chatview.SelectMsg:
		return m, m.chatAction("open conversation", func(ctx context.Context, c *chatstate.Session) error {
			return c.Select(ctx, msg.User)
		})

	case chatview.SendMsg:
		return m, m.chatAction("send", func(_ context.Context, c *chatstate.Session) error {
			return c.Send(msg.Text)
		})

	case chatview.EditMsg:
		return m, m.chatAction("edit", func(ctx context.Context, c *chatstate.Session) error {
			return c.EditMessage(ctx, msg.ID, msg.Text)
		})

	case chatview.DeleteMsg:
		return m, m.chatAction("delete", func(ctx context.Context, c *chatstate.Session) error {
			return c.DeleteMessage(ctx, msg.ID)
		})

	case chatview.WipeMsg:
		return m, m.chatAction("delete conversation", func(ctx context.Context, c *chatstate.Session) error {
			return c.DeleteConversation(ctx, msg.UserID)
		})

	case chatview.ToggleMsg:
		return m, m.chatAction(string(msg.Action), func(ctx context.Context, c *chatstate.Session) error {
			return c.Toggle(ctx, msg.UserID, msg.Action)
		})

	case chatview.SearchMsg:
		return m, m.search(msg.Query)

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey handles keys that work in every view unless a text
// input has focus.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return tea.Quit, true
	}
	if m.inputFocused() {
		return nil, false
	}

	switch msg.String() {
	case "q":
		if m.currentView == ViewFeed || m.currentView == ViewChat {
			return tea.Quit, true
		}
	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true
	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true
	case "tab":
		switch m.currentView {
		case ViewFeed, ViewDetail:
			m.currentView = ViewChat
			return nil, true
		case ViewChat:
			m.currentView = ViewFeed
			return nil, true
		}
	case "r":
		if m.currentView == ViewFeed || m.currentView == ViewChat {
			m.svc.Refresh()
			return tea.Batch(m.loadFeed(), m.refreshChat()), true
		}
	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
	}
	return nil, false
}

func (m Model) inputFocused() bool {
	switch m.currentView {
	case ViewCommand:
		return true
	case ViewChat:
		return m.chatView.Typing()
	case ViewFeed:
		return m.feedView.Filtering()
	}
	return false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewFeed:
		m.feedView, cmd = m.feedView.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// handleEvent turns a session event into view reloads.
func (m *Model) handleEvent(ev session.Event) tea.Cmd {
	switch ev := ev.(type) {
	case session.CountsChangedEvent:
		m.counts = ev.Counts
		m.feedView.SetCounts(ev.Counts)
		return m.loadFeed()
	case session.FeedChangedEvent:
		return m.loadFeed()
	case session.ChatChangedEvent:
		return m.loadChat()
	case session.ConnectionEvent:
		m.connState = ev.State
		return nil
	case session.ErrorEvent:
		return m.setFlash(ev.Message, true)
	case session.AckFailedEvent:
		return m.setFlash(fmt.Sprintf("server did not confirm %s %s", ev.Channel, ev.ID), true)
	case session.AuthFailedEvent:
		return m.setFlash("session expired, run `hrnotify login`", true)
	}
	return nil
}

func (m *Model) setFlash(text string, isErr bool) tea.Cmd {
	m.flashID++
	m.flash = text
	m.flashIsErr = isErr
	id := m.flashID
	return tea.Tick(flashTTL, func(time.Time) tea.Msg { return flashExpiredMsg{id: id} })
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(
		"HR Notifications · "+string(m.rc.Role),
		ui.UnreadBadge("notifications", m.counts.Total),
		ui.UnreadBadge("chat", m.chatUnread),
		ui.ConnectionIndicator(m.connState),
	)
	return m.layout.RenderWithFrame(header, m.renderContent(), m.layout.RenderStatusBar(m.statusText()))
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewFeed:
		return m.feedView.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewChat:
		return m.chatView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// statusText returns the flash message or the key hints of the view.
func (m Model) statusText() string {
	if m.flash != "" {
		if m.flashIsErr {
			return "⚠ " + m.flash
		}
		return m.flash
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewDetail:
		return "esc back | j/k scroll | tab chat"
	case ViewChat:
		return "enter open | i write | / find | tab feed | q quit"
	default:
		return "enter open | C clear all | / filter | r refresh | tab chat | ? help | q quit"
	}
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.svc.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg{event: ev}
	}
}

func (m Model) loadFeed() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return feedLoadedMsg{entries: svc.Feed(), counts: svc.Counts()}
	}
}

func (m Model) loadChat() tea.Cmd {
	c := m.svc.Chat()
	return func() tea.Msg {
		return chatLoadedMsg{view: c.View()}
	}
}

func (m Model) refreshChat() tea.Cmd {
	c := m.svc.Chat()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := c.Load(ctx)
		return chatActionMsg{action: "refresh chat", err: err}
	}
}

func (m Model) open(it model.NotificationItem) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		target, err := svc.Open(context.Background(), it)
		return openedMsg{item: it, target: target, err: err}
	}
}

func (m Model) clear() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return clearedMsg{result: svc.Clear(ctx)}
	}
}

func (m Model) chatAction(name string, fn func(context.Context, *chatstate.Session) error) tea.Cmd {
	c := m.svc.Chat()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := fn(ctx, c)
		if err != nil {
			logging.Warn().Err(err).Str("action", name).Msg("chat action failed")
		}
		return chatActionMsg{action: name, err: err}
	}
}

func (m Model) search(query string) tea.Cmd {
	c := m.svc.Chat()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		users, err := c.Search(ctx, query)
		return searchResultMsg{users: users, err: err}
	}
}

func chatErrorText(action string, err error) string {
	switch {
	case errors.Is(err, conn.ErrNotOpen):
		return "not connected, message not sent"
	case errors.Is(err, chatstate.ErrChatDisabled):
		return "this conversation is disabled"
	case errors.Is(err, chatstate.ErrForbidden):
		return "your role cannot do that"
	}
	return action + " failed: " + err.Error()
}

// executeCommand handles a command from the palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch strings.TrimSpace(cmd) {
	case "refresh":
		m.svc.Refresh()
		return tea.Batch(m.loadFeed(), m.refreshChat())
	case "clear":
		return m.clear()
	case "feed":
		m.currentView = ViewFeed
		return nil
	case "chat":
		m.currentView = ViewChat
		return nil
	case "help":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil
	case "quit":
		return tea.Quit
	default:
		return m.setFlash("unknown command: "+cmd, true)
	}
}
