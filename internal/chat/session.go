// Package chat keeps the state of the chat surface: the conversation
// list, the open conversation and the chat unread total. It is driven
// by socket frames and the chat REST API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nhle/hrnotify/internal/channel"
	"github.com/nhle/hrnotify/internal/frame"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/model"
)

var (
	// ErrNoConversation is returned when an action needs an open
	// conversation and none is selected.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrChatDisabled is returned when sending into a disabled
	// conversation as a non-admin.
	ErrChatDisabled = errors.New("chat is disabled for this conversation")

	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrForbidden is returned for actions the role may not take.
	ErrForbidden = errors.New("action not allowed for this role")
)

// API is the chat REST backend.
type API interface {
	UnreadTotal(ctx context.Context) (int, error)
	Recent(ctx context.Context) ([]model.Conversation, error)
	History(ctx context.Context, otherUserID string) (model.ChatHistory, error)
	Search(ctx context.Context, query string) ([]model.ChatUser, error)
	Toggle(ctx context.Context, targetUserID string, action model.ToggleAction) error
	DeleteConversation(ctx context.Context, otherUserID string) error
	DeleteMessage(ctx context.Context, messageID string) error
	EditMessage(ctx context.Context, messageID, text string) error
}

// Sender writes an outbound frame to the socket.
type Sender interface {
	Send(v any) error
}

// Outgoing is the frame that sends a chat message.
type Outgoing struct {
	Message    string `json:"message"`
	ReceiverID string `json:"receiverId"`
}

// View is a snapshot of the chat surface.
type View struct {
	Conversations []model.Conversation
	Selected      *model.ChatUser
	Messages      []model.ChatMessage // oldest first
	Disabled      bool
	CanSend       bool
	UnreadTotal   int
}

// Session is the chat state of one user. REST calls run without the
// session lock held; frames are applied under it.
type Session struct {
	me     model.RoleContext
	api    API
	sender Sender

	mu            sync.Mutex
	conversations []model.Conversation
	selected      *model.ChatUser
	history       *channel.Store
	disabled      bool
	unreadTotal   int
	counted       map[string]struct{}
}

// NewSession returns an empty session for me.
func NewSession(me model.RoleContext, api API, sender Sender) *Session {
	return &Session{
		me:      me,
		api:     api,
		sender:  sender,
		history: channel.New(model.ChannelChatMessage),
		counted: make(map[string]struct{}),
	}
}

// Load fetches the conversation list and the unread total.
func (s *Session) Load(ctx context.Context) error {
	convs, err := s.api.Recent(ctx)
	if err != nil {
		return err
	}
	total, err := s.api.UnreadTotal(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = convs
	s.unreadTotal = total
	return nil
}

// RefreshRecent re-fetches the conversation list.
func (s *Session) RefreshRecent(ctx context.Context) error {
	convs, err := s.api.Recent(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The open conversation has been read; keep its count at zero.
	if s.selected != nil {
		for i := range convs {
			if convs[i].User.ID == s.selected.ID {
				convs[i].UnreadCount = 0
			}
		}
	}
	s.conversations = convs
	return nil
}

// Select opens the conversation with user and loads its history. The
// conversation's unread messages are taken off the total.
func (s *Session) Select(ctx context.Context, user model.ChatUser) error {
	s.mu.Lock()
	u := user
	s.selected = &u
	s.history.Clear()
	s.disabled = false
	for i := range s.conversations {
		if s.conversations[i].User.ID == user.ID {
			s.unreadTotal = max(0, s.unreadTotal-s.conversations[i].UnreadCount)
			s.conversations[i].UnreadCount = 0
		}
	}
	s.mu.Unlock()

	h, err := s.api.History(ctx, user.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil || s.selected.ID != user.ID {
		// Another conversation was opened meanwhile.
		return nil
	}
	items := make([]model.NotificationItem, 0, len(h.Messages))
	for _, m := range h.Messages {
		items = append(items, model.ChatItem(m))
		if m.ID != "" {
			s.counted[m.ID] = struct{}{}
		}
	}
	s.history.IngestFetched(items)
	s.disabled = h.IsDisabled
	return nil
}

// Deselect closes the open conversation.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.history.Clear()
	s.disabled = false
}

// Send sends text to the open conversation. Disabled conversations only
// accept messages from admins. Socket errors such as conn.ErrNotOpen are
// returned unchanged.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	sel := s.selected
	disabled := s.disabled
	s.mu.Unlock()

	if sel == nil {
		return ErrNoConversation
	}
	if disabled && s.me.Role != model.RoleAdmin {
		return ErrChatDisabled
	}
	return s.sender.Send(Outgoing{Message: text, ReceiverID: sel.ID})
}

// ApplyChatMessage records a pushed message. It reports whether the
// conversation list lacks the counterpart and should be re-fetched.
// Replaying the same message changes nothing.
func (s *Session) ApplyChatMessage(m frame.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromMe := m.SenderID == s.me.UserID
	counterpart := m.SenderID
	if fromMe {
		counterpart = m.ReceiverID
	}
	open := s.selected != nil && s.selected.ID == counterpart

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if open {
		s.history.IngestPushed(model.ChatItem(model.ChatMessage{
			ID:        m.ID,
			Sender:    m.SenderID,
			Message:   m.Message,
			Timestamp: ts,
		}))
	}

	seen := false
	if m.ID != "" {
		_, seen = s.counted[m.ID]
		s.counted[m.ID] = struct{}{}
	}

	idx := slices.IndexFunc(s.conversations, func(c model.Conversation) bool {
		return c.User.ID == counterpart
	})
	if idx < 0 {
		if !fromMe && !open && !seen {
			s.unreadTotal++
		}
		return true
	}

	if seen {
		return false
	}

	conv := s.conversations[idx]
	conv.LastMessage = m.Message
	conv.UpdatedAt = ts
	if !fromMe && !open {
		conv.UnreadCount++
		s.unreadTotal++
	}
	// Move to the top of the list.
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	s.conversations = append([]model.Conversation{conv}, s.conversations...)
	return false
}

// ApplyActivity applies a conversation activity. Applying it twice is
// a no-op. The caller should refresh the conversation list afterwards.
func (s *Session) ApplyActivity(a frame.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a.Action {
	case frame.ActionClearChat:
		// Only the initiator's view is cleared; the other side keeps
		// its copy.
		if a.InitiatorID == s.me.UserID && s.involvesSelectedLocked(a.Participants) {
			s.history.Clear()
		}
	case frame.ActionDeleteMessage:
		s.history.Remove(a.MessageID)
	case frame.ActionEditMessage:
		s.history.Update(a.MessageID, func(it *model.NotificationItem) {
			it.Payload.Title = a.NewText
		})
	}
}

// ApplyStatusUpdate propagates a disable/enable toggle. The open
// conversation follows it only if its user is one of the participants.
func (s *Session) ApplyStatusUpdate(u frame.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != nil && slices.Contains(u.Participants, s.selected.ID) {
		s.disabled = u.IsDisabled
	}
	for i := range s.conversations {
		if slices.Contains(u.Participants, s.conversations[i].User.ID) {
			s.conversations[i].IsDisabled = u.IsDisabled
		}
	}
}

// involvesSelectedLocked reports whether participants covers the open
// conversation. Frames without participants are taken to.
func (s *Session) involvesSelectedLocked(participants []string) bool {
	if s.selected == nil {
		return false
	}
	return len(participants) == 0 || slices.Contains(participants, s.selected.ID)
}

// DeleteConversation hides the conversation with otherUserID for the
// current user.
func (s *Session) DeleteConversation(ctx context.Context, otherUserID string) error {
	if err := s.api.DeleteConversation(ctx, otherUserID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = slices.DeleteFunc(s.conversations, func(c model.Conversation) bool {
		return c.User.ID == otherUserID
	})
	if s.selected != nil && s.selected.ID == otherUserID {
		s.history.Clear()
	}
	return nil
}

// DeleteMessage deletes one of the user's own messages.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Remove(messageID)
	return nil
}

// EditMessage replaces the text of one of the user's own messages.
func (s *Session) EditMessage(ctx context.Context, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if err := s.api.EditMessage(ctx, messageID, text); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Update(messageID, func(it *model.NotificationItem) {
		it.Payload.Title = text
	})
	return nil
}

// Toggle enables or disables the conversation with otherUserID. Only
// admins and department heads may do this; the backend enforces the
// finer rules.
func (s *Session) Toggle(ctx context.Context, otherUserID string, action model.ToggleAction) error {
	if s.me.Role != model.RoleAdmin && s.me.Role != model.RoleDepartmentHead {
		return ErrForbidden
	}
	if err := s.api.Toggle(ctx, otherUserID, action); err != nil {
		return err
	}

	s.ApplyStatusUpdate(frame.StatusUpdate{
		Participants: []string{s.me.UserID, otherUserID},
		IsDisabled:   action == model.ToggleDisable,
	})
	logging.Info().Str("user", otherUserID).Str("action", string(action)).Msg("chat toggled")
	return nil
}

// Search finds users to start a conversation with.
func (s *Session) Search(ctx context.Context, query string) ([]model.ChatUser, error) {
	users, err := s.api.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("chat search: %w", err)
	}
	return users, nil
}

// UnreadTotal returns the chat unread total.
func (s *Session) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadTotal
}

// View returns a snapshot of the chat surface.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Conversations: slices.Clone(s.conversations),
		Disabled:      s.disabled,
		UnreadTotal:   s.unreadTotal,
	}
	if s.selected != nil {
		u := *s.selected
		v.Selected = &u
		v.CanSend = !s.disabled || s.me.Role == model.RoleAdmin
	}

	items := s.history.Items()
	v.Messages = make([]model.ChatMessage, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		v.Messages = append(v.Messages, model.ChatMessageFromItem(items[i]))
	}
	return v
}
