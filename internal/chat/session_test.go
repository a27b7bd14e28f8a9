package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/hrnotify/internal/frame"
	"github.com/nhle/hrnotify/internal/model"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	recent   []model.Conversation
	history  map[string]model.ChatHistory
	unread   int
	toggled  []string
	deleted  []string
	edited   map[string]string
	users    []model.ChatUser
	failWith error
}

func (f *fakeAPI) UnreadTotal(context.Context) (int, error) { return f.unread, f.failWith }
func (f *fakeAPI) Recent(context.Context) ([]model.Conversation, error) {
	return append([]model.Conversation(nil), f.recent...), f.failWith
}
func (f *fakeAPI) History(_ context.Context, other string) (model.ChatHistory, error) {
	return f.history[other], f.failWith
}
func (f *fakeAPI) Search(context.Context, string) ([]model.ChatUser, error) { return f.users, f.failWith }
func (f *fakeAPI) Toggle(_ context.Context, target string, action model.ToggleAction) error {
	f.toggled = append(f.toggled, target+":"+string(action))
	return f.failWith
}
func (f *fakeAPI) DeleteConversation(_ context.Context, other string) error {
	f.deleted = append(f.deleted, "conv:"+other)
	return f.failWith
}
func (f *fakeAPI) DeleteMessage(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.failWith
}
func (f *fakeAPI) EditMessage(_ context.Context, id, text string) error {
	if f.edited == nil {
		f.edited = map[string]string{}
	}
	f.edited[id] = text
	return f.failWith
}

type fakeSender struct {
	sent []any
	err  error
}

func (f *fakeSender) Send(v any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

var (
	alice = model.ChatUser{ID: "A", FirstName: "Alice"}
	bob   = model.ChatUser{ID: "B", FirstName: "Bob"}
	carol = model.ChatUser{ID: "C", FirstName: "Carol"}
)

func newSession(t *testing.T, me model.RoleContext) (*Session, *fakeAPI, *fakeSender) {
	t.Helper()
	api := &fakeAPI{
		recent: []model.Conversation{
			{ID: "c1", User: bob, UnreadCount: 2, UpdatedAt: t0},
			{ID: "c2", User: carol, UnreadCount: 1, UpdatedAt: t0.Add(-time.Hour)},
		},
		unread: 3,
		history: map[string]model.ChatHistory{
			"B": {Messages: []model.ChatMessage{
				{ID: "m1", Sender: "B", Message: "hi", Timestamp: t0.Add(-2 * time.Minute)},
				{ID: "m2", Sender: me.UserID, Message: "hello", Timestamp: t0.Add(-time.Minute)},
			}},
		},
	}
	sender := &fakeSender{}
	s := NewSession(me, api, sender)
	require.NoError(t, s.Load(context.Background()))
	return s, api, sender
}

func TestSelectZeroesConversationUnread(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.NoError(t, s.Select(context.Background(), bob))

	v := s.View()
	assert.Equal(t, 1, v.UnreadTotal)
	assert.Equal(t, 0, v.Conversations[0].UnreadCount)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, "m1", v.Messages[0].ID)
	assert.Equal(t, "m2", v.Messages[1].ID)
	assert.True(t, v.CanSend)
}

func TestIncomingMessageCountsOnceWhenNotOpen(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	msg := frame.ChatMessage{ID: "m9", SenderID: "C", ReceiverID: "A", Message: "ping", Timestamp: t0.Add(time.Hour)}

	assert.False(t, s.ApplyChatMessage(msg))
	assert.False(t, s.ApplyChatMessage(msg))

	v := s.View()
	assert.Equal(t, 4, v.UnreadTotal)
	assert.Equal(t, "C", v.Conversations[0].User.ID)
	assert.Equal(t, 2, v.Conversations[0].UnreadCount)
	assert.Equal(t, "ping", v.Conversations[0].LastMessage)
}

func TestIncomingMessageInOpenConversation(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.NoError(t, s.Select(context.Background(), bob))

	s.ApplyChatMessage(frame.ChatMessage{ID: "m3", SenderID: "B", ReceiverID: "A", Message: "there?", Timestamp: t0})
	// A replay of a message already in the fetched history is ignored.
	s.ApplyChatMessage(frame.ChatMessage{ID: "m1", SenderID: "B", ReceiverID: "A", Message: "hi", Timestamp: t0.Add(-2 * time.Minute)})

	v := s.View()
	assert.Equal(t, 1, v.UnreadTotal)
	require.Len(t, v.Messages, 3)
	assert.Equal(t, "m3", v.Messages[2].ID)
}

func TestOwnEchoIsNotUnread(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	s.ApplyChatMessage(frame.ChatMessage{ID: "m5", SenderID: "A", ReceiverID: "C", Message: "sent", Timestamp: t0})
	assert.Equal(t, 3, s.UnreadTotal())
}

func TestUnknownCounterpartAsksForRefresh(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	refresh := s.ApplyChatMessage(frame.ChatMessage{ID: "x1", SenderID: "Z", ReceiverID: "A", Message: "new here", Legacy: true})
	assert.True(t, refresh)
	assert.Equal(t, 4, s.UnreadTotal())
}

func TestDeleteActivityIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.NoError(t, s.Select(context.Background(), bob))

	del := frame.Activity{Action: frame.ActionDeleteMessage, MessageID: "m1", InitiatorID: "B"}
	s.ApplyActivity(del)
	before := s.View()
	s.ApplyActivity(del)

	assert.Equal(t, before, s.View())
	require.Len(t, before.Messages, 1)
	assert.Equal(t, "m2", before.Messages[0].ID)
}

func TestEditAndClearActivities(t *testing.T) {
	t.Parallel()

	s, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.NoError(t, s.Select(context.Background(), bob))

	s.ApplyActivity(frame.Activity{Action: frame.ActionEditMessage, MessageID: "m2", NewText: "hello!", InitiatorID: "A"})
	assert.Equal(t, "hello!", s.View().Messages[1].Message)

	// Clearing initiated by the other side leaves this view intact.
	s.ApplyActivity(frame.Activity{Action: frame.ActionClearChat, InitiatorID: "B", Participants: []string{"A", "B"}})
	assert.Len(t, s.View().Messages, 2)

	s.ApplyActivity(frame.Activity{Action: frame.ActionClearChat, InitiatorID: "A", Participants: []string{"A", "B"}})
	assert.Empty(t, s.View().Messages)
}

func TestStatusUpdatePropagatesToBothParticipants(t *testing.T) {
	t.Parallel()

	sa, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	sb, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "B"})
	require.NoError(t, sa.Select(context.Background(), bob))
	require.NoError(t, sb.Select(context.Background(), alice))

	lock := frame.StatusUpdate{Participants: []string{"A", "B"}, IsDisabled: true}
	sa.ApplyStatusUpdate(lock)
	sb.ApplyStatusUpdate(lock)

	assert.True(t, sa.View().Disabled)
	assert.True(t, sb.View().Disabled)
	assert.False(t, sa.View().CanSend)
	require.ErrorIs(t, sa.Send("hello"), ErrChatDisabled)

	// A third party looking at another conversation is unaffected.
	sc, _, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "C"})
	require.NoError(t, sc.Select(context.Background(), model.ChatUser{ID: "D"}))
	sc.ApplyStatusUpdate(lock)
	assert.False(t, sc.View().Disabled)
}

func TestAdminCanSendWhileDisabled(t *testing.T) {
	t.Parallel()

	s, _, sender := newSession(t, model.RoleContext{Role: model.RoleAdmin, UserID: "A"})
	require.NoError(t, s.Select(context.Background(), bob))
	s.ApplyStatusUpdate(frame.StatusUpdate{Participants: []string{"A", "B"}, IsDisabled: true})

	require.NoError(t, s.Send("  policy reminder "))
	assert.Equal(t, []any{Outgoing{Message: "policy reminder", ReceiverID: "B"}}, sender.sent)
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	s, _, sender := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.ErrorIs(t, s.Send("hi"), ErrNoConversation)

	require.NoError(t, s.Select(context.Background(), bob))
	require.ErrorIs(t, s.Send("   "), ErrEmptyMessage)

	notOpen := errors.New("connection not open")
	sender.err = notOpen
	require.ErrorIs(t, s.Send("hi"), notOpen)
}

func TestMutationsGoThroughAPI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, api, _ := newSession(t, model.RoleContext{Role: model.RoleDepartmentHead, UserID: "A"})
	require.NoError(t, s.Select(ctx, bob))

	require.NoError(t, s.EditMessage(ctx, "m2", "edited"))
	require.NoError(t, s.DeleteMessage(ctx, "m1"))
	require.NoError(t, s.Toggle(ctx, "B", model.ToggleDisable))
	require.NoError(t, s.DeleteConversation(ctx, "B"))

	assert.Equal(t, map[string]string{"m2": "edited"}, api.edited)
	assert.Equal(t, []string{"m1", "conv:B"}, api.deleted)
	assert.Equal(t, []string{"B:disable"}, api.toggled)

	v := s.View()
	assert.Empty(t, v.Messages)
	assert.True(t, v.Disabled)
	require.Len(t, v.Conversations, 1)
	assert.Equal(t, "C", v.Conversations[0].User.ID)
}

func TestEmployeesCannotToggle(t *testing.T) {
	t.Parallel()

	s, api, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.ErrorIs(t, s.Toggle(context.Background(), "B", model.ToggleDisable), ErrForbidden)
	assert.Empty(t, api.toggled)
}

func TestFailedDeleteKeepsState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, api, _ := newSession(t, model.RoleContext{Role: model.RoleEmployee, UserID: "A"})
	require.NoError(t, s.Select(ctx, bob))

	api.failWith = errors.New("403")
	require.Error(t, s.DeleteMessage(ctx, "m1"))
	assert.Len(t, s.View().Messages, 2)
}
