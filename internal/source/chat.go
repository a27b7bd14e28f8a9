package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/nhle/hrnotify/internal/model"
)

// ChatAPI is the REST side of the chat backend, scoped to one user.
type ChatAPI struct {
	client *Client
	userID string
}

// NewChatAPI returns a chat API client acting as userID.
func NewChatAPI(client *Client, userID string) *ChatAPI {
	return &ChatAPI{client: client, userID: userID}
}

type wireConversation struct {
	ID          string          `json:"conversation_id"`
	User        *model.ChatUser `json:"user"`
	LastMessage string          `json:"last_message"`
	UpdatedAt   string          `json:"updated_at"`
	IsDisabled  bool            `json:"is_disabled"`
	UnreadCount int             `json:"unread_count"`
}

type wireMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type wireHistory struct {
	Messages   []wireMessage `json:"messages"`
	IsDisabled bool          `json:"is_disabled"`
}

type successBody struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// UnreadTotal returns the number of unread chat messages of the user.
func (a *ChatAPI) UnreadTotal(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := a.client.Get(ctx, "/chat/unread/total/"+url.PathEscape(a.userID), nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching unread chat total: %w", err)
	}
	return resp.Count, nil
}

// Recent returns the conversation list, most recently updated first.
func (a *ChatAPI) Recent(ctx context.Context) ([]model.Conversation, error) {
	var resp []wireConversation
	if err := a.client.Get(ctx, "/chat/recent/"+url.PathEscape(a.userID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching recent chats: %w", err)
	}

	out := make([]model.Conversation, 0, len(resp))
	for _, c := range resp {
		if c.User == nil {
			continue
		}
		out = append(out, model.Conversation{
			ID:          c.ID,
			User:        *c.User,
			LastMessage: c.LastMessage,
			UpdatedAt:   model.ParseTime(c.UpdatedAt),
			IsDisabled:  c.IsDisabled,
			UnreadCount: c.UnreadCount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// History returns the messages exchanged with otherUserID, oldest first.
func (a *ChatAPI) History(ctx context.Context, otherUserID string) (model.ChatHistory, error) {
	var resp wireHistory
	err := a.client.Get(ctx, "/chat/history/"+url.PathEscape(a.userID),
		url.Values{"other_user": {otherUserID}}, &resp)
	if err != nil {
		return model.ChatHistory{}, fmt.Errorf("fetching chat history with %s: %w", otherUserID, err)
	}

	h := model.ChatHistory{
		Messages:   make([]model.ChatMessage, 0, len(resp.Messages)),
		IsDisabled: resp.IsDisabled,
	}
	for _, m := range resp.Messages {
		h.Messages = append(h.Messages, model.ChatMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Message:   m.Message,
			Timestamp: model.ParseTime(m.Timestamp),
		})
	}
	return h, nil
}

// Search finds users the current user may chat with.
func (a *ChatAPI) Search(ctx context.Context, query string) ([]model.ChatUser, error) {
	if query == "" {
		return nil, nil
	}
	var users []model.ChatUser
	err := a.client.Get(ctx, "/chat/search", url.Values{"q": {query}, "user_id": {a.userID}}, &users)
	if err != nil {
		return nil, fmt.Errorf("searching chat users: %w", err)
	}
	return users, nil
}

// Toggle enables or disables the conversation with targetUserID.
func (a *ChatAPI) Toggle(ctx context.Context, targetUserID string, action model.ToggleAction) error {
	body := map[string]string{
		"admin_id":       a.userID,
		"target_user_id": targetUserID,
		"action":         string(action),
	}
	var resp successBody
	if err := a.client.Post(ctx, "/chat/toggle", body, &resp); err != nil {
		return fmt.Errorf("toggling chat with %s: %w", targetUserID, err)
	}
	return nil
}

// DeleteConversation hides the whole conversation with otherUserID for
// the current user.
func (a *ChatAPI) DeleteConversation(ctx context.Context, otherUserID string) error {
	err := a.client.Delete(ctx, "/chat/delete_all",
		url.Values{"user_id": {a.userID}, "other_user": {otherUserID}}, nil)
	if err != nil {
		return fmt.Errorf("deleting conversation with %s: %w", otherUserID, err)
	}
	return nil
}

// DeleteMessage deletes one of the user's messages.
func (a *ChatAPI) DeleteMessage(ctx context.Context, messageID string) error {
	err := a.client.Delete(ctx, "/chat/message/"+url.PathEscape(messageID),
		url.Values{"user_id": {a.userID}}, nil)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return nil
}

// EditMessage replaces the text of one of the user's messages.
func (a *ChatAPI) EditMessage(ctx context.Context, messageID, text string) error {
	err := a.client.Put(ctx, "/chat/message/"+url.PathEscape(messageID),
		url.Values{"user_id": {a.userID}}, map[string]string{"message": text}, nil)
	if err != nil {
		return fmt.Errorf("editing message %s: %w", messageID, err)
	}
	return nil
}
