package model

import (
	"strings"
	"time"
)

// ChatUser is a chat participant as returned by the chat backend.
type ChatUser struct {
	ID             string `json:"_id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Role           string `json:"role,omitempty"`
	Email          string `json:"email,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
}

// FullName joins first and last name.
func (u ChatUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Conversation is one entry of the recent-chats sidebar.
type Conversation struct {
	ID          string    `json:"conversation_id"`
	User        ChatUser  `json:"user"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsDisabled  bool      `json:"is_disabled"`
	UnreadCount int       `json:"unread_count"`
}

// ChatMessage is one message of a conversation history.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory is the backend's answer for one conversation.
type ChatHistory struct {
	Messages   []ChatMessage `json:"messages"`
	IsDisabled bool          `json:"is_disabled"`
}

// ToggleAction enables or disables a conversation.
type ToggleAction string

const (
	ToggleEnable  ToggleAction = "enable"
	ToggleDisable ToggleAction = "disable"
)

// ChatItem converts a chat message into a ChatMessage channel item so it
// can share the channel store's dedup and ordering rules.
func ChatItem(m ChatMessage) NotificationItem {
	return NotificationItem{
		ID:         m.ID,
		Channel:    ChannelChatMessage,
		Timestamp:  m.Timestamp,
		TargetRole: TargetAny,
		Payload: Payload{
			Title:  m.Message,
			Sender: m.Sender,
		},
	}
}

// ChatMessageFromItem is the inverse of ChatItem.
func ChatMessageFromItem(it NotificationItem) ChatMessage {
	return ChatMessage{
		ID:        it.ID,
		Sender:    it.Payload.Sender,
		Message:   it.Payload.Title,
		Timestamp: it.Timestamp,
	}
}
