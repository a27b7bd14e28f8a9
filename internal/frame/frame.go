// Package frame decodes inbound socket frames into a closed set of
// variants and routes them to a handler.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/hrnotify/internal/model"
)

var (
	// ErrMalformed is returned for payloads that are not a JSON object or
	// whose fields have the wrong shape for their declared type.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnroutable is returned for well-formed frames that match no
	// known variant.
	ErrUnroutable = errors.New("unroutable frame")
)

// Kind names a frame variant.
type Kind string

const (
	KindChatMessage  Kind = "chat_message"
	KindActivity     Kind = "activity"
	KindStatusUpdate Kind = "status_update"
	KindError        Kind = "error"
)

// Action is the effect an activity frame carries.
type Action string

const (
	ActionClearChat     Action = "clear_chat"
	ActionDeleteMessage Action = "delete_message"
	ActionEditMessage   Action = "edit_message"
)

// Frame is one decoded inbound frame. The concrete type is one of
// ChatMessage, Activity, StatusUpdate or Error.
type Frame interface {
	Kind() Kind
}

// ChatMessage is a chat message pushed to a participant.
type ChatMessage struct {
	ID         string
	SenderID   string
	ReceiverID string
	Message    string
	Timestamp  time.Time

	// Legacy is set when the frame carried no type field and was
	// recognised by its sender id alone.
	Legacy bool
}

// Activity is a conversation-level effect initiated by one participant.
type Activity struct {
	Action       Action
	InitiatorID  string
	MessageID    string
	NewText      string
	Participants []string
}

// StatusUpdate toggles the disabled flag of the conversation between
// the participants.
type StatusUpdate struct {
	Participants []string
	IsDisabled   bool
}

// Error is an application error reported by the backend.
type Error struct {
	Message string
}

func (ChatMessage) Kind() Kind  { return KindChatMessage }
func (Activity) Kind() Kind     { return KindActivity }
func (StatusUpdate) Kind() Kind { return KindStatusUpdate }
func (Error) Kind() Kind        { return KindError }

// ID is an identifier the backend sends either as a JSON string or as a
// JSON number.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// raw is the union of every field any variant carries.
type raw struct {
	Type         *string `json:"type"`
	ID           ID      `json:"id"`
	SenderID     *ID     `json:"sender_id"`
	ReceiverID   ID      `json:"receiver_id"`
	Message      string  `json:"message"`
	Timestamp    string  `json:"timestamp"`
	Action       string  `json:"action"`
	InitiatorID  ID      `json:"initiator_id"`
	MessageID    ID      `json:"message_id"`
	NewText      string  `json:"new_text"`
	Participants []ID    `json:"participants"`
	IsDisabled   bool    `json:"is_disabled"`
	Error        string  `json:"error"`
}

// Parse classifies one inbound payload.
//
// A frame without a "type" key but with a "sender_id" is a legacy chat
// message. A frame that has a "type" key never falls back to the legacy
// rule, even if the type is unknown or null.
func Parse(data []byte) (Frame, error) {
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if r.Type == nil && hasKey(data, "type") {
		// "type": null is a typed frame with no usable type.
		return nil, fmt.Errorf("%w: null type", ErrUnroutable)
	}
	if r.Type == nil {
		if r.SenderID != nil {
			m := chatMessage(r)
			m.Legacy = true
			return m, nil
		}
		return nil, ErrUnroutable
	}

	switch Kind(*r.Type) {
	case KindChatMessage:
		if r.SenderID == nil {
			return nil, fmt.Errorf("%w: chat_message without sender_id", ErrMalformed)
		}
		return chatMessage(r), nil

	case KindActivity:
		switch Action(r.Action) {
		case ActionClearChat, ActionDeleteMessage, ActionEditMessage:
		default:
			return nil, fmt.Errorf("%w: unknown activity action %q", ErrUnroutable, r.Action)
		}
		if Action(r.Action) != ActionClearChat && r.MessageID == "" {
			return nil, fmt.Errorf("%w: %s without message_id", ErrMalformed, r.Action)
		}
		return Activity{
			Action:       Action(r.Action),
			InitiatorID:  string(r.InitiatorID),
			MessageID:    string(r.MessageID),
			NewText:      r.NewText,
			Participants: ids(r.Participants),
		}, nil

	case KindStatusUpdate:
		return StatusUpdate{
			Participants: ids(r.Participants),
			IsDisabled:   r.IsDisabled,
		}, nil

	case KindError:
		msg := r.Error
		if msg == "" {
			msg = r.Message
		}
		return Error{Message: msg}, nil
	}

	return nil, fmt.Errorf("%w: type %q", ErrUnroutable, *r.Type)
}

// hasKey reports whether the top-level object in data has key.
func hasKey(data []byte, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	_, ok := fields[key]
	return ok
}

func chatMessage(r raw) ChatMessage {
	return ChatMessage{
		ID:         string(r.ID),
		SenderID:   string(*r.SenderID),
		ReceiverID: string(r.ReceiverID),
		Message:    r.Message,
		Timestamp:  model.ParseTime(r.Timestamp),
	}
}

func ids(in []ID) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		out = append(out, string(id))
	}
	return out
}
