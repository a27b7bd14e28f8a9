package session

import (
	"github.com/nhle/hrnotify/internal/conn"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/unread"
)

// Event is something the UI should react to.
type Event interface {
	event()
}

// CountsChangedEvent is published when the unread counts change.
type CountsChangedEvent struct {
	Counts unread.Counts
}

// FeedChangedEvent is published when a channel store changed.
type FeedChangedEvent struct {
	Channel model.ChannelType
}

// ChatChangedEvent is published when the chat surface changed.
type ChatChangedEvent struct{}

// ConnectionEvent is published on socket state transitions.
type ConnectionEvent struct {
	State conn.State
}

// ErrorEvent carries an application error reported by the server. It
// is transient: the UI shows it and forgets it.
type ErrorEvent struct {
	Message string
}

// AckFailedEvent reports a server acknowledgement that failed. The
// item stays read locally.
type AckFailedEvent struct {
	Channel model.ChannelType
	ID      string
	Err     error
}

// AuthFailedEvent is published when a REST source rejects the token.
type AuthFailedEvent struct {
	Channel model.ChannelType
	Err     error
}

func (CountsChangedEvent) event() {}
func (FeedChangedEvent) event()   {}
func (ChatChangedEvent) event()   {}
func (ConnectionEvent) event()    {}
func (ErrorEvent) event()         {}
func (AckFailedEvent) event()     {}
func (AuthFailedEvent) event()    {}
