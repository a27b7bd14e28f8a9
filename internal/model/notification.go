package model

import "time"

// ChannelType identifies one independent source of notification-worthy events.
type ChannelType string

const (
	ChannelTicket         ChannelType = "ticket"
	ChannelTaskUpdate     ChannelType = "task_update"
	ChannelLeaveRequest   ChannelType = "leave_request"
	ChannelLeaveStatus    ChannelType = "leave_status"
	ChannelTaskAssignment ChannelType = "task_assignment"
	ChannelChatMessage    ChannelType = "chat_message"
)

// AllChannels lists every channel type in a stable order.
var AllChannels = []ChannelType{
	ChannelTicket,
	ChannelTaskUpdate,
	ChannelLeaveRequest,
	ChannelLeaveStatus,
	ChannelTaskAssignment,
	ChannelChatMessage,
}

// ServerBacked reports whether read state for the channel is also
// acknowledged to the backend.
func (c ChannelType) ServerBacked() bool {
	return c == ChannelTicket
}

// LocalOnly reports whether the channel's items live only in the local
// persisted store (no REST listing exists for them).
func (c ChannelType) LocalOnly() bool {
	switch c {
	case ChannelTaskUpdate, ChannelLeaveRequest,
		ChannelLeaveStatus, ChannelTaskAssignment:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of the known channel types.
func (c ChannelType) Valid() bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

// Role is the authenticated user's role in the HR system.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleDepartmentHead Role = "Department Head"
	RoleEmployee       Role = "Employee"
)

// ParseRole maps the backend's role label onto a Role. Unknown labels
// map to RoleEmployee, which sees no notification channels.
func ParseRole(s string) Role {
	switch s {
	case string(RoleAdmin), "admin":
		return RoleAdmin
	case string(RoleDepartmentHead), "department_head", "head":
		return RoleDepartmentHead
	default:
		return RoleEmployee
	}
}

// Slug returns a key-safe form of the role.
func (r Role) Slug() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDepartmentHead:
		return "head"
	default:
		return "employee"
	}
}

// TargetRole is the audience a notification item is addressed to.
type TargetRole string

const (
	TargetAdmin          TargetRole = "admin"
	TargetDepartmentHead TargetRole = "department_head"
	TargetAny            TargetRole = "any"
)

// RoleContext identifies who is looking at the notifications.
type RoleContext struct {
	Role   Role   `json:"role"`
	UserID string `json:"user_id"`
}

// Payload holds the channel-specific, mutable fields of an item.
type Payload struct {
	// Title is the headline shown in the feed (ticket subject, task title).
	Title string `json:"title"`

	// Subtitle is a secondary line (leave range, comment, category).
	Subtitle string `json:"subtitle,omitempty"`

	// Sender names whoever caused the event.
	Sender string `json:"sender,omitempty"`

	// Status is the item's current status (ticket status, leave decision).
	Status string `json:"status,omitempty"`

	// Priority is the free-form priority label of tickets and tasks.
	Priority string `json:"priority,omitempty"`

	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`

	// Extra carries any remaining channel-specific fields.
	Extra map[string]string `json:"extra,omitempty"`
}

// NotificationItem is one observed event on a channel. Two items with
// the same ID on the same channel are the same event.
type NotificationItem struct {
	// ID is stable across the fetched and pushed copies of an event.
	ID string `json:"id"`

	// Channel is the source channel of the item.
	Channel ChannelType `json:"channel"`

	// Timestamp is when the event happened.
	Timestamp time.Time `json:"timestamp"`

	// TargetRole is the audience the item is addressed to.
	TargetRole TargetRole `json:"target_role"`

	// OwnerID scopes the item to one user (e.g. the department head a
	// task was assigned to). Empty means unscoped.
	OwnerID string `json:"owner_id,omitempty"`

	// Payload holds the display fields.
	Payload Payload `json:"payload"`

	// ServerRead is the read flag confirmed by the backend. Only
	// server-backed channels set it.
	ServerRead bool `json:"server_read,omitempty"`
}

// VisibleTo reports whether the item's owner scope admits the viewer.
func (n NotificationItem) VisibleTo(rc RoleContext) bool {
	return n.OwnerID == "" || n.OwnerID == rc.UserID
}
