// Package unread computes role-filtered unread counts.
package unread

import (
	"maps"

	"github.com/nhle/hrnotify/internal/model"
)

// ReadChecker answers whether an item has been read locally.
type ReadChecker interface {
	IsRead(ch model.ChannelType, id string) bool
}

// Source lists the current items of one channel.
type Source interface {
	Channel() model.ChannelType
	Items() []model.NotificationItem
}

// Counts is the unread count per channel plus the total.
type Counts struct {
	PerChannel map[model.ChannelType]int
	Total      int
}

// Equal reports whether c and o hold the same counts.
func (c Counts) Equal(o Counts) bool {
	return c.Total == o.Total && maps.Equal(c.PerChannel, o.PerChannel)
}

// Get returns the count of ch.
func (c Counts) Get(ch model.ChannelType) int {
	return c.PerChannel[ch]
}

// VisibleChannels returns the channels the role receives notifications
// on. Roles other than admin and department head see none.
func VisibleChannels(role model.Role) []model.ChannelType {
	switch role {
	case model.RoleAdmin:
		return []model.ChannelType{model.ChannelTicket, model.ChannelTaskUpdate, model.ChannelLeaveRequest}
	case model.RoleDepartmentHead:
		return []model.ChannelType{model.ChannelLeaveStatus, model.ChannelTaskAssignment}
	default:
		return nil
	}
}

// Visible reports whether it belongs in rc's notifications.
func Visible(rc model.RoleContext, it model.NotificationItem) bool {
	for _, ch := range VisibleChannels(rc.Role) {
		if ch == it.Channel {
			return rc.Role != model.RoleDepartmentHead || it.VisibleTo(rc)
		}
	}
	return false
}

// IsRead reports whether it counts as read: confirmed by the server or
// marked locally.
func IsRead(rc ReadChecker, it model.NotificationItem) bool {
	return it.ServerRead || rc.IsRead(it.Channel, it.ID)
}

// Compute counts unread, visible items across sources.
func Compute(rc model.RoleContext, sources []Source, read ReadChecker) Counts {
	counts := Counts{PerChannel: make(map[model.ChannelType]int)}
	for _, ch := range VisibleChannels(rc.Role) {
		counts.PerChannel[ch] = 0
	}

	for _, src := range sources {
		ch := src.Channel()
		if _, ok := counts.PerChannel[ch]; !ok {
			continue
		}
		for _, it := range src.Items() {
			it.Channel = ch
			if !Visible(rc, it) || IsRead(read, it) {
				continue
			}
			counts.PerChannel[ch]++
			counts.Total++
		}
	}
	return counts
}
