// Package feed merges the channel stores into the role's notification
// list and implements its open and clear actions.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nhle/hrnotify/internal/channel"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/readstate"
	"github.com/nhle/hrnotify/internal/unread"
)

// ErrNotVisible is returned by Open for items the viewer cannot see.
var ErrNotVisible = errors.New("notification not visible to this role")

// Entry is a feed row: the item plus its derived read flag.
type Entry struct {
	model.NotificationItem
	Read bool
}

// Target is where the UI should navigate after opening an item.
type Target struct {
	Route   string
	Channel model.ChannelType
	ItemID  string
}

// Route returns the page that shows items of ch.
func Route(ch model.ChannelType) string {
	switch ch {
	case model.ChannelTicket:
		return "/admin/tickets"
	case model.ChannelTaskUpdate:
		return "/admin/task-center"
	case model.ChannelLeaveRequest, model.ChannelLeaveStatus:
		return "/admin/employees/leaves"
	case model.ChannelTaskAssignment:
		return "/admin/employees/tasks"
	case model.ChannelChatMessage:
		return "/chat"
	default:
		return "/"
	}
}

// ClearResult reports what Clear did.
type ClearResult struct {
	// Cleared is the number of items removed from the feed.
	Cleared int

	// Acknowledged is the number of tickets the server confirmed.
	Acknowledged int

	// AckFailures lists tickets whose acknowledgement failed. They stay
	// read locally.
	AckFailures []*readstate.AckError

	// Err is set when local persistence failed.
	Err error
}

// Feed is the notification list of one viewer.
type Feed struct {
	rc      model.RoleContext
	tracker *readstate.Tracker
	stores  map[model.ChannelType]*channel.Store
}

// New returns a feed over stores for rc.
func New(rc model.RoleContext, tracker *readstate.Tracker, stores ...*channel.Store) *Feed {
	f := &Feed{
		rc:      rc,
		tracker: tracker,
		stores:  make(map[model.ChannelType]*channel.Store, len(stores)),
	}
	for _, s := range stores {
		f.stores[s.Channel()] = s
	}
	return f
}

// visible returns the role-visible items of every channel the role
// receives, grouped by channel.
func (f *Feed) visible() map[model.ChannelType][]model.NotificationItem {
	out := make(map[model.ChannelType][]model.NotificationItem)
	for _, ch := range unread.VisibleChannels(f.rc.Role) {
		s, ok := f.stores[ch]
		if !ok {
			continue
		}
		for _, it := range s.Items() {
			if unread.Visible(f.rc, it) {
				out[ch] = append(out[ch], it)
			}
		}
	}
	return out
}

// List returns the visible items of all channels, newest first, each
// annotated with its read flag.
func (f *Feed) List() []Entry {
	var entries []Entry
	visible := f.visible()
	for _, ch := range unread.VisibleChannels(f.rc.Role) {
		for _, it := range visible[ch] {
			entries = append(entries, Entry{
				NotificationItem: it,
				Read:             unread.IsRead(f.tracker, it),
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

// Counts returns the unread counts of the feed.
func (f *Feed) Counts() unread.Counts {
	sources := make([]unread.Source, 0, len(f.stores))
	for _, s := range f.stores {
		sources = append(sources, s)
	}
	return unread.Compute(f.rc, sources, f.tracker)
}

// Open marks it read and returns where to navigate. Tickets are
// acknowledged in the background; Open does not wait for it.
func (f *Feed) Open(ctx context.Context, it model.NotificationItem) (Target, error) {
	if !unread.Visible(f.rc, it) {
		return Target{}, ErrNotVisible
	}

	target := Target{Route: Route(it.Channel), Channel: it.Channel, ItemID: it.ID}
	if err := f.tracker.MarkRead(ctx, it.Channel, it.ID); err != nil {
		return target, fmt.Errorf("opening %s %s: %w", it.Channel, it.ID, err)
	}
	return target, nil
}

// ClearPlan is the snapshot a clear works on. Items that arrive after
// the snapshot are not touched by the clear.
type ClearPlan struct {
	ids     map[model.ChannelType][]string
	pending map[model.ChannelType][]string
	count   int
}

// PlanClear snapshots the visible items and the unread tickets among
// them.
func (f *Feed) PlanClear() ClearPlan {
	plan := ClearPlan{
		ids:     make(map[model.ChannelType][]string),
		pending: make(map[model.ChannelType][]string),
	}
	for ch, items := range f.visible() {
		plan.count += len(items)
		for _, it := range items {
			plan.ids[ch] = append(plan.ids[ch], it.ID)
			if ch.ServerBacked() && !unread.IsRead(f.tracker, it) {
				plan.pending[ch] = append(plan.pending[ch], it.ID)
			}
		}
	}
	return plan
}

// Acknowledge acknowledges the plan's unread tickets concurrently and
// waits for them. It touches no store, so callers may run it without
// their own lock.
func (f *Feed) Acknowledge(ctx context.Context, plan ClearPlan) ClearResult {
	res := ClearResult{Cleared: plan.count}
	for ch, pending := range plan.pending {
		failed := ackErrors(f.tracker.AcknowledgeAll(ctx, ch, pending))
		res.AckFailures = append(res.AckFailures, failed...)
		res.Acknowledged += len(pending) - len(failed)
	}
	return res
}

// FinishClear removes the plan's items. Tickets are marked read and
// keep their read ids so a later fetch shows them as read. Local
// channels drop the items, persist what is left and forget the read
// ids of the removed items only.
func (f *Feed) FinishClear(ctx context.Context, plan ClearPlan, res ClearResult) ClearResult {
	var errs []error

	for ch, ids := range plan.ids {
		s, ok := f.stores[ch]

		if ch.ServerBacked() {
			if err := f.tracker.MarkAllRead(ctx, ch, ids); err != nil {
				errs = append(errs, err)
			}
			if ok {
				for _, id := range ids {
					s.Remove(id)
				}
			}
			continue
		}

		if ok {
			for _, id := range ids {
				s.Remove(id)
			}
			persist := s.Persist
			if s.Len() == 0 {
				persist = s.Purge
			}
			if err := persist(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := f.tracker.Forget(ctx, ch, ids); err != nil {
			errs = append(errs, err)
		}
	}

	res.Err = errors.Join(errs...)
	logging.Info().
		Int("cleared", res.Cleared).
		Int("acknowledged", res.Acknowledged).
		Int("ack_failures", len(res.AckFailures)).
		Msg("notifications cleared")
	return res
}

// Clear marks every visible item read and removes it from the feed in
// one go. Callers that serialize access to the stores should use
// PlanClear, Acknowledge and FinishClear so the acknowledgements run
// outside their lock.
func (f *Feed) Clear(ctx context.Context) ClearResult {
	plan := f.PlanClear()
	return f.FinishClear(ctx, plan, f.Acknowledge(ctx, plan))
}

// ackErrors flattens a joined acknowledgement error.
func ackErrors(err error) []*readstate.AckError {
	if err == nil {
		return nil
	}
	var list []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		list = joined.Unwrap()
	} else {
		list = []error{err}
	}

	var out []*readstate.AckError
	for _, e := range list {
		var ackErr *readstate.AckError
		if errors.As(e, &ackErr) {
			out = append(out, ackErr)
		}
	}
	return out
}
