// Package channel holds the per-channel item stores.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
)

// DefaultPersistLimit is how many of the newest items a persisted
// channel keeps.
const DefaultPersistLimit = 20

// insertion order across all stores, used to break timestamp ties
var seq atomic.Uint64

type entry struct {
	item model.NotificationItem
	seq  uint64
}

// Store holds the items of one channel, deduplicated by ID.
type Store struct {
	ch model.ChannelType

	mu      sync.RWMutex
	entries map[string]*entry

	kv    store.Store
	limit int
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence keeps the newest limit items in kv under the channel's
// items key. A non-positive limit uses DefaultPersistLimit.
func WithPersistence(kv store.Store, limit int) Option {
	return func(s *Store) {
		if limit <= 0 {
			limit = DefaultPersistLimit
		}
		s.kv = kv
		s.limit = limit
	}
}

// New returns an empty store for ch.
func New(ch model.ChannelType, opts ...Option) *Store {
	s := &Store{
		ch:      ch,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel returns the channel this store holds.
func (s *Store) Channel() model.ChannelType {
	return s.ch
}

// Persistent reports whether the store writes through to the kv store.
func (s *Store) Persistent() bool {
	return s.kv != nil
}

// IngestFetched merges a batch returned by a fetch.
func (s *Store) IngestFetched(items []model.NotificationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		s.upsertLocked(it)
	}
	s.trimLocked()
}

// Replace makes the store hold exactly the fetched batch: ids the
// source no longer returns are dropped, the rest are merged.
func (s *Store) Replace(items []model.NotificationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(items))
	for _, it := range items {
		keep[it.ID] = struct{}{}
	}
	for id := range s.entries {
		if _, ok := keep[id]; !ok {
			delete(s.entries, id)
		}
	}
	for _, it := range items {
		s.upsertLocked(it)
	}
	s.trimLocked()
}

// IngestPushed merges one item received live. It reports whether the id
// was new to the store.
func (s *Store) IngestPushed(it model.NotificationItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.upsertLocked(it)
	s.trimLocked()
	return added
}

// upsertLocked inserts it, or overwrites the mutable fields of the
// existing entry with the same id. Insertion order is kept on update.
func (s *Store) upsertLocked(it model.NotificationItem) bool {
	if it.ID == "" {
		return false
	}
	it.Channel = s.ch

	if e, ok := s.entries[it.ID]; ok {
		e.item = it
		return false
	}
	s.entries[it.ID] = &entry{item: it, seq: seq.Add(1)}
	return true
}

// Update applies fn to the item with id. It reports whether the item
// exists.
func (s *Store) Update(id string, fn func(*model.NotificationItem)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	fn(&e.item)
	e.item.ID = id
	e.item.Channel = s.ch
	return true
}

// Remove deletes the item with id. Removing a missing id is a no-op; it
// reports whether anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Clear removes every item.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Get returns the item with id.
func (s *Store) Get(id string) (model.NotificationItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return model.NotificationItem{}, false
	}
	return e.item, true
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Items returns the items newest first. Items with equal timestamps are
// ordered by insertion, later insertions first.
func (s *Store) Items() []model.NotificationItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]model.NotificationItem, len(sorted))
	for i, e := range sorted {
		out[i] = e.item
	}
	return out
}

func (s *Store) sortedLocked() []*entry {
	list := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.item.Timestamp.Equal(b.item.Timestamp) {
			return a.item.Timestamp.After(b.item.Timestamp)
		}
		return a.seq > b.seq
	})
	return list
}

// trimLocked drops the oldest items beyond the persist limit.
func (s *Store) trimLocked() {
	if s.limit <= 0 || len(s.entries) <= s.limit {
		return
	}
	for _, e := range s.sortedLocked()[s.limit:] {
		delete(s.entries, e.item.ID)
	}
}

// Load merges the persisted list into the store. A missing or malformed
// list loads as empty.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	var items []model.NotificationItem
	err := store.GetJSON(ctx, s.kv, store.ItemsKey(s.ch), &items)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		logging.Warn().Err(err).Str("channel", string(s.ch)).Msg("ignoring unreadable persisted items")
		return nil
	}

	s.IngestFetched(items)
	return nil
}

// Persist writes the newest items to the kv store. Stores without
// persistence do nothing.
func (s *Store) Persist(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	items := s.Items()
	if len(items) > s.limit {
		items = items[:s.limit]
	}
	if err := store.PutJSON(ctx, s.kv, store.ItemsKey(s.ch), items); err != nil {
		return fmt.Errorf("persisting %s items: %w", s.ch, err)
	}
	return nil
}

// Purge clears the store and removes its persisted list.
func (s *Store) Purge(ctx context.Context) error {
	s.Clear()
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(ctx, store.ItemsKey(s.ch)); err != nil {
		return fmt.Errorf("purging %s items: %w", s.ch, err)
	}
	return nil
}
