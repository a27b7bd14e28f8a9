package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
)

// LocalSource reads a local channel's persisted item list. Other
// processes sharing the database may have appended to it.
type LocalSource struct {
	ch model.ChannelType
	kv store.Store
}

// NewLocalSource returns a source over the persisted list of ch.
func NewLocalSource(ch model.ChannelType, kv store.Store) *LocalSource {
	return &LocalSource{ch: ch, kv: kv}
}

// Channel returns the channel of the list.
func (s *LocalSource) Channel() model.ChannelType {
	return s.ch
}

// Fetch returns the persisted items. Missing lists are empty; malformed
// lists are reported so the caller can log them.
func (s *LocalSource) Fetch(ctx context.Context) ([]model.NotificationItem, error) {
	var items []model.NotificationItem
	err := store.GetJSON(ctx, s.kv, store.ItemsKey(s.ch), &items)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s list: %w", s.ch, err)
	}

	valid := items[:0]
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		it.Channel = s.ch
		valid = append(valid, it)
	}
	return valid, nil
}
