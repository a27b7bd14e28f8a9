package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nhle/hrnotify/internal/model"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a small namespaced key-value store that survives restarts.
// Values are opaque bytes; callers store JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ItemsKey is the key holding the persisted item list of a local channel.
func ItemsKey(ch model.ChannelType) string {
	return "items:" + string(ch)
}

// ReadPrefix is the common prefix of every read key of role.
func ReadPrefix(role model.Role) string {
	return "read:" + role.Slug() + ":"
}

// ReadKey is the key holding the read ids of a channel as seen by role.
func ReadKey(role model.Role, ch model.ChannelType) string {
	return ReadPrefix(role) + string(ch)
}

// GetJSON decodes the value at key into dst. A missing key leaves dst
// untouched and returns ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}
