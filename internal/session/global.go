package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
)

// ErrAlreadyInitialized is returned by a second Initialize before
// Shutdown.
var ErrAlreadyInitialized = errors.New("session already initialized")

var (
	globalMu sync.Mutex
	current  *Service
)

// Initialize builds and starts the process-wide Service.
func Initialize(ctx context.Context, opts Options) (*Service, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if current != nil {
		return current, ErrAlreadyInitialized
	}

	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	current = s
	return s, nil
}

// Get returns the running Service, or nil.
func Get() *Service {
	globalMu.Lock()
	defer globalMu.Unlock()
	return current
}

// Shutdown closes the running Service, if any. A later Initialize
// starts a fresh one.
func Shutdown() error {
	globalMu.Lock()
	s := current
	current = nil
	globalMu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}

// Forget removes the read state persisted for role. Local channel lists
// are shared by every user of the database and are kept.
func Forget(ctx context.Context, kv store.Store, role model.Role) error {
	keys, err := kv.Keys(ctx, store.ReadPrefix(role))
	if err != nil {
		return fmt.Errorf("listing read state: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("deleting read state: %w", err)
	}
	return nil
}
