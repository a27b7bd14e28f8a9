// Package readstate tracks which items the session user has read.
//
// Read ids are kept per channel, namespaced by role, and written
// through to the key-value store on every change. For server-backed
// channels a read is also acknowledged to the backend; a failed
// acknowledgement never rolls back the local mark.
package readstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
)

const ackTimeout = 15 * time.Second

// Acknowledger confirms a read to the backend.
type Acknowledger interface {
	Acknowledge(ctx context.Context, id string) error
}

// AckFunc adapts a function to Acknowledger.
type AckFunc func(ctx context.Context, id string) error

// Acknowledge calls f.
func (f AckFunc) Acknowledge(ctx context.Context, id string) error { return f(ctx, id) }

// AckError describes one failed acknowledgement.
type AckError struct {
	Channel model.ChannelType
	ID      string
	Err     error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("acknowledging %s %s: %v", e.Channel, e.ID, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }

type idSet map[string]struct{}

// Tracker holds the read ids of one role.
type Tracker struct {
	role model.Role
	kv   store.Store

	mu        sync.Mutex
	read      map[model.ChannelType]idSet
	confirmed map[model.ChannelType]idSet
	acks      map[model.ChannelType]Acknowledger
	onAckErr  func(*AckError)

	inflight sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAcknowledger registers the backend acknowledger for ch.
func WithAcknowledger(ch model.ChannelType, a Acknowledger) Option {
	return func(t *Tracker) { t.acks[ch] = a }
}

// WithAckErrorHandler is called for every failed acknowledgement.
func WithAckErrorHandler(fn func(*AckError)) Option {
	return func(t *Tracker) { t.onAckErr = fn }
}

// New returns a tracker for role persisting to kv.
func New(role model.Role, kv store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		role:      role,
		kv:        kv,
		read:      make(map[model.ChannelType]idSet),
		confirmed: make(map[model.ChannelType]idSet),
		acks:      make(map[model.ChannelType]Acknowledger),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the persisted ids of every channel. Missing or malformed
// lists load as empty.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range model.AllChannels {
		var ids []string
		err := store.GetJSON(ctx, t.kv, store.ReadKey(t.role, ch), &ids)
		switch {
		case errors.Is(err, store.ErrNotFound):
			continue
		case err != nil:
			logging.Warn().Err(err).Str("channel", string(ch)).Msg("ignoring unreadable read state")
			continue
		}
		set := t.setLocked(t.read, ch)
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	return nil
}

func (t *Tracker) setLocked(m map[model.ChannelType]idSet, ch model.ChannelType) idSet {
	set, ok := m[ch]
	if !ok {
		set = make(idSet)
		m[ch] = set
	}
	return set
}

// IsRead reports whether id on ch has been read.
func (t *Tracker) IsRead(ch model.ChannelType, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.read[ch][id]
	return ok
}

// ReadIDs returns the read ids of ch, sorted.
func (t *Tracker) ReadIDs(ch model.ChannelType) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedIDs(t.read[ch])
}

// MarkRead records id as read and persists it. For server-backed
// channels the read is acknowledged in the background unless the
// server already confirmed it; the call does not wait for it.
func (t *Tracker) MarkRead(ctx context.Context, ch model.ChannelType, id string) error {
	t.mu.Lock()
	err := t.addLocked(ctx, ch, []string{id})
	ack, needsAck := t.acks[ch]
	if _, done := t.confirmed[ch][id]; done {
		needsAck = false
	}
	t.mu.Unlock()

	if needsAck {
		t.inflight.Add(1)
		go func() {
			defer t.inflight.Done()
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
			defer cancel()
			_ = t.acknowledge(actx, ack, ch, id)
		}()
	}
	return err
}

// MarkAllRead records ids as read without acknowledging them.
func (t *Tracker) MarkAllRead(ctx context.Context, ch model.ChannelType, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(ctx, ch, ids)
}

// AcknowledgeAll acknowledges ids concurrently and waits for all of
// them. Failures are reported individually and joined into the result.
func (t *Tracker) AcknowledgeAll(ctx context.Context, ch model.ChannelType, ids []string) error {
	t.mu.Lock()
	ack, ok := t.acks[ch]
	t.mu.Unlock()
	if !ok || len(ids) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := t.acknowledge(ctx, ack, ch, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (t *Tracker) acknowledge(ctx context.Context, a Acknowledger, ch model.ChannelType, id string) error {
	metrics.AcksSent.Inc()
	if err := a.Acknowledge(ctx, id); err != nil {
		ackErr := &AckError{Channel: ch, ID: id, Err: err}
		metrics.AckFailures.Inc()
		logging.Warn().Err(err).Str("channel", string(ch)).Str("id", id).Msg("acknowledgement failed, keeping local read")

		t.mu.Lock()
		fn := t.onAckErr
		t.mu.Unlock()
		if fn != nil {
			fn(ackErr)
		}
		return ackErr
	}

	t.mu.Lock()
	t.setLocked(t.confirmed, ch)[id] = struct{}{}
	t.mu.Unlock()
	return nil
}

// Reconcile folds server-confirmed reads into the local set.
func (t *Tracker) Reconcile(ctx context.Context, ch model.ChannelType, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	confirmed := t.setLocked(t.confirmed, ch)
	for _, id := range ids {
		confirmed[id] = struct{}{}
	}
	return t.addLocked(ctx, ch, ids)
}

// Purge drops every read id of ch, in memory and persisted.
func (t *Tracker) Purge(ctx context.Context, ch model.ChannelType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.read, ch)
	delete(t.confirmed, ch)
	if err := t.kv.Delete(ctx, store.ReadKey(t.role, ch)); err != nil {
		return fmt.Errorf("purging read state of %s: %w", ch, err)
	}
	return nil
}

// Forget drops ids from the read set of ch and writes back what is
// left. Other ids of ch are kept.
func (t *Tracker) Forget(ctx context.Context, ch model.ChannelType, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.read[ch]
	changed := false
	for _, id := range ids {
		if _, ok := set[id]; ok {
			delete(set, id)
			changed = true
		}
		delete(t.confirmed[ch], id)
	}
	if !changed {
		return nil
	}
	if len(set) == 0 {
		if err := t.kv.Delete(ctx, store.ReadKey(t.role, ch)); err != nil {
			return fmt.Errorf("forgetting read state of %s: %w", ch, err)
		}
		return nil
	}
	if err := store.PutJSON(ctx, t.kv, store.ReadKey(t.role, ch), sortedIDs(set)); err != nil {
		return fmt.Errorf("forgetting read state of %s: %w", ch, err)
	}
	return nil
}

// Wait blocks until background acknowledgements have finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

// addLocked adds ids to the in-memory set and writes the whole set
// back. Must be called with mu held.
func (t *Tracker) addLocked(ctx context.Context, ch model.ChannelType, ids []string) error {
	set := t.setLocked(t.read, ch)
	changed := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := store.PutJSON(ctx, t.kv, store.ReadKey(t.role, ch), sortedIDs(set)); err != nil {
		return fmt.Errorf("persisting read state of %s: %w", ch, err)
	}
	return nil
}

func sortedIDs(set idSet) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
