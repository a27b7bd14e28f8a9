package readstate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
	"github.com/nhle/hrnotify/tests/testutil"
)

// fakeAcker records acknowledged ids and fails the ids in failing.
type fakeAcker struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]bool
}

func (f *fakeAcker) Acknowledge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.failing[id] {
		return errors.New("503 service unavailable")
	}
	return nil
}

func (f *fakeAcker) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestMarkReadSurvivesReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)

	tr := New(model.RoleAdmin, kv)
	require.NoError(t, tr.MarkRead(ctx, model.ChannelTaskUpdate, "u1"))
	require.NoError(t, tr.MarkAllRead(ctx, model.ChannelTaskUpdate, []string{"u2", "u1"}))

	reloaded := New(model.RoleAdmin, kv)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.IsRead(model.ChannelTaskUpdate, "u1"))
	assert.Equal(t, []string{"u1", "u2"}, reloaded.ReadIDs(model.ChannelTaskUpdate))

	other := New(model.RoleDepartmentHead, kv)
	require.NoError(t, other.Load(ctx))
	assert.False(t, other.IsRead(model.ChannelTaskUpdate, "u1"))
}

func TestAckFailureKeepsLocalRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	acker := &fakeAcker{failing: map[string]bool{"T1": true}}

	var (
		mu       sync.Mutex
		reported []*AckError
	)
	tr := New(model.RoleAdmin, testutil.NewTestStore(t),
		WithAcknowledger(model.ChannelTicket, acker),
		WithAckErrorHandler(func(e *AckError) {
			mu.Lock()
			reported = append(reported, e)
			mu.Unlock()
		}),
	)

	require.NoError(t, tr.MarkRead(ctx, model.ChannelTicket, "T1"))
	tr.Wait()

	assert.True(t, tr.IsRead(model.ChannelTicket, "T1"))
	assert.Equal(t, []string{"T1"}, acker.called())
	require.Len(t, reported, 1)
	assert.Equal(t, "T1", reported[0].ID)
}

func TestConfirmedReadsAreNotAcknowledgedAgain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	acker := &fakeAcker{}
	tr := New(model.RoleAdmin, testutil.NewTestStore(t), WithAcknowledger(model.ChannelTicket, acker))

	require.NoError(t, tr.Reconcile(ctx, model.ChannelTicket, []string{"T1"}))
	assert.True(t, tr.IsRead(model.ChannelTicket, "T1"))

	require.NoError(t, tr.MarkRead(ctx, model.ChannelTicket, "T1"))
	require.NoError(t, tr.MarkRead(ctx, model.ChannelTicket, "T2"))
	tr.Wait()

	assert.Equal(t, []string{"T2"}, acker.called())
}

func TestLocalChannelsAreNotAcknowledged(t *testing.T) {
	t.Parallel()

	acker := &fakeAcker{}
	tr := New(model.RoleAdmin, testutil.NewTestStore(t), WithAcknowledger(model.ChannelTicket, acker))

	require.NoError(t, tr.MarkRead(context.Background(), model.ChannelLeaveRequest, "L1"))
	tr.Wait()
	assert.Empty(t, acker.called())
}

func TestAcknowledgeAllJoinsFailures(t *testing.T) {
	t.Parallel()

	acker := &fakeAcker{failing: map[string]bool{"T2": true}}
	tr := New(model.RoleAdmin, testutil.NewTestStore(t), WithAcknowledger(model.ChannelTicket, acker))

	err := tr.AcknowledgeAll(context.Background(), model.ChannelTicket, []string{"T1", "T2", "T3"})
	require.Error(t, err)

	var ackErr *AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, "T2", ackErr.ID)
	assert.ElementsMatch(t, []string{"T1", "T2", "T3"}, acker.called())
}

func TestPurgeIsScopedToOneChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)
	tr := New(model.RoleDepartmentHead, kv)

	require.NoError(t, tr.MarkRead(ctx, model.ChannelLeaveStatus, "s1"))
	require.NoError(t, tr.MarkRead(ctx, model.ChannelTaskAssignment, "a1"))
	require.NoError(t, tr.Purge(ctx, model.ChannelLeaveStatus))

	assert.False(t, tr.IsRead(model.ChannelLeaveStatus, "s1"))
	assert.True(t, tr.IsRead(model.ChannelTaskAssignment, "a1"))

	_, err := kv.Get(ctx, store.ReadKey(model.RoleDepartmentHead, model.ChannelLeaveStatus))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestForgetDropsOnlyGivenIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)
	tr := New(model.RoleAdmin, kv)

	require.NoError(t, tr.MarkAllRead(ctx, model.ChannelTaskUpdate, []string{"u1", "u2"}))
	require.NoError(t, tr.Forget(ctx, model.ChannelTaskUpdate, []string{"u1", "missing"}))
	assert.Equal(t, []string{"u2"}, tr.ReadIDs(model.ChannelTaskUpdate))

	reloaded := New(model.RoleAdmin, kv)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"u2"}, reloaded.ReadIDs(model.ChannelTaskUpdate))

	require.NoError(t, tr.Forget(ctx, model.ChannelTaskUpdate, []string{"u2"}))
	_, err := kv.Get(ctx, store.ReadKey(model.RoleAdmin, model.ChannelTaskUpdate))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMalformedReadStateLoadsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)
	require.NoError(t, kv.Put(ctx, store.ReadKey(model.RoleAdmin, model.ChannelTicket), []byte("garbage")))
	require.NoError(t, kv.Put(ctx, store.ReadKey(model.RoleAdmin, model.ChannelTaskUpdate), []byte(`["u1"]`)))

	tr := New(model.RoleAdmin, kv)
	require.NoError(t, tr.Load(ctx))
	assert.Empty(t, tr.ReadIDs(model.ChannelTicket))
	assert.True(t, tr.IsRead(model.ChannelTaskUpdate, "u1"))
}
