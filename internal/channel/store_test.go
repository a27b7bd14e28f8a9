package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/store"
	"github.com/nhle/hrnotify/tests/testutil"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func item(id string, at time.Time, title string) model.NotificationItem {
	return model.NotificationItem{
		ID:        id,
		Timestamp: at,
		Payload:   model.Payload{Title: title},
	}
}

func ids(items []model.NotificationItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFetchThenPushSameIDCollapses(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelTicket)
	s.IngestFetched([]model.NotificationItem{item("T1", t0, "printer broken")})
	added := s.IngestPushed(item("T1", t0.Add(time.Minute), "printer fixed"))

	assert.False(t, added)
	require.Equal(t, 1, s.Len())
	got, ok := s.Get("T1")
	require.True(t, ok)
	assert.Equal(t, "printer fixed", got.Payload.Title)
	assert.Equal(t, t0.Add(time.Minute), got.Timestamp)
	assert.Equal(t, model.ChannelTicket, got.Channel)
}

func TestPushForUnfetchedIDAccepted(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelTaskUpdate)
	assert.True(t, s.IngestPushed(item("x", t0, "new")))
	assert.Equal(t, []string{"x"}, ids(s.Items()))
}

func TestItemsOrder(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelLeaveRequest)
	s.IngestFetched([]model.NotificationItem{
		item("old", t0, ""),
		item("tie-first", t0.Add(time.Hour), ""),
		item("tie-second", t0.Add(time.Hour), ""),
		item("new", t0.Add(2*time.Hour), ""),
	})

	assert.Equal(t, []string{"new", "tie-second", "tie-first", "old"}, ids(s.Items()))

	// Updating keeps the original insertion position.
	s.IngestPushed(item("tie-first", t0.Add(time.Hour), "edited"))
	assert.Equal(t, []string{"new", "tie-second", "tie-first", "old"}, ids(s.Items()))
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelChatMessage)
	s.IngestPushed(item("m1", t0, "hi"))

	assert.True(t, s.Remove("m1"))
	assert.False(t, s.Remove("m1"))
	assert.Zero(t, s.Len())
}

func TestReplaceDropsVanishedItems(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelTicket)
	s.IngestFetched([]model.NotificationItem{item("a", t0, ""), item("b", t0, "")})
	s.Replace([]model.NotificationItem{item("b", t0, "still here"), item("c", t0, "")})

	assert.ElementsMatch(t, []string{"b", "c"}, ids(s.Items()))
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	s := New(model.ChannelChatMessage)
	s.IngestPushed(item("m1", t0, "hi"))

	ok := s.Update("m1", func(it *model.NotificationItem) { it.Payload.Title = "hello" })
	require.True(t, ok)
	got, _ := s.Get("m1")
	assert.Equal(t, "hello", got.Payload.Title)

	assert.False(t, s.Update("missing", func(*model.NotificationItem) {}))
}

func TestPersistenceRoundTripAndCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)

	s := New(model.ChannelTaskAssignment, WithPersistence(kv, 3))
	for i := 0; i < 5; i++ {
		s.IngestPushed(item(fmt.Sprintf("a%d", i), t0.Add(time.Duration(i)*time.Minute), ""))
	}
	require.Equal(t, 3, s.Len())
	require.NoError(t, s.Persist(ctx))

	reloaded := New(model.ChannelTaskAssignment, WithPersistence(kv, 3))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"a4", "a3", "a2"}, ids(reloaded.Items()))

	require.NoError(t, reloaded.Purge(ctx))
	assert.Zero(t, reloaded.Len())
	_, err := kv.Get(ctx, store.ItemsKey(model.ChannelTaskAssignment))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMalformedPersistedListLoadsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := testutil.NewTestStore(t)
	require.NoError(t, kv.Put(ctx, store.ItemsKey(model.ChannelLeaveStatus), []byte(`{"not":"a list"`)))

	s := New(model.ChannelLeaveStatus, WithPersistence(kv, 0))
	require.NoError(t, s.Load(ctx))
	assert.Zero(t, s.Len())
}
