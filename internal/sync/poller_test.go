package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	ch    model.ChannelType
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Channel() model.ChannelType { return f.ch }

func (f *fakeSource) Fetch(context.Context) ([]model.NotificationItem, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []model.NotificationItem{{ID: string(rune('0' + n))}}, nil
}

func next(t *testing.T, p *Poller) Result {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestPollerFetchesImmediatelyAndOnRefresh(t *testing.T) {
	src := &fakeSource{ch: model.ChannelTicket}
	p := New()
	p.RegisterSource(src, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	r := next(t, p)
	require.NoError(t, r.Err)
	assert.Equal(t, model.ChannelTicket, r.Channel)
	assert.Len(t, r.Items, 1)

	p.Refresh(model.ChannelTicket)
	next(t, p)
	assert.Equal(t, int32(2), src.calls.Load())

	statuses := p.GetStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, SyncIdle, statuses[0].State)
	assert.False(t, statuses[0].LastSync.IsZero())
}

func TestPollerPollsOnInterval(t *testing.T) {
	src := &fakeSource{ch: model.ChannelTaskUpdate}
	p := New()
	p.RegisterSource(src, 20*time.Millisecond)
	p.Start(context.Background())
	defer p.Stop()

	for i := 0; i < 3; i++ {
		next(t, p)
	}
	assert.GreaterOrEqual(t, src.calls.Load(), int32(3))
}

func TestPollerReportsAuthErrors(t *testing.T) {
	src := &fakeSource{ch: model.ChannelTicket, err: &source.AuthError{Endpoint: "/admin/tickets", Status: 401}}
	other := &fakeSource{ch: model.ChannelLeaveRequest, err: errors.New("boom")}

	p := New()
	p.RegisterSource(src, time.Hour)
	p.RegisterSource(other, time.Hour)
	p.Start(context.Background())
	defer p.Stop()

	got := map[model.ChannelType]Result{}
	for i := 0; i < 2; i++ {
		r := next(t, p)
		got[r.Channel] = r
	}

	assert.True(t, got[model.ChannelTicket].AuthError)
	assert.False(t, got[model.ChannelLeaveRequest].AuthError)
	require.Error(t, got[model.ChannelLeaveRequest].Err)

	for _, s := range p.GetStatuses() {
		assert.Equal(t, SyncError, s.State)
	}
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p := New()
	p.RegisterSource(&fakeSource{ch: model.ChannelTicket}, time.Hour)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
