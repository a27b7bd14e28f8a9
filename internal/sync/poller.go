// Package sync polls the fetched channel sources in the background.
package sync

import (
	"context"
	"sort"
	gosync "sync"
	"time"

	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/source"
)

// SyncState represents the current state of a source sync operation.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the sync state for a single channel source.
type SyncStatus struct {
	Channel  model.ChannelType
	State    SyncState
	LastSync time.Time
	Error    error
}

// Result is the outcome of one fetch.
type Result struct {
	Channel   model.ChannelType
	Items     []model.NotificationItem
	Err       error
	AuthError bool
	FetchedAt time.Time
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// defaultInterval applies to sources registered without an interval.
const defaultInterval = 30 * time.Second

// sourceEntry holds a registered source and its schedule.
type sourceEntry struct {
	src      source.Source
	interval time.Duration
	trigger  chan struct{}
}

// Poller orchestrates background polling of registered sources.
type Poller struct {
	sources  []*sourceEntry
	statuses map[model.ChannelType]*SyncStatus
	resultCh chan Result
	stopCh   chan struct{}
	wg       gosync.WaitGroup
	mu       gosync.Mutex
	running  bool
	stopped  bool
}

// New creates an empty Poller.
func New() *Poller {
	return &Poller{
		statuses: make(map[model.ChannelType]*SyncStatus),
		resultCh: make(chan Result, 16),
		stopCh:   make(chan struct{}),
	}
}

// RegisterSource adds a source polled every interval. Sources must be
// registered before Start.
func (p *Poller) RegisterSource(src source.Source, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if interval <= 0 {
		interval = defaultInterval
	}
	p.sources = append(p.sources, &sourceEntry{
		src:      src,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	})
	p.statuses[src.Channel()] = &SyncStatus{
		Channel: src.Channel(),
		State:   SyncIdle,
	}
}

// Start launches one polling goroutine per source. Each source is
// fetched immediately, then on its interval.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	p.running = true
	sources := append([]*sourceEntry(nil), p.sources...)
	p.mu.Unlock()

	for _, entry := range sources {
		p.wg.Add(1)
		go p.pollSource(ctx, entry)
	}
}

// Stop halts all polling goroutines and waits for them.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Results delivers fetch outcomes.
func (p *Poller) Results() <-chan Result {
	return p.resultCh
}

// RefreshAll triggers an immediate poll of all registered sources.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.sources {
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A refresh is already pending.
		}
	}
}

// Refresh triggers an immediate poll of the source for ch.
func (p *Poller) Refresh(ch model.ChannelType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.sources {
		if entry.src.Channel() != ch {
			continue
		}
		select {
		case entry.trigger <- struct{}{}:
		default:
		}
	}
}

// GetStatuses returns the current sync status of all registered
// sources, ordered by channel.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Channel < statuses[j].Channel
	})
	return statuses
}

// pollSource runs the polling loop for a single source.
func (p *Poller) pollSource(ctx context.Context, entry *sourceEntry) {
	defer p.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	p.fetch(ctx, entry)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx, entry)
		case <-entry.trigger:
			p.fetch(ctx, entry)
		}
	}
}

// fetch performs one fetch and publishes the result.
func (p *Poller) fetch(ctx context.Context, entry *sourceEntry) {
	ch := entry.src.Channel()
	p.setStatus(ch, SyncRunning, nil)

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	start := time.Now()
	items, err := entry.src.Fetch(fctx)
	metrics.RecordFetch(string(ch), time.Since(start), err)

	res := Result{Channel: ch, Items: items, Err: err, FetchedAt: time.Now()}
	if err != nil {
		p.setStatus(ch, SyncError, err)
		res.Items = nil
		res.AuthError = source.IsAuthError(err)
		logging.Warn().Err(err).Str("channel", string(ch)).Bool("auth", res.AuthError).Msg("fetch failed")
	} else {
		p.setStatus(ch, SyncIdle, nil)
		logging.Debug().Str("channel", string(ch)).Int("items", len(items)).Msg("fetched")
	}

	select {
	case p.resultCh <- res:
	case <-p.stopCh:
	case <-ctx.Done():
	}
}

// setStatus updates the sync status for a channel.
func (p *Poller) setStatus(ch model.ChannelType, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[ch]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
