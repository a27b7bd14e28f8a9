// Package session runs the notification engine of one authenticated
// user: the channel stores, read state, live socket, REST polling and
// chat surface, wired together behind a single Service.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/hrnotify/internal/channel"
	"github.com/nhle/hrnotify/internal/chat"
	"github.com/nhle/hrnotify/internal/conn"
	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/frame"
	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/readstate"
	"github.com/nhle/hrnotify/internal/source"
	"github.com/nhle/hrnotify/internal/store"
	appsync "github.com/nhle/hrnotify/internal/sync"
	"github.com/nhle/hrnotify/internal/unread"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotLocalChannel is returned by Publish for channels whose
	// items come from the server.
	ErrNotLocalChannel = errors.New("channel does not accept published items")
)

const eventBuffer = 128

// idPrefixes are the prefixes of generated ids of published items.
var idPrefixes = map[model.ChannelType]string{
	model.ChannelTaskUpdate:     "update",
	model.ChannelLeaveRequest:   "head-leave",
	model.ChannelLeaveStatus:    "leave-status",
	model.ChannelTaskAssignment: "head-task",
}

// Options configures a Service.
type Options struct {
	// Session is the authenticated identity.
	Session credential.Session

	// Config holds endpoints and timings.
	Config *model.AppConfig

	// Store persists local channel lists and read state.
	Store store.Store

	// Dialer opens the socket. Nil uses the default gorilla dialer.
	Dialer conn.Dialer
}

// Service is the notification engine of one session. Inbound frames,
// poll results and user actions are applied one at a time under mu;
// REST calls run outside it.
type Service struct {
	rc    model.RoleContext
	token string
	cfg   *model.AppConfig

	mu            sync.Mutex
	stores        map[model.ChannelType]*channel.Store
	tracker       *readstate.Tracker
	feed          *feed.Feed
	conn          *conn.Manager
	router        *frame.Router
	chat          *chat.Session
	poller        *appsync.Poller
	counts        unread.Counts
	refreshRecent bool
	started       bool
	closed        bool
	cancel        context.CancelFunc

	evMu     sync.RWMutex
	events   chan Event
	evClosed bool

	wg sync.WaitGroup
}

// New wires a Service. Nothing runs until Start.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("creating session: store is required")
	}
	if opts.Config == nil {
		return nil, errors.New("creating session: config is required")
	}
	if opts.Session.Token == "" || opts.Session.UserID == "" {
		return nil, errors.New("creating session: token and user id are required")
	}

	cfg := opts.Config
	s := &Service{
		rc:     opts.Session.RoleContext(),
		token:  opts.Session.Token,
		cfg:    cfg,
		stores: make(map[model.ChannelType]*channel.Store),
		events: make(chan Event, eventBuffer),
	}

	tickets := source.NewTicketSource(source.NewClient(cfg.APIBaseURL, s.token))

	var all []*channel.Store
	for _, ch := range model.AllChannels {
		if ch == model.ChannelChatMessage {
			continue
		}
		var copts []channel.Option
		if ch.LocalOnly() {
			copts = append(copts, channel.WithPersistence(opts.Store, channel.DefaultPersistLimit))
		}
		st := channel.New(ch, copts...)
		s.stores[ch] = st
		all = append(all, st)
	}

	s.tracker = readstate.New(s.rc.Role, opts.Store,
		readstate.WithAcknowledger(model.ChannelTicket, tickets),
		readstate.WithAckErrorHandler(s.onAckError),
	)
	s.feed = feed.New(s.rc, s.tracker, all...)
	s.conn = conn.NewManager(opts.Dialer, cfg.ReconnectDelay())
	s.router = frame.NewRouter(s)

	chatAPI := source.NewChatAPI(source.NewClient(cfg.ChatBaseURL, s.token), s.rc.UserID)
	s.chat = chat.NewSession(s.rc, chatAPI, s.conn)

	s.poller = appsync.New()
	if s.rc.Role == model.RoleAdmin {
		s.poller.RegisterSource(tickets, cfg.PollInterval())
	}
	for _, ch := range model.AllChannels {
		if ch.LocalOnly() {
			s.poller.RegisterSource(source.NewLocalSource(ch, opts.Store), cfg.PollInterval())
		}
	}

	return s, nil
}

// Start loads persisted state, opens the socket and starts polling.
func (s *Service) Start(ctx context.Context) error {
	rawURL, err := conn.BuildURL(s.cfg.WSURL, s.token)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.tracker.Load(ctx); err != nil {
		logging.Warn().Err(err).Msg("loading read state")
	}
	for _, st := range s.stores {
		if !st.Persistent() {
			continue
		}
		if err := st.Load(ctx); err != nil {
			logging.Warn().Err(err).Str("channel", string(st.Channel())).Msg("loading channel")
		}
	}
	s.recomputeLocked()
	s.mu.Unlock()

	if err := s.chat.Load(ctx); err != nil {
		logging.Warn().Err(err).Msg("loading chat")
		if source.IsAuthError(err) {
			s.emit(AuthFailedEvent{Channel: model.ChannelChatMessage, Err: err})
		}
	} else {
		s.emit(ChatChangedEvent{})
	}

	if err := s.conn.Connect(ctx, rawURL); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	s.poller.Start(ctx)

	s.wg.Add(3)
	go s.readFrames(ctx)
	go s.watchConnection()
	go s.consumeResults(ctx)

	logging.Info().
		Str("role", string(s.rc.Role)).
		Str("user", s.rc.UserID).
		Msg("session started")
	return nil
}

// Close stops polling, closes the socket and ends the event stream.
// Background ticket acknowledgements are not awaited.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := s.conn.Close()
	s.poller.Stop()
	s.wg.Wait()

	s.evMu.Lock()
	s.evClosed = true
	close(s.events)
	s.evMu.Unlock()

	logging.Info().Msg("session closed")
	return err
}

// RoleContext returns the viewer identity.
func (s *Service) RoleContext() model.RoleContext {
	return s.rc
}

// Events delivers UI events. The channel is closed by Close. Events are
// dropped when the reader falls behind; Counts and Feed are always
// current.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Feed returns the role's notification list.
func (s *Service) Feed() []feed.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.List()
}

// Counts returns the current unread counts.
func (s *Service) Counts() unread.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// Open marks it read and returns where to navigate.
func (s *Service) Open(ctx context.Context, it model.NotificationItem) (feed.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.feed.Open(ctx, it)
	s.recomputeLocked()
	return target, err
}

// Clear marks every visible notification read and empties the feed.
// The visible items are snapshotted under the session lock, ticket
// acknowledgements are awaited without it, and only the snapshotted
// items are removed afterwards. Items published or fetched meanwhile
// stay.
func (s *Service) Clear(ctx context.Context) feed.ClearResult {
	s.mu.Lock()
	plan := s.feed.PlanClear()
	s.mu.Unlock()

	res := s.feed.Acknowledge(ctx, plan)

	s.mu.Lock()
	res = s.feed.FinishClear(ctx, plan, res)
	s.recomputeLocked()
	s.mu.Unlock()

	s.emit(FeedChangedEvent{})
	return res
}

// Publish adds an item to a local channel and persists it. A missing
// id is generated from the channel's prefix; a missing timestamp is
// now; a missing audience follows the channel.
func (s *Service) Publish(ctx context.Context, it model.NotificationItem) (model.NotificationItem, error) {
	if !it.Channel.LocalOnly() {
		return it, fmt.Errorf("publishing to %s: %w", it.Channel, ErrNotLocalChannel)
	}
	if strings.TrimSpace(it.ID) == "" {
		it.ID = idPrefixes[it.Channel] + "-" + uuid.NewString()
	}
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	if it.TargetRole == "" {
		it.TargetRole = defaultTarget(it.Channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stores[it.Channel]
	st.IngestPushed(it)
	if err := st.Persist(ctx); err != nil {
		return it, fmt.Errorf("publishing to %s: %w", it.Channel, err)
	}
	s.recomputeLocked()
	s.emit(FeedChangedEvent{Channel: it.Channel})

	logging.Debug().Str("channel", string(it.Channel)).Str("id", it.ID).Msg("published")
	return it, nil
}

func defaultTarget(ch model.ChannelType) model.TargetRole {
	switch ch {
	case model.ChannelLeaveStatus, model.ChannelTaskAssignment:
		return model.TargetDepartmentHead
	default:
		return model.TargetAdmin
	}
}

// Chat returns the chat surface.
func (s *Service) Chat() *chat.Session {
	return s.chat
}

// ConnectionState returns the socket state.
func (s *Service) ConnectionState() conn.State {
	return s.conn.State()
}

// Refresh re-polls every source now.
func (s *Service) Refresh() {
	s.poller.RefreshAll()
}

// SyncStatuses returns the poll status of each source.
func (s *Service) SyncStatuses() []appsync.SyncStatus {
	return s.poller.GetStatuses()
}

// OnChatMessage implements frame.Handler. Router calls arrive with mu held.
func (s *Service) OnChatMessage(m frame.ChatMessage) {
	if s.chat.ApplyChatMessage(m) {
		s.refreshRecent = true
	}
	s.emit(ChatChangedEvent{})
}

// OnActivity implements frame.Handler.
func (s *Service) OnActivity(a frame.Activity) {
	s.chat.ApplyActivity(a)
	s.refreshRecent = true
	s.emit(ChatChangedEvent{})
}

// OnStatusUpdate implements frame.Handler.
func (s *Service) OnStatusUpdate(u frame.StatusUpdate) {
	s.chat.ApplyStatusUpdate(u)
	s.emit(ChatChangedEvent{})
}

// OnError implements frame.Handler.
func (s *Service) OnError(e frame.Error) {
	logging.Warn().Str("message", e.Message).Msg("server reported error")
	s.emit(ErrorEvent{Message: e.Message})
}

func (s *Service) readFrames(ctx context.Context) {
	defer s.wg.Done()
	for data := range s.conn.Messages() {
		s.handleFrame(ctx, data)
	}
}

func (s *Service) handleFrame(ctx context.Context, data []byte) {
	s.mu.Lock()
	_ = s.router.Route(data)
	refresh := s.refreshRecent
	s.refreshRecent = false
	s.mu.Unlock()

	if !refresh {
		return
	}
	if err := s.chat.RefreshRecent(ctx); err != nil {
		logging.Warn().Err(err).Msg("refreshing conversations")
		return
	}
	s.emit(ChatChangedEvent{})
}

func (s *Service) watchConnection() {
	defer s.wg.Done()
	for st := range s.conn.States() {
		s.emit(ConnectionEvent{State: st})
	}
}

func (s *Service) consumeResults(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-s.poller.Results():
			s.applyResult(ctx, res)
		}
	}
}

// applyResult folds one poll result into its store. Ticket listings
// are authoritative and carry the server read flag; local lists are
// merged so a push made after the read still wins.
func (s *Service) applyResult(ctx context.Context, res appsync.Result) {
	if res.Err != nil {
		if res.AuthError {
			s.emit(AuthFailedEvent{Channel: res.Channel, Err: res.Err})
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[res.Channel]
	if !ok {
		return
	}

	if res.Channel.ServerBacked() {
		st.Replace(res.Items)
		var confirmed []string
		for _, it := range res.Items {
			if it.ServerRead {
				confirmed = append(confirmed, it.ID)
			}
		}
		if len(confirmed) > 0 {
			if err := s.tracker.Reconcile(ctx, res.Channel, confirmed); err != nil {
				logging.Warn().Err(err).Str("channel", string(res.Channel)).Msg("reconciling read state")
			}
		}
	} else {
		st.IngestFetched(res.Items)
	}

	s.recomputeLocked()
	s.emit(FeedChangedEvent{Channel: res.Channel})
}

func (s *Service) onAckError(e *readstate.AckError) {
	s.emit(AckFailedEvent{Channel: e.Channel, ID: e.ID, Err: e.Err})
}

// recomputeLocked refreshes the unread counts and announces a change.
func (s *Service) recomputeLocked() {
	c := s.feed.Counts()
	metrics.UnreadTotal.Set(float64(c.Total))
	if c.Equal(s.counts) {
		return
	}
	s.counts = c
	s.emit(CountsChangedEvent{Counts: c})
}

func (s *Service) emit(ev Event) {
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	if s.evClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		logging.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("event dropped, consumer is behind")
	}
}
