package conn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockChatServer is a websocket endpoint that hands accepted server-side
// connections to the test.
type mockChatServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	connChan chan *websocket.Conn
	accepted atomic.Int32
}

func newMockChatServer(t *testing.T) *mockChatServer {
	t.Helper()

	mock := &mockChatServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connChan: make(chan *websocket.Conn, 4),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "test-token" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := mock.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mock.accepted.Add(1)
		mock.connChan <- c
	}))

	t.Cleanup(mock.server.Close)
	return mock
}

func (m *mockChatServer) url(t *testing.T) string {
	t.Helper()
	u, err := BuildURL("ws"+strings.TrimPrefix(m.server.URL, "http")+"/ws/chat/", "test-token")
	require.NoError(t, err)
	return u
}

func (m *mockChatServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-m.connChan:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive connection")
		return nil
	}
}

// drain reads from a server-side conn until it fails so close frames
// are processed.
func drain(c *websocket.Conn) {
	go func() {
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// countingDialer records every dial attempt.
type countingDialer struct {
	inner Dialer
	fail  bool

	mu    sync.Mutex
	times []time.Time
}

func (d *countingDialer) DialContext(ctx context.Context, u string, h http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	d.times = append(d.times, time.Now())
	d.mu.Unlock()
	if d.fail {
		return nil, nil, errors.New("connection refused")
	}
	return d.inner.DialContext(ctx, u, h)
}

func (d *countingDialer) attempts() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func TestBuildURL(t *testing.T) {
	u, err := BuildURL("http://chat.local:8000/ws/chat/", "a b")
	require.NoError(t, err)
	assert.Equal(t, "ws://chat.local:8000/ws/chat/?token=a+b", u)

	u, err = BuildURL("wss://chat.local/ws/chat/", "t")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.local/ws/chat/?token=t", u)

	_, err = BuildURL("ftp://chat.local", "t")
	require.Error(t, err)
}

func TestManagerConnectReceiveSend(t *testing.T) {
	mock := newMockChatServer(t)
	m := NewManager(nil, 50*time.Millisecond)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), mock.url(t)))
	require.ErrorIs(t, m.Connect(context.Background(), mock.url(t)), ErrAlreadyStarted)

	srv := mock.accept(t)
	waitState(t, m, StateOpen)

	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":"u1","message":"hi"}`)))

	select {
	case data := <-m.Messages():
		assert.JSONEq(t, `{"sender_id":"u1","message":"hi"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	require.NoError(t, m.Send(map[string]string{"message": "hello", "receiverId": "u2"}))
	_, out, err := srv.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello","receiverId":"u2"}`, string(out))

	drain(srv)
}

func TestManagerSendWhileNotOpen(t *testing.T) {
	m := NewManager(&countingDialer{fail: true}, time.Hour)
	defer m.Close()

	require.ErrorIs(t, m.Send(map[string]string{"message": "x"}), ErrNotOpen)

	require.NoError(t, m.Connect(context.Background(), "ws://unused"))
	require.ErrorIs(t, m.Send(map[string]string{"message": "x"}), ErrNotOpen)
}

func TestManagerReconnectsOnceAfterDelay(t *testing.T) {
	mock := newMockChatServer(t)
	dialer := &countingDialer{inner: websocket.DefaultDialer}
	delay := 100 * time.Millisecond

	m := NewManager(dialer, delay)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background(), mock.url(t)))
	first := mock.accept(t)
	waitState(t, m, StateOpen)

	// Server drops the connection.
	lostAt := time.Now()
	first.Close()

	waitState(t, m, StateConnecting)
	second := mock.accept(t)
	waitState(t, m, StateOpen)
	drain(second)

	attempts := dialer.attempts()
	require.Len(t, attempts, 2)
	assert.GreaterOrEqual(t, attempts[1].Sub(lostAt), delay)
	assert.Equal(t, int32(2), mock.accepted.Load())
}

func TestManagerDialFailureSchedulesSingleTimer(t *testing.T) {
	dialer := &countingDialer{fail: true}
	delay := 80 * time.Millisecond

	m := NewManager(dialer, delay)
	require.NoError(t, m.Connect(context.Background(), "ws://unused"))

	require.Eventually(t, func() bool { return len(dialer.attempts()) >= 3 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnecting, m.State())
	require.NoError(t, m.Close())

	attempts := dialer.attempts()
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), delay)
	}
}

func TestManagerCloseStopsReconnect(t *testing.T) {
	dialer := &countingDialer{fail: true}
	m := NewManager(dialer, 50*time.Millisecond)
	require.NoError(t, m.Connect(context.Background(), "ws://unused"))

	require.Eventually(t, func() bool { return len(dialer.attempts()) == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, dialer.attempts(), 1)
	assert.Equal(t, StateClosed, m.State())

	_, ok := <-m.Messages()
	assert.False(t, ok)
	require.ErrorIs(t, m.Connect(context.Background(), "ws://unused"), ErrClosed)
}

func TestManagerCancelledContextStopsReconnect(t *testing.T) {
	dialer := &countingDialer{fail: true}
	m := NewManager(dialer, 20*time.Millisecond)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Connect(ctx, "ws://unused"))

	waitState(t, m, StateClosed)
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, dialer.attempts(), 1)
}
