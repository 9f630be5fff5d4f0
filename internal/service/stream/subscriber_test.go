package stream

import (
	"context"
	"encoding/json"
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

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/pkg/logger"
)

var upgrader = websocket.Upgrader{}

type wsServer struct {
	*httptest.Server
	mu     sync.Mutex
	conns  []*websocket.Conn
	subs   chan string
	reject atomic.Bool
}

// newWSServer echoes subscribe/unsubscribe actions into subs and keeps
// every accepted connection so tests can kill them. While reject is set
// the server refuses the upgrade, simulating a provider outage.
func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{subs: make(chan string, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			var f struct {
				Action  string `json:"action"`
				Channel string `json:"channel"`
			}
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			s.subs <- f.Action + ":" + f.Channel
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) lastConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) push(t *testing.T, channel string, payload map[string]any) {
	t.Helper()
	payload["channel"] = channel
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, s.lastConn().WriteMessage(websocket.TextMessage, b))
}

func (s *wsServer) waitSub(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.subs:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no control frame, wanted %q", want)
	}
}

func newTestSubscriber(t *testing.T, srv *wsServer, maxReconnects int) *Subscriber {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	sub := NewSubscriber(Config{
		URL:              srv.url(),
		APIKey:           "test-key",
		ReconnectMin:     20 * time.Millisecond,
		ReconnectMax:     100 * time.Millisecond,
		MaxReconnects:    maxReconnects,
		HeartbeatTimeout: 5 * time.Second,
		PingInterval:     time.Second,
	}, log, drepo.NopMetrics{})
	t.Cleanup(func() { sub.Close() })
	return sub
}

func TestSubscribeDeliversEvents(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))
	assert.True(t, sub.IsConnected())

	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", func(e models.StreamEvent) {
		events <- e
	}))
	srv.waitSub(t, "subscribe:flow-alerts")

	srv.push(t, "flow-alerts", map[string]any{"ticker": "SPY", "premium": 250000.0})
	select {
	case e := <-events:
		assert.Equal(t, "flow-alerts", e.Channel)
		assert.Contains(t, string(e.Payload), "SPY")
		assert.False(t, e.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnknownChannelIgnored(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "price:SPY", func(e models.StreamEvent) {
		events <- e
	}))
	srv.waitSub(t, "subscribe:price:SPY")

	srv.push(t, "price:QQQ", map[string]any{"price": 430.0})
	srv.push(t, "price:SPY", map[string]any{"price": 502.0})

	select {
	case e := <-events:
		assert.Equal(t, "price:SPY", e.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, events)
}

func TestReconnectResubscribesAll(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	events := make(chan models.StreamEvent, 8)
	h := func(e models.StreamEvent) { events <- e }
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", h))
	require.NoError(t, sub.Subscribe(ctx, "lit_trades", h))
	srv.waitSub(t, "subscribe:flow-alerts")
	srv.waitSub(t, "subscribe:lit_trades")

	// Kill the connection; both channels must be replayed on the new one.
	srv.lastConn().Close()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-srv.subs:
			got[s] = true
		case <-time.After(3 * time.Second):
			t.Fatal("resubscribe frames not replayed")
		}
	}
	assert.True(t, got["subscribe:flow-alerts"])
	assert.True(t, got["subscribe:lit_trades"])

	srv.push(t, "lit_trades", map[string]any{"size": 900.0})
	select {
	case e := <-events:
		assert.Equal(t, "lit_trades", e.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after reconnect")
	}
}

func TestHandlerPanicDoesNotKillStream(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "gex:SPY", func(models.StreamEvent) {
		panic("bad handler")
	}))
	require.NoError(t, sub.Subscribe(ctx, "price:SPY", func(e models.StreamEvent) {
		events <- e
	}))
	srv.waitSub(t, "subscribe:gex:SPY")
	srv.waitSub(t, "subscribe:price:SPY")

	srv.push(t, "gex:SPY", map[string]any{"gex": 1.0})
	srv.push(t, "price:SPY", map[string]any{"price": 502.0})

	select {
	case e := <-events:
		assert.Equal(t, "price:SPY", e.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("stream died after handler panic")
	}
	assert.True(t, sub.IsConnected())
}

func TestSlowHandlerDoesNotStallOtherChannels(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	// One handler blocks until released; the other channel must keep
	// delivering in the meantime.
	release := make(chan struct{})
	require.NoError(t, sub.Subscribe(ctx, "lit_trades", func(models.StreamEvent) {
		<-release
	}))
	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "price:SPY", func(e models.StreamEvent) {
		events <- e
	}))
	srv.waitSub(t, "subscribe:lit_trades")
	srv.waitSub(t, "subscribe:price:SPY")

	srv.push(t, "lit_trades", map[string]any{"size": 900.0})
	srv.push(t, "price:SPY", map[string]any{"price": 502.0})

	select {
	case e := <-events:
		assert.Equal(t, "price:SPY", e.Channel)
	case <-time.After(time.Second):
		t.Fatal("fast channel stalled behind a blocked handler")
	}
	assert.True(t, sub.IsConnected())
	close(release)
}

func TestMultipleHandlersPerChannel(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	first := make(chan models.StreamEvent, 1)
	second := make(chan models.StreamEvent, 1)
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", func(e models.StreamEvent) {
		first <- e
	}))
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", func(e models.StreamEvent) {
		second <- e
	}))
	srv.waitSub(t, "subscribe:flow-alerts")

	srv.push(t, "flow-alerts", map[string]any{"ticker": "NVDA"})
	for name, ch := range map[string]chan models.StreamEvent{"first": first, "second": second} {
		select {
		case e := <-ch:
			assert.Equal(t, "flow-alerts", e.Channel)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s handler did not receive the event", name)
		}
	}
}

func TestStartSurvivesInitialConnectFailure(t *testing.T) {
	srv := newWSServer(t)
	srv.reject.Store(true)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))
	assert.False(t, sub.IsConnected())

	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", func(e models.StreamEvent) {
		events <- e
	}))

	// Provider comes back; the background loop must connect and replay
	// the subscription on its own.
	srv.reject.Store(false)
	srv.waitSub(t, "subscribe:flow-alerts")
	assert.Eventually(t, sub.IsConnected, 2*time.Second, 20*time.Millisecond)

	srv.push(t, "flow-alerts", map[string]any{"ticker": "SPY"})
	select {
	case e := <-events:
		assert.Equal(t, "flow-alerts", e.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after recovery")
	}
}

func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	srv := newWSServer(t)
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	sub := NewSubscriber(Config{
		URL:              srv.url(),
		APIKey:           "test-key",
		ReconnectMin:     20 * time.Millisecond,
		ReconnectMax:     100 * time.Millisecond,
		HeartbeatTimeout: 150 * time.Millisecond,
		PingInterval:     50 * time.Millisecond,
	}, log, drepo.NopMetrics{})
	t.Cleanup(func() { sub.Close() })

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))
	require.NoError(t, sub.Subscribe(ctx, "flow-alerts", func(models.StreamEvent) {}))
	srv.waitSub(t, "subscribe:flow-alerts")

	// The server never sends a message, so the watchdog must tear the
	// connection down and the loop must resubscribe on the replacement.
	srv.waitSub(t, "subscribe:flow-alerts")
	assert.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) >= 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 0)

	ctx := context.Background()
	require.NoError(t, sub.Start(ctx))

	events := make(chan models.StreamEvent, 8)
	require.NoError(t, sub.Subscribe(ctx, "off_lit_trades", func(e models.StreamEvent) {
		events <- e
	}))
	srv.waitSub(t, "subscribe:off_lit_trades")

	require.NoError(t, sub.Unsubscribe(ctx, "off_lit_trades"))
	srv.waitSub(t, "unsubscribe:off_lit_trades")

	srv.push(t, "off_lit_trades", map[string]any{"size": 100.0})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, events)
}

func TestReconnectBudgetExhausted(t *testing.T) {
	srv := newWSServer(t)
	sub := newTestSubscriber(t, srv, 2)

	require.NoError(t, sub.Start(context.Background()))

	// Shut the server down entirely so every reconnect fails.
	srv.CloseClientConnections()
	srv.Close()

	assert.Eventually(t, func() bool {
		return !sub.IsConnected()
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case <-sub.done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervision loop did not stop after exhausting reconnects")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	sub := NewSubscriber(Config{
		URL:          "ws://unused",
		ReconnectMin: time.Second,
		ReconnectMax: 30 * time.Second,
	}, log, drepo.NopMetrics{})

	base := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}
	for i, want := range base {
		d := sub.backoff(i + 1)
		assert.GreaterOrEqual(t, d, want, "attempt %d", i+1)
		assert.LessOrEqual(t, d, want+want/5, "attempt %d", i+1)
	}
	for attempt := 6; attempt <= 12; attempt++ {
		assert.Equal(t, 30*time.Second, sub.backoff(attempt), "attempt %d", attempt)
	}
}
