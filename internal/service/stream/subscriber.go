package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
	"FlowScan/pkg/logger"
)

// ErrReconnectExhausted is reported when the reconnect budget runs out.
var ErrReconnectExhausted = errors.New("stream: reconnect attempts exhausted")

// State of the websocket connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

type Config struct {
	URL              string
	APIKey           string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	MaxReconnects    int // 0 means unlimited
	HeartbeatTimeout time.Duration
	PingInterval     time.Duration
}

type controlFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type incomingFrame struct {
	Channel string `json:"channel"`
}

// handlerQueueSize bounds the per-handler backlog. A handler that falls
// further behind loses events rather than stalling the read loop.
const handlerQueueSize = 64

// subscription is one registered handler with its own delivery queue,
// drained by a dedicated goroutine so handlers never block each other.
type subscription struct {
	fn    func(models.StreamEvent)
	queue chan models.StreamEvent
	quit  chan struct{}
}

// Subscriber maintains one long-lived websocket to the provider and fans
// messages out to per-channel handlers. On any failure it reconnects with
// capped exponential backoff and replays every active subscription, so
// callers subscribe once and never see the reconnects. A channel can carry
// any number of handlers; each runs on its own queue, so a slow or
// panicking one never delays the others or the read loop.
type Subscriber struct {
	cfg     Config
	log     *logger.Logger
	metrics drepo.Metrics

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	handlers map[string][]*subscription
	lastMsg  time.Time
	attempts int
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSubscriber(cfg Config, log *logger.Logger, m drepo.Metrics) *Subscriber {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	return &Subscriber{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		handlers: make(map[string][]*subscription),
		done:     make(chan struct{}),
	}
}

// Start dials the provider and launches the supervision loop. A failed
// first connect is treated like any mid-run drop: the loop keeps retrying
// with backoff in the background instead of failing the caller, so a
// provider blip at boot degrades the stream rather than the process.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("stream: already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	err := s.connect(runCtx)
	if err != nil {
		s.log.Warn("stream connect failed, retrying in background", logger.Error(err))
		s.metrics.RecordError("stream_disconnect")
	}
	go s.run(runCtx, err == nil)
	return nil
}

// Subscribe registers a handler and, when connected, sends the subscribe
// frame. The subscription survives reconnects. Multiple handlers may share
// a channel; each gets every event on its own queue.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, h func(models.StreamEvent)) error {
	sub := &subscription{
		fn:    h,
		queue: make(chan models.StreamEvent, handlerQueueSize),
		quit:  make(chan struct{}),
	}

	s.mu.Lock()
	first := len(s.handlers[channel]) == 0
	s.handlers[channel] = append(s.handlers[channel], sub)
	conn := s.conn
	connected := s.state == StateConnected || s.state == StateSubscribed
	if connected {
		s.state = StateSubscribed
	}
	s.mu.Unlock()

	go s.pump(channel, sub)

	if !connected || !first {
		return nil
	}
	return s.writeControl(conn, controlFrame{Action: "subscribe", Channel: channel})
}

// Unsubscribe drops every handler registered on the channel and stops
// their delivery goroutines.
func (s *Subscriber) Unsubscribe(ctx context.Context, channel string) error {
	s.mu.Lock()
	subs := s.handlers[channel]
	delete(s.handlers, channel)
	conn := s.conn
	connected := s.state == StateConnected || s.state == StateSubscribed
	s.mu.Unlock()

	for _, sub := range subs {
		close(sub.quit)
	}

	if !connected {
		return nil
	}
	return s.writeControl(conn, controlFrame{Action: "unsubscribe", Channel: channel})
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	handlers := s.handlers
	s.handlers = make(map[string][]*subscription)
	s.mu.Unlock()

	for _, subs := range handlers {
		for _, sub := range subs {
			close(sub.quit)
		}
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected || s.state == StateSubscribed
}

func (s *Subscriber) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	header := map[string][]string{"Authorization": {"Bearer " + s.cfg.APIKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("stream connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.lastMsg = time.Now()
	channels := make([]string, 0, len(s.handlers))
	for ch := range s.handlers {
		channels = append(channels, ch)
	}
	if len(channels) > 0 {
		s.state = StateSubscribed
	}
	s.mu.Unlock()

	for _, ch := range channels {
		if err := s.writeControl(conn, controlFrame{Action: "subscribe", Channel: ch}); err != nil {
			conn.Close()
			s.setState(StateDisconnected)
			return fmt.Errorf("stream resubscribe %s: %w", ch, err)
		}
	}

	s.log.Info("stream connected",
		logger.String("url", s.cfg.URL), logger.Int("channels", len(channels)))
	return nil
}

// run owns the reconnect loop. One iteration is one connection lifetime.
// connected reports whether the initial dial succeeded; when it did not,
// the loop starts with a reconnect instead of a read.
func (s *Subscriber) run(ctx context.Context, connected bool) {
	defer close(s.done)
	if !connected && !s.reconnect(ctx) {
		return
	}
	for {
		err := s.readUntilFailure(ctx)
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}
		s.log.Warn("stream connection lost", logger.Error(err))
		s.metrics.RecordError("stream_disconnect")

		if !s.reconnect(ctx) {
			return
		}
	}
}

// reconnect retries with capped exponential backoff until a connect
// succeeds or the budget is spent. Returns false when giving up.
func (s *Subscriber) reconnect(ctx context.Context) bool {
	for {
		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		if s.cfg.MaxReconnects > 0 && attempt > s.cfg.MaxReconnects {
			s.log.Error("stream giving up", logger.Error(ErrReconnectExhausted),
				logger.Int("attempts", attempt-1))
			s.setState(StateDisconnected)
			return false
		}

		delay := s.backoff(attempt)
		s.log.Info("stream reconnecting",
			logger.Int("attempt", attempt), logger.Duration("delay", delay))

		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return false
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err == nil {
			return true
		} else {
			s.log.Warn("stream reconnect failed", logger.Error(err))
		}
	}
}

func (s *Subscriber) backoff(attempt int) time.Duration {
	d := s.cfg.ReconnectMin << uint(attempt-1)
	if d > s.cfg.ReconnectMax || d <= 0 {
		d = s.cfg.ReconnectMax
	}
	// up to 20% jitter to avoid synchronized reconnect storms
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	if d+jitter > s.cfg.ReconnectMax {
		return s.cfg.ReconnectMax
	}
	return d + jitter
}

// readUntilFailure pumps messages until the connection breaks, the
// heartbeat watchdog fires, or ctx ends.
func (s *Subscriber) readUntilFailure(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("stream: no connection")
	}

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go s.watchdog(ctx, conn, watchdogDone)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.lastMsg = time.Now()
		s.attempts = 0
		s.mu.Unlock()

		var frame incomingFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Channel == "" {
			continue
		}
		s.dispatch(frame.Channel, payload)
	}
}

// watchdog pings on an interval and force-closes the socket when no
// message has arrived within the heartbeat window, which unblocks the
// read loop into a reconnect.
func (s *Subscriber) watchdog(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastMsg) > s.cfg.HeartbeatTimeout
			s.mu.Unlock()
			if stale {
				s.log.Warn("stream heartbeat timeout, forcing reconnect")
				conn.Close()
				return
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

// dispatch enqueues the event on every handler registered for the
// channel. It never blocks: a handler whose queue is full loses the event
// so that nothing stalls the read loop or the heartbeat accounting.
func (s *Subscriber) dispatch(channel string, payload []byte) {
	s.mu.Lock()
	subs := append([]*subscription(nil), s.handlers[channel]...)
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	s.metrics.RecordStreamEvent(channel)

	ev := models.StreamEvent{Channel: channel, Payload: payload, ReceivedAt: time.Now()}
	for _, sub := range subs {
		select {
		case sub.queue <- ev:
		case <-sub.quit:
		default:
			s.log.Warn("stream handler backlog, dropping event",
				logger.String("channel", channel))
			s.metrics.RecordError("stream_handler_backlog")
		}
	}
}

// pump drains one handler's queue until the subscription is dropped.
func (s *Subscriber) pump(channel string, sub *subscription) {
	for {
		select {
		case <-sub.quit:
			return
		case ev := <-sub.queue:
			s.invoke(channel, sub.fn, ev)
		}
	}
}

// invoke runs the handler with panic isolation: a panicking handler must
// not take its delivery goroutine down with it.
func (s *Subscriber) invoke(channel string, fn func(models.StreamEvent), ev models.StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("stream handler panic",
				logger.String("channel", channel), logger.Any("panic", r))
			s.metrics.RecordError("stream_handler_panic")
		}
	}()
	fn(ev)
}

func (s *Subscriber) writeControl(conn *websocket.Conn, f controlFrame) error {
	if conn == nil {
		return errors.New("stream: not connected")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

var _ drepo.MarketStream = (*Subscriber)(nil)
