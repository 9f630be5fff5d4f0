package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowScan/internal/domain/models"
	drepo "FlowScan/internal/domain/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memAlertStore struct {
	mu     sync.Mutex
	alerts []*models.AlertRecord
	failOn bool
}

func (s *memAlertStore) Init(context.Context) error { return nil }

func (s *memAlertStore) StoreAlert(_ context.Context, a *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn {
		return errors.New("store down")
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *memAlertStore) RecentAlerts(context.Context, string, time.Time, int) ([]*models.AlertRecord, error) {
	return nil, nil
}

func (s *memAlertStore) Health(context.Context) error { return nil }
func (s *memAlertStore) Close() error                 { return nil }

type fakeDispatcher struct {
	name string
	mu   sync.Mutex
	sent []*models.AlertRecord
	err  error
}

func (d *fakeDispatcher) Name() string { return d.name }

func (d *fakeDispatcher) Dispatch(_ context.Context, a *models.AlertRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, a)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newGate(t *testing.T, store drepo.AlertStore, dispatchers []drepo.Dispatcher, clock drepo.Clock) *AlertGate {
	t.Helper()
	return NewAlertGate(testLog(t), drepo.NopMetrics{}, store, dispatchers,
		map[string]time.Duration{"intraday": 5 * time.Minute}, clock)
}

func TestGateEmitsNovelAlert(t *testing.T) {
	store := &memAlertStore{}
	disp := &fakeDispatcher{name: "discord"}
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, store, []drepo.Dispatcher{disp}, clock)

	rec, emitted := g.Submit(context.Background(), "intraday", composite("SPY", 8.2))
	require.True(t, emitted)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "intraday", rec.Mode)
	assert.Equal(t, 5*time.Minute, rec.CooldownTTL)
	assert.NotZero(t, rec.Fingerprint)
	assert.Len(t, store.alerts, 1)
	assert.Equal(t, 1, disp.count())
}

func TestGateSuppressesRepeatWithinCooldown(t *testing.T) {
	disp := &fakeDispatcher{name: "discord"}
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, []drepo.Dispatcher{disp}, clock)
	ctx := context.Background()

	_, emitted := g.Submit(ctx, "intraday", composite("SPY", 8.2))
	require.True(t, emitted)

	clock.advance(2 * time.Minute)
	_, emitted = g.Submit(ctx, "intraday", composite("SPY", 9.0)) // same identity, higher score
	assert.False(t, emitted)

	clock.advance(4 * time.Minute) // past the 5m window
	_, emitted = g.Submit(ctx, "intraday", composite("SPY", 8.5))
	assert.True(t, emitted)
	assert.Equal(t, 2, disp.count())
}

func TestGatePriceJitterSharesFingerprint(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, nil, clock)
	ctx := context.Background()

	a := composite("SPY", 8.2)
	a.PriceLevel = 500.10
	b := composite("SPY", 8.2)
	b.PriceLevel = 499.95 // same $0.50 bucket

	_, emitted := g.Submit(ctx, "intraday", a)
	require.True(t, emitted)
	_, emitted = g.Submit(ctx, "intraday", b)
	assert.False(t, emitted)

	c := composite("SPY", 8.2)
	c.PriceLevel = 501.40 // different bucket
	_, emitted = g.Submit(ctx, "intraday", c)
	assert.True(t, emitted)
}

func TestGateDifferentModesDoNotCollide(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, nil, clock)
	ctx := context.Background()

	_, emitted := g.Submit(ctx, "intraday", composite("SPY", 8.2))
	require.True(t, emitted)
	_, emitted = g.Submit(ctx, "swing", composite("SPY", 8.2))
	assert.True(t, emitted)
}

func TestGateDispatchFailureIsIsolated(t *testing.T) {
	bad := &fakeDispatcher{name: "telegram", err: errors.New("api down")}
	good := &fakeDispatcher{name: "discord"}
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, []drepo.Dispatcher{bad, good}, clock)

	rec, emitted := g.Submit(context.Background(), "intraday", composite("SPY", 8.2))
	require.True(t, emitted)
	require.NotNil(t, rec)
	assert.Equal(t, 1, good.count()) // healthy dispatcher still got it
}

func TestGateStoreFailureStillDispatches(t *testing.T) {
	store := &memAlertStore{failOn: true}
	disp := &fakeDispatcher{name: "discord"}
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, store, []drepo.Dispatcher{disp}, clock)

	_, emitted := g.Submit(context.Background(), "intraday", composite("SPY", 8.2))
	assert.True(t, emitted)
	assert.Equal(t, 1, disp.count())
}

func TestGateLazyPruneBoundsMemory(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, nil, clock)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		s := composite("SPY", 8.2)
		s.PriceLevel = 400 + float64(i)
		_, emitted := g.Submit(ctx, "intraday", s)
		require.True(t, emitted)
	}
	clock.advance(10 * time.Minute)

	// One more submit prunes everything expired.
	_, emitted := g.Submit(ctx, "intraday", composite("SPY", 8.2))
	require.True(t, emitted)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, 1, len(g.seen))
}

func TestGateRunDrainsChannel(t *testing.T) {
	disp := &fakeDispatcher{name: "discord"}
	clock := &fakeClock{t: time.Now()}
	g := newGate(t, &memAlertStore{}, []drepo.Dispatcher{disp}, clock)

	in := make(chan Emission, 4)
	in <- Emission{Mode: "intraday", Score: composite("SPY", 8.2)}
	in <- Emission{Mode: "intraday", Score: composite("QQQ", 7.1)}
	close(in)

	g.Run(context.Background(), in)
	<-g.Done()
	assert.Equal(t, 2, disp.count())
}

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("intraday", "SPY", "flow", 500.10)
	b := Fingerprint("intraday", "SPY", "flow", 500.05)
	c := Fingerprint("intraday", "SPY", "gex", 500.10)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
