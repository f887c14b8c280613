package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
)

type sent struct {
	to, text string
}

type fakeConn struct {
	events chan Event
	creds  bool

	onSave func()

	mu     sync.Mutex
	saves  int
	closed bool
	sent   []sent
}

func newFakeConn(creds bool) *fakeConn {
	return &fakeConn{events: make(chan Event, 16), creds: creds}
}

func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) Send(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{to, text})
	return nil
}

func (c *fakeConn) SaveCredentials(context.Context) error {
	if c.onSave != nil {
		c.onSave()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	return nil
}

func (c *fakeConn) HasCredentials() bool { return c.creds }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// fakeDialer hands out the scripted results in order, then idle connections.
type fakeDialer struct {
	mu      sync.Mutex
	results []any
	dials   int
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return newFakeConn(true), nil
	}
	next := d.results[0]
	d.results = d.results[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(*fakeConn), nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestManager(d Dialer) (*Manager, *PairingChallenge, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	challenge := NewPairingChallenge()
	mgr := NewManager(sl.Discard(), d, challenge, m)
	mgr.SetBackoff(Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond})
	return mgr, challenge, m
}

func runManager(t *testing.T, mgr *Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestManagerPairingLifecycle(t *testing.T) {
	conn := newFakeConn(false)
	dialer := &fakeDialer{results: []any{conn}}
	mgr, challenge, m := newTestManager(dialer)

	var shown []string
	var shownMu sync.Mutex
	mgr.OnChallenge(func(code string) {
		shownMu.Lock()
		defer shownMu.Unlock()
		shown = append(shown, code)
	})

	require.Equal(t, StateUnauthenticated, mgr.State())
	cancel, done := runManager(t, mgr)

	conn.events <- Event{Kind: EventQR, QRCode: "first"}
	conn.events <- Event{Kind: EventQR, QRCode: "second"}
	require.Eventually(t, func() bool {
		code, ok := challenge.Current()
		return ok && code == "second" && mgr.State() == StatePairing
	}, time.Second, time.Millisecond)

	conn.events <- Event{Kind: EventCredentialsUpdated}
	conn.events <- Event{Kind: EventConnected}
	require.Eventually(t, func() bool { return mgr.State() == StateAuthenticated }, time.Second, time.Millisecond)
	require.Equal(t, 1, conn.saveCount())
	_, pending := challenge.Current()
	require.False(t, pending)

	// challenges are ignored once authenticated
	conn.events <- Event{Kind: EventQR, QRCode: "late"}
	conn.events <- Event{Kind: EventMessage, Message: InboundMessage{From: "5511@s.whatsapp.net", Text: "#status"}}
	select {
	case msg := <-mgr.Inbound():
		require.Equal(t, InboundMessage{From: "5511@s.whatsapp.net", Text: "#status"}, msg)
	case <-time.After(time.Second):
		t.Fatal("inbound message not delivered")
	}
	_, pending = challenge.Current()
	require.False(t, pending)

	require.NoError(t, mgr.Send(context.Background(), "5511@s.whatsapp.net", "ok"))
	require.Equal(t, []sent{{"5511@s.whatsapp.net", "ok"}}, conn.sent)

	shownMu.Lock()
	require.Equal(t, []string{"first", "second"}, shown)
	shownMu.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.True(t, conn.isClosed())
	require.Equal(t, float64(StateAuthenticated), testutil.ToFloat64(m.SessionState))
}

func TestManagerReconnectsOnOtherCause(t *testing.T) {
	first := newFakeConn(true)
	second := newFakeConn(true)
	dialer := &fakeDialer{results: []any{first, second}}
	mgr, _, m := newTestManager(dialer)
	cancel, done := runManager(t, mgr)

	first.events <- Event{Kind: EventConnected}
	first.events <- Event{Kind: EventClosed, Cause: CauseOther, Err: errors.New("stream reset")}

	require.Eventually(t, func() bool { return dialer.count() == 2 }, time.Second, time.Millisecond)
	require.True(t, first.isClosed())

	second.events <- Event{Kind: EventConnected}
	require.Eventually(t, func() bool { return mgr.State() == StateAuthenticated }, time.Second, time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.SessionChanges.WithLabelValues("disconnected")))

	// a closed event stream counts as a recoverable drop too
	close(second.events)
	require.Eventually(t, func() bool { return dialer.count() == 3 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestManagerStopsOnLogout(t *testing.T) {
	conn := newFakeConn(true)
	dialer := &fakeDialer{results: []any{conn}}
	mgr, challenge, _ := newTestManager(dialer)
	challenge.Set("stale")
	_, done := runManager(t, mgr)

	conn.events <- Event{Kind: EventConnected}
	conn.events <- Event{Kind: EventClosed, Cause: CauseLoggedOut}

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(time.Second):
		t.Fatal("manager kept running after logout")
	}

	require.Equal(t, 1, dialer.count())
	require.Equal(t, StateLoggedOut, mgr.State())
	require.True(t, mgr.State().Terminal())
	require.True(t, conn.isClosed())
	_, pending := challenge.Current()
	require.False(t, pending)

	require.ErrorIs(t, mgr.Send(context.Background(), "x", "y"), ErrNotConnected)
}

func TestManagerRetriesFailedDials(t *testing.T) {
	conn := newFakeConn(true)
	dialer := &fakeDialer{results: []any{errors.New("no network"), errors.New("no network"), conn}}
	mgr, _, _ := newTestManager(dialer)
	cancel, done := runManager(t, mgr)

	conn.events <- Event{Kind: EventConnected}
	require.Eventually(t, func() bool { return mgr.State() == StateAuthenticated }, time.Second, time.Millisecond)
	require.Equal(t, 3, dialer.count())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSendWithoutConnection(t *testing.T) {
	mgr, _, _ := newTestManager(&fakeDialer{})
	require.ErrorIs(t, mgr.Send(context.Background(), "a", "b"), ErrNotConnected)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second}
	require.Equal(t, time.Second, b.Delay(0))
	require.Equal(t, 2*time.Second, b.Delay(1))
	require.Equal(t, 8*time.Second, b.Delay(3))
	require.Equal(t, 10*time.Second, b.Delay(10))

	jittered := Backoff{Initial: time.Second, Max: time.Minute, Jitter: 0.1}
	for i := 0; i < 20; i++ {
		d := jittered.Delay(2)
		require.GreaterOrEqual(t, d, 3600*time.Millisecond)
		require.LessOrEqual(t, d, 4400*time.Millisecond)
	}

	require.Zero(t, Backoff{}.Delay(3))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "pairing", StatePairing.String())
	require.Equal(t, "logged_out", StateLoggedOut.String())
	require.Equal(t, "unknown", State(42).String())
	require.False(t, StateDisconnected.Terminal())
}

func TestManagerSavesCredentialsBeforeNextEvent(t *testing.T) {
	conn := newFakeConn(false)
	dialer := &fakeDialer{results: []any{conn}}
	mgr, challenge, _ := newTestManager(dialer)

	pendingAtSave := make(chan bool, 1)
	conn.onSave = func() {
		_, ok := challenge.Current()
		pendingAtSave <- ok && mgr.State() == StatePairing
	}

	// queued together: the connected event must wait for the save
	conn.events <- Event{Kind: EventQR, QRCode: "code"}
	conn.events <- Event{Kind: EventCredentialsUpdated}
	conn.events <- Event{Kind: EventConnected}

	runManager(t, mgr)

	select {
	case pending := <-pendingAtSave:
		require.True(t, pending)
	case <-time.After(time.Second):
		t.Fatal("credentials were not saved")
	}

	require.Eventually(t, func() bool {
		return mgr.State() == StateAuthenticated
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, conn.saveCount())
}
