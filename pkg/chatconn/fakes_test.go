package chatconn

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/harun/doctalk/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClock is a virtual clock; timers fire only from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// Advance moves time forward and runs due callbacks outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeDialer hands every dial to the test, which decides its outcome.
type fakeDialer struct {
	calls chan *dialCall
}

type dialCall struct {
	ctx       context.Context
	sessionID string
	result    chan dialResult
}

type dialResult struct {
	ch  Channel
	err error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{calls: make(chan *dialCall, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, sessionID string) (Channel, error) {
	call := &dialCall{ctx: ctx, sessionID: sessionID, result: make(chan dialResult, 1)}
	select {
	case d.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.result:
		return r.ch, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *dialCall {
	t.Helper()
	select {
	case call := <-d.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func (d *fakeDialer) expectNoDial(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case call := <-d.calls:
		t.Fatalf("unexpected dial for session %q", call.sessionID)
	case <-time.After(wait):
	}
}

func (c *dialCall) fail(err error) {
	c.result <- dialResult{err: err}
}

func (c *dialCall) open() *fakeChannel {
	ch := newFakeChannel()
	c.result <- dialResult{ch: ch}
	return ch
}

// fakeChannel is an in-memory Channel; the test plays the server side.
type fakeChannel struct {
	in      chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  []string
	writeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:      make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeChannel) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed channel")
	}
}

func (c *fakeChannel) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) serverSend(raw string) {
	c.in <- []byte(raw)
}

func (c *fakeChannel) serverDrop(err error) {
	c.readErr <- err
}

func (c *fakeChannel) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// recorder collects everything a manager delivers to listeners.
type recorder struct {
	mu       sync.Mutex
	states   []StateChange
	messages []Message
}

func record(m *Manager) *recorder {
	r := &recorder{}
	m.OnStateChange(func(c StateChange) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, c)
	})
	m.OnMessage(func(msg Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
	})
	return r
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.states))
	for _, c := range r.states {
		out = append(out, c.To)
	}
	return out
}

func (r *recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states), len(r.messages)
}

type harness struct {
	clock   *fakeClock
	dialer  *fakeDialer
	binding *session.Binding
	mgr     *Manager
	rec     *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newFakeClock(epoch)
	dialer := newFakeDialer()
	binding := session.NewBinding(session.Config{Logger: zerolog.Nop(), Now: clock.Now})

	mgr, err := NewManager(Config{
		Dialer:  dialer,
		Binding: binding,
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return &harness{
		clock:   clock,
		dialer:  dialer,
		binding: binding,
		mgr:     mgr,
		rec:     record(mgr),
	}
}

// open creates sessionID, connects and completes the handshake.
func (h *harness) open(t *testing.T, sessionID string) *fakeChannel {
	t.Helper()
	_, err := h.binding.Create(sessionID)
	require.NoError(t, err)
	require.NoError(t, h.mgr.Connect(sessionID))
	ch := h.dialer.next(t).open()
	h.waitState(t, StateOpen)
	return ch
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.mgr.State() == want
	}, 2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func (h *harness) waitPending(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.clock.Pending() == 1
	}, 2*time.Second, 5*time.Millisecond, "retry timer never armed")
}
