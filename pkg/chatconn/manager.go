package chatconn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harun/doctalk/internal/observability"
	"github.com/harun/doctalk/pkg/frames"
	"github.com/rs/zerolog"
)

const outboundQueueSize = 64

// Binding is the session eligibility source the manager consults and updates.
type Binding interface {
	IsEligibleForReconnect(sessionID string) bool
	MarkNoData(sessionID string) error
}

// Config holds manager configuration
type Config struct {
	Dialer     Dialer
	Binding    Binding
	Classifier *frames.Classifier
	Policy     RetryPolicy
	Clock      Clock
	Logger     zerolog.Logger

	// RateLimitWarnThreshold is the number of consecutive throttled connects
	// after which consumers see a warning. Zero uses the default of 5,
	// a negative value disables the warning.
	RateLimitWarnThreshold int
}

// Manager owns the chat channel for the current session.
type Manager struct {
	dialer     Dialer
	binding    Binding
	classifier *frames.Classifier
	policy     RetryPolicy
	clock      Clock
	warnAfter  int
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conn       Connection
	link       *link
	cancelDial context.CancelFunc
	timer      Timer
	seq        int
	closed     bool
	outbox     []func()
	delivering bool

	stateListeners   listenerSet[StateChange]
	messageListeners listenerSet[Message]
}

// NewManager creates a connection manager
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if cfg.Binding == nil {
		return nil, errors.New("session binding is required")
	}
	if cfg.Policy == (RetryPolicy{}) {
		cfg.Policy = DefaultRetryPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if cfg.Classifier == nil {
		cfg.Classifier = frames.NewClassifier()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	switch {
	case cfg.RateLimitWarnThreshold == 0:
		cfg.RateLimitWarnThreshold = 5
	case cfg.RateLimitWarnThreshold < 0:
		cfg.RateLimitWarnThreshold = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer:     cfg.Dialer,
		binding:    cfg.Binding,
		classifier: cfg.Classifier,
		policy:     cfg.Policy,
		clock:      cfg.Clock,
		warnAfter:  cfg.RateLimitWarnThreshold,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Connect requests a channel for sessionID. A different id than the current
// one supersedes the current session.
func (m *Manager) Connect(sessionID string) error {
	err := m.apply(ConnectRequested{SessionID: sessionID})
	if err != nil {
		observability.RecordConnectRejected(rejectReason(err))
		m.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Connect request dropped")
		return fmt.Errorf("connect %q: %w", sessionID, err)
	}
	return nil
}

// Send delivers content as a user message when the channel is open.
func (m *Manager) Send(content string) error {
	err := m.apply(SendRequested{Content: content})
	observability.RecordSend(err == nil)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close tears down the channel and cancels any pending retry. It is
// idempotent, and no listener is invoked once it returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	next, effects, _ := Transition(m.conn, m.env(TeardownRequested{}), TeardownRequested{})
	m.conn = next
	m.execute(effects)
	m.closed = true
	m.outbox = nil
	sessionID := m.conn.SessionID
	m.mu.Unlock()

	m.cancel()
	m.logger.Info().Str("session_id", sessionID).Msg("Connection manager closed")
	return nil
}

// OnStateChange registers a state listener and returns its unsubscribe func.
func (m *Manager) OnStateChange(fn func(StateChange)) func() {
	return m.stateListeners.add(fn)
}

// OnMessage registers a message listener and returns its unsubscribe func.
func (m *Manager) OnMessage(fn func(Message)) func() {
	return m.messageListeners.add(fn)
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.State
}

// Snapshot returns a copy of the current connection record
func (m *Manager) Snapshot() Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Policy returns the retry policy in use
func (m *Manager) Policy() RetryPolicy {
	return m.policy
}

// apply runs one event through Transition, performs the effects and
// delivers any queued notifications.
func (m *Manager) apply(ev Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	next, effects, err := Transition(m.conn, m.env(ev), ev)
	m.conn = next
	m.execute(effects)
	m.mu.Unlock()

	m.flush()
	return err
}

func (m *Manager) env(ev Event) Env {
	sessionID := m.conn.SessionID
	if c, ok := ev.(ConnectRequested); ok {
		sessionID = c.SessionID
	}
	return Env{
		Policy:    m.policy,
		Now:       m.clock.Now(),
		Eligible:  sessionID != "" && m.binding.IsEligibleForReconnect(sessionID),
		WarnAfter: m.warnAfter,
	}
}

// execute performs effects in order. Called with m.mu held; nothing here blocks.
func (m *Manager) execute(effects []Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case EmitState:
			change := e.Change
			observability.SetConnectionState(change.To.String())
			m.logStateChange(change)
			m.outbox = append(m.outbox, func() { m.stateListeners.emit(change) })

		case EmitMessage:
			m.seq++
			msg := e.Message
			msg.Sequence = m.seq
			m.outbox = append(m.outbox, func() { m.messageListeners.emit(msg) })

		case Dial:
			m.startDial(e)

		case CloseChannel:
			m.releaseChannel(e.Attempt)

		case ScheduleRetry:
			m.stopTimer()
			attempt := e.Attempt
			m.timer = m.clock.AfterFunc(e.Delay, func() {
				_ = m.apply(RetryTimerFired{Attempt: attempt})
			})
			if e.Retry > 0 {
				observability.RecordRetryScheduled(e.Delay)
			}
			m.logger.Info().
				Str("session_id", m.conn.SessionID).
				Dur("delay", e.Delay).
				Int("retry", e.Retry).
				Int("max_retries", m.policy.MaxRetries).
				Msg("Reconnect scheduled")

		case CancelRetry:
			m.stopTimer()

		case WriteFrame:
			m.enqueueWrite(e)

		case MarkNoData:
			if err := m.binding.MarkNoData(e.SessionID); err != nil {
				m.logger.Warn().Err(err).Str("session_id", e.SessionID).Msg("Failed to mark session without data")
			}
		}
	}
}

// flush delivers queued notifications one at a time. Whichever goroutine
// finds the outbox idle drains it; others only enqueue, so listeners never
// run concurrently and may call back into the manager.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.outbox) > 0 && !m.closed {
		deliver := m.outbox[0]
		m.outbox = m.outbox[1:]
		m.mu.Unlock()
		deliver()
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) startDial(d Dial) {
	if m.cancelDial != nil {
		m.cancelDial()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelDial = cancel

	retry := m.conn.RetryCount > 0
	observability.RecordConnectAttempt(retry)

	logger := m.logger.With().
		Str("session_id", d.SessionID).
		Uint64("attempt", d.Attempt).
		Str("attempt_id", uuid.NewString()).
		Logger()
	logger.Debug().Bool("retry", retry).Msg("Dialing chat channel")

	go m.dial(ctx, d, logger)
}

func (m *Manager) dial(ctx context.Context, d Dial, logger zerolog.Logger) {
	ch, err := m.dialer.Dial(ctx, d.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("Chat channel dial failed")
		_ = m.apply(ChannelClosed{Attempt: d.Attempt, Err: err})
		return
	}

	l := newLink(ch, d.Attempt)

	m.mu.Lock()
	if m.closed || m.conn.Attempt != d.Attempt || m.conn.State != StateConnecting {
		m.mu.Unlock()
		logger.Debug().Msg("Discarding channel for superseded attempt")
		_ = ch.Close()
		return
	}
	m.link = l
	m.mu.Unlock()

	logger.Info().Msg("Chat channel open")
	_ = m.apply(ChannelOpened{Attempt: d.Attempt})

	go m.writeLoop(l, logger)
	go m.readLoop(l, logger)
}

func (m *Manager) readLoop(l *link, logger zerolog.Logger) {
	for {
		data, err := l.ch.ReadMessage()
		if err != nil {
			if l.isClosed() {
				return
			}
			logger.Warn().Err(err).Msg("Chat channel closed")
			_ = m.apply(ChannelClosed{Attempt: l.attempt, Err: err})
			return
		}

		classified := m.classifier.Classify(data)
		observability.RecordFrame(string(classified.Kind))
		if classified.IsProtocolError() {
			logger.Warn().Err(classified.Err).Msg("Malformed inbound frame")
		}
		if classified.Kind == frames.KindAck {
			logger.Debug().Str("status", classified.Status).Msg("Channel acknowledged")
		}
		if err := m.apply(FrameReceived{Attempt: l.attempt, Frame: classified}); errors.Is(err, ErrManagerClosed) {
			return
		}
	}
}

func (m *Manager) writeLoop(l *link, logger zerolog.Logger) {
	for {
		select {
		case <-l.done:
			return
		case content := <-l.out:
			data, err := frames.EncodeOutbound(content)
			if err == nil {
				err = l.ch.WriteMessage(data)
			}
			if err != nil {
				if l.isClosed() {
					return
				}
				logger.Warn().Err(err).Msg("Failed to write chat frame")
				_ = m.apply(ChannelClosed{Attempt: l.attempt, Err: err})
				return
			}
		}
	}
}

// enqueueWrite hands a frame to the writer of the current channel. Called with m.mu held.
func (m *Manager) enqueueWrite(w WriteFrame) {
	l := m.link
	if l == nil || l.attempt != w.Attempt {
		return
	}
	select {
	case l.out <- w.Content:
	default:
		m.logger.Warn().Uint64("attempt", w.Attempt).Msg("Outbound queue full, dropping channel")
		go func() {
			_ = m.apply(ChannelClosed{Attempt: w.Attempt, Err: errors.New("outbound queue full")})
		}()
	}
}

// releaseChannel closes the channel or pending dial of attempt. Called with m.mu held.
func (m *Manager) releaseChannel(attempt uint64) {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.link != nil && m.link.attempt == attempt {
		l := m.link
		m.link = nil
		go func() {
			if err := l.close(); err != nil {
				m.logger.Debug().Err(err).Uint64("attempt", attempt).Msg("Error closing chat channel")
			}
		}()
	}
}

func (m *Manager) logStateChange(c StateChange) {
	event := m.logger.Info()
	if c.To == StateFailed {
		event = m.logger.Error()
	}
	if c.Err != nil {
		event = event.Err(c.Err)
	}
	event.
		Str("session_id", c.SessionID).
		Str("from", c.From.String()).
		Str("to", c.To.String()).
		Int("retry_count", c.RetryCount).
		Msg("Connection state changed")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSessionID):
		return "no_session_id"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyConnecting):
		return "already_connecting"
	case errors.Is(err, ErrConnectionFailed):
		return "failed"
	case errors.Is(err, ErrSessionIneligible):
		return "ineligible"
	case errors.Is(err, ErrManagerClosed):
		return "closed"
	default:
		return "other"
	}
}

// link is one established channel and its writer queue.
type link struct {
	ch      Channel
	attempt uint64
	out     chan string
	done    chan struct{}
	once    sync.Once
}

func newLink(ch Channel, attempt uint64) *link {
	return &link{
		ch:      ch,
		attempt: attempt,
		out:     make(chan string, outboundQueueSize),
		done:    make(chan struct{}),
	}
}

func (l *link) close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ch.Close()
	})
	return err
}

func (l *link) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
