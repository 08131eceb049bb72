package chatconn

import (
	"time"

	"github.com/harun/doctalk/pkg/frames"
)

// Event is an input to Transition.
type Event interface {
	event()
}

// ConnectRequested asks for a channel to SessionID.
type ConnectRequested struct {
	SessionID string
}

// ChannelOpened reports that the transport finished its handshake.
type ChannelOpened struct {
	Attempt uint64
}

// ChannelClosed reports that the channel closed or the dial failed.
type ChannelClosed struct {
	Attempt uint64
	Err     error
}

// RetryTimerFired reports that the backoff delay scheduled after Attempt elapsed.
type RetryTimerFired struct {
	Attempt uint64
}

// FrameReceived carries one classified inbound frame.
type FrameReceived struct {
	Attempt uint64
	Frame   frames.Classified
}

// SendRequested asks to deliver a user message.
type SendRequested struct {
	Content string
}

// TeardownRequested tears the connection down for good.
type TeardownRequested struct{}

func (ConnectRequested) event()  {}
func (ChannelOpened) event()     {}
func (ChannelClosed) event()     {}
func (RetryTimerFired) event()   {}
func (FrameReceived) event()     {}
func (SendRequested) event()     {}
func (TeardownRequested) event() {}

// Env is what Transition may observe besides the connection itself.
type Env struct {
	Policy RetryPolicy
	Now    time.Time

	// Eligible is the reconnect eligibility of the session the event is about.
	Eligible bool

	// WarnAfter is the rate-limited streak that produces a visible warning.
	// Zero disables the warning.
	WarnAfter int
}

// Effect is an action Transition asks the manager to perform.
type Effect interface {
	effect()
}

// EmitState notifies state listeners.
type EmitState struct {
	Change StateChange
}

// EmitMessage notifies message listeners.
type EmitMessage struct {
	Message Message
}

// Dial starts a channel attempt.
type Dial struct {
	SessionID string
	Attempt   uint64
}

// CloseChannel closes the channel of Attempt if it is still held.
type CloseChannel struct {
	Attempt uint64
}

// ScheduleRetry arms the retry timer.
type ScheduleRetry struct {
	Attempt uint64
	Delay   time.Duration

	// Retry is the 1-based retry number, or 0 when the timer is re-armed
	// only to honor MinInterval.
	Retry int
}

// CancelRetry disarms the retry timer.
type CancelRetry struct{}

// WriteFrame sends a user message on the channel of Attempt.
type WriteFrame struct {
	Attempt uint64
	Content string
}

// MarkNoData records that the session has no subject data.
type MarkNoData struct {
	SessionID string
}

func (EmitState) effect()     {}
func (EmitMessage) effect()   {}
func (Dial) effect()          {}
func (CloseChannel) effect()  {}
func (ScheduleRetry) effect() {}
func (CancelRetry) effect()   {}
func (WriteFrame) effect()    {}
func (MarkNoData) effect()    {}
