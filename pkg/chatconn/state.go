package chatconn

import (
	"time"
)

// State is the lifecycle state of a connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a channel is being established or is established.
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen
}

// Origin identifies who produced a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
	OriginError     Origin = "error"
	OriginSystem    Origin = "system"
)

// Message is one entry of the conversation.
type Message struct {
	Origin    Origin    `json:"origin"`
	Content   string    `json:"content"`
	Sequence  int       `json:"sequence"`
	Kind      ErrorKind `json:"kind,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// Connection is the lifecycle record of the channel for one session.
type Connection struct {
	SessionID     string
	State         State
	RetryCount    int
	LastAttemptAt time.Time

	// Attempt numbers channel attempts; events carrying an older number are stale.
	Attempt uint64

	// RateLimitedStreak counts consecutive connects dropped by MinInterval.
	RateLimitedStreak int
}

// StateChange describes one state transition.
type StateChange struct {
	SessionID  string
	From       State
	To         State
	RetryCount int
	Err        error
	At         time.Time
}
