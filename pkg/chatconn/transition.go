package chatconn

import (
	"fmt"
	"strings"

	"github.com/harun/doctalk/pkg/frames"
)

// Transition computes the next connection and the effects to perform for ev.
// It has no side effects. The returned error is the caller-facing result of
// ConnectRequested and SendRequested; other events never return one.
func Transition(conn Connection, env Env, ev Event) (Connection, []Effect, error) {
	switch e := ev.(type) {
	case ConnectRequested:
		return onConnect(conn, env, e)
	case ChannelOpened:
		return onOpened(conn, env, e)
	case ChannelClosed:
		return onClosed(conn, env, e)
	case RetryTimerFired:
		return onRetryTimer(conn, env, e)
	case FrameReceived:
		return onFrame(conn, env, e)
	case SendRequested:
		return onSend(conn, env, e)
	case TeardownRequested:
		return onTeardown(conn)
	default:
		return conn, nil, nil
	}
}

func onConnect(conn Connection, env Env, e ConnectRequested) (Connection, []Effect, error) {
	var effects []Effect

	if e.SessionID == "" {
		effects = append(effects, errorMessage(conn.SessionID, env, KindSession, msgNoSession))
		return conn, effects, ErrNoSessionID
	}

	// A different session id supersedes whatever the current one was doing,
	// but only when that session may connect. A superseded id is ineligible
	// and must not disturb the current session.
	if e.SessionID != conn.SessionID {
		if !env.Eligible {
			effects = append(effects, errorMessage(e.SessionID, env, KindSession, msgNoSubjectData))
			return conn, effects, ErrSessionIneligible
		}
		if conn.State.Active() {
			effects = append(effects, CloseChannel{Attempt: conn.Attempt})
		}
		effects = append(effects, CancelRetry{})
		previous := conn.State
		conn = Connection{SessionID: e.SessionID, State: StateIdle, Attempt: conn.Attempt}
		if previous != StateIdle {
			effects = append(effects, stateChange(conn, env, previous, nil))
		}
	}

	if conn.State == StateFailed {
		return conn, effects, ErrConnectionFailed
	}
	if !env.Eligible {
		effects = append(effects, errorMessage(conn.SessionID, env, KindSession, msgNoSubjectData))
		return conn, effects, ErrSessionIneligible
	}
	if !conn.LastAttemptAt.IsZero() && env.Now.Sub(conn.LastAttemptAt) < env.Policy.MinInterval {
		conn.RateLimitedStreak++
		if env.WarnAfter > 0 && conn.RateLimitedStreak == env.WarnAfter {
			effects = append(effects, systemMessage(conn.SessionID, env, KindRateLimit, msgRateLimitRecurred))
		}
		return conn, effects, ErrRateLimited
	}
	if conn.State.Active() {
		return conn, effects, ErrAlreadyConnecting
	}

	conn.RateLimitedStreak = 0
	effects = append(effects, CancelRetry{})
	conn, begin := beginAttempt(conn, env)
	return conn, append(effects, begin...), nil
}

func onOpened(conn Connection, env Env, e ChannelOpened) (Connection, []Effect, error) {
	if e.Attempt != conn.Attempt || conn.State != StateConnecting {
		return conn, nil, nil
	}
	conn.State = StateOpen
	conn.RetryCount = 0
	return conn, []Effect{stateChange(conn, env, StateConnecting, nil)}, nil
}

func onClosed(conn Connection, env Env, e ChannelClosed) (Connection, []Effect, error) {
	if e.Attempt != conn.Attempt || !conn.State.Active() {
		return conn, nil, nil
	}

	from := conn.State
	conn.State = StateClosed
	effects := []Effect{
		CloseChannel{Attempt: conn.Attempt},
		stateChange(conn, env, from, e.Err),
	}

	conn, next := afterClose(conn, env)
	return conn, append(effects, next...), nil
}

// afterClose decides between scheduling a retry and failing for good.
// The delay is computed from RetryCount before it is incremented.
func afterClose(conn Connection, env Env) (Connection, []Effect) {
	if !env.Eligible {
		conn.State = StateFailed
		return conn, []Effect{
			stateChange(conn, env, StateClosed, ErrSessionIneligible),
			errorMessage(conn.SessionID, env, KindSession, msgNoSubjectData),
		}
	}
	if conn.RetryCount >= env.Policy.MaxRetries {
		conn.State = StateFailed
		return conn, []Effect{
			stateChange(conn, env, StateClosed, ErrMaxRetriesExceeded),
			errorMessage(conn.SessionID, env, KindMaxRetries, msgConnectionFailed),
		}
	}

	delay := env.Policy.Delay(conn.RetryCount)
	conn.RetryCount++
	notice := fmt.Sprintf("connection lost, retrying in %s (attempt %d of %d)",
		delay, conn.RetryCount, env.Policy.MaxRetries)
	return conn, []Effect{
		systemMessage(conn.SessionID, env, KindTransientNetwork, notice),
		ScheduleRetry{Attempt: conn.Attempt, Delay: delay, Retry: conn.RetryCount},
	}
}

func onRetryTimer(conn Connection, env Env, e RetryTimerFired) (Connection, []Effect, error) {
	if e.Attempt != conn.Attempt || conn.State != StateClosed {
		return conn, nil, nil
	}
	if !env.Eligible {
		conn.State = StateFailed
		return conn, []Effect{
			stateChange(conn, env, StateClosed, ErrSessionIneligible),
			errorMessage(conn.SessionID, env, KindSession, msgNoSubjectData),
		}, nil
	}
	if elapsed := env.Now.Sub(conn.LastAttemptAt); elapsed < env.Policy.MinInterval {
		return conn, []Effect{ScheduleRetry{
			Attempt: conn.Attempt,
			Delay:   env.Policy.MinInterval - elapsed,
		}}, nil
	}
	conn, effects := beginAttempt(conn, env)
	return conn, effects, nil
}

func onFrame(conn Connection, env Env, e FrameReceived) (Connection, []Effect, error) {
	if e.Attempt != conn.Attempt || !conn.State.Active() {
		return conn, nil, nil
	}

	var effects []Effect
	f := e.Frame
	switch f.Kind {
	case frames.KindAssistant:
		effects = append(effects, EmitMessage{Message: Message{
			Origin:    OriginAssistant,
			Content:   f.Content,
			SessionID: conn.SessionID,
			At:        env.Now,
		}})
	case frames.KindError:
		kind := KindServer
		if f.NoSubjectData {
			kind = KindSession
		}
		effects = append(effects, errorMessage(conn.SessionID, env, kind, f.Content))
	case frames.KindProtocolError:
		detail := "received malformed frame"
		if f.Err != nil {
			detail = fmt.Sprintf("received malformed frame: %v", f.Err)
		}
		effects = append(effects, errorMessage(conn.SessionID, env, KindProtocol, detail))
	case frames.KindAck:
		// Acks confirm the channel; Open is already reached on handshake.
	}

	if f.NoSubjectData {
		effects = append(effects, MarkNoData{SessionID: conn.SessionID})
	}
	return conn, effects, nil
}

func onSend(conn Connection, env Env, e SendRequested) (Connection, []Effect, error) {
	if strings.TrimSpace(e.Content) == "" {
		return conn, nil, ErrEmptyMessage
	}
	if conn.State != StateOpen {
		return conn, nil, ErrNotConnected
	}
	return conn, []Effect{
		EmitMessage{Message: Message{
			Origin:    OriginUser,
			Content:   e.Content,
			SessionID: conn.SessionID,
			At:        env.Now,
		}},
		WriteFrame{Attempt: conn.Attempt, Content: e.Content},
	}, nil
}

func onTeardown(conn Connection) (Connection, []Effect, error) {
	effects := []Effect{CancelRetry{}}
	if conn.State.Active() {
		effects = append(effects, CloseChannel{Attempt: conn.Attempt})
		conn.State = StateClosed
	}
	return conn, effects, nil
}

func beginAttempt(conn Connection, env Env) (Connection, []Effect) {
	from := conn.State
	conn.State = StateConnecting
	conn.Attempt++
	conn.LastAttemptAt = env.Now
	return conn, []Effect{
		stateChange(conn, env, from, nil),
		Dial{SessionID: conn.SessionID, Attempt: conn.Attempt},
	}
}

func stateChange(conn Connection, env Env, from State, err error) EmitState {
	return EmitState{Change: StateChange{
		SessionID:  conn.SessionID,
		From:       from,
		To:         conn.State,
		RetryCount: conn.RetryCount,
		Err:        err,
		At:         env.Now,
	}}
}

func errorMessage(sessionID string, env Env, kind ErrorKind, content string) EmitMessage {
	return EmitMessage{Message: Message{
		Origin:    OriginError,
		Content:   content,
		Kind:      kind,
		SessionID: sessionID,
		At:        env.Now,
	}}
}

func systemMessage(sessionID string, env Env, kind ErrorKind, content string) EmitMessage {
	return EmitMessage{Message: Message{
		Origin:    OriginSystem,
		Content:   content,
		Kind:      kind,
		SessionID: sessionID,
		At:        env.Now,
	}}
}
