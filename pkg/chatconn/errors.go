package chatconn

import "errors"

var (
	ErrNoSessionID        = errors.New("no session id")
	ErrRateLimited        = errors.New("connect attempted too soon")
	ErrAlreadyConnecting  = errors.New("already connecting")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectionFailed   = errors.New("connection failed for session")
	ErrSessionIneligible  = errors.New("session has no subject data")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrEmptyMessage       = errors.New("message content cannot be empty")
	ErrManagerClosed      = errors.New("connection manager closed")
)

// ErrorKind classifies failures reported to consumers.
type ErrorKind string

const (
	KindTransientNetwork ErrorKind = "transient_network"
	KindSession          ErrorKind = "session"
	KindProtocol         ErrorKind = "protocol"
	KindRateLimit        ErrorKind = "rate_limit"
	KindMaxRetries       ErrorKind = "max_retries_exceeded"
	KindServer           ErrorKind = "server"
)

// User-facing texts for terminal and session failures.
const (
	msgNoSession         = "no session: upload a document to start chatting"
	msgNoSubjectData     = "the server has no document data for this session, please upload the document again"
	msgConnectionFailed  = "connection failed, please re-upload the document to start a new session"
	msgRateLimitRecurred = "connection attempts are being throttled, please wait a moment"
)
