package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownSession is returned for ids that were never created.
var ErrUnknownSession = errors.New("unknown session")

// Session is the conversation scope created by a successful upload.
type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	HasSubjectData bool      `json:"has_subject_data"`
}

// Config holds binding configuration
type Config struct {
	Logger zerolog.Logger
	Now    func() time.Time
}

// Binding tracks sessions and the reconnect eligibility of each one.
type Binding struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	current  string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewBinding creates an empty binding
func NewBinding(cfg Config) *Binding {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Binding{
		sessions: make(map[string]*Session),
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// ValidateID checks that a session id is non-empty and path-safe.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\?#") {
		return fmt.Errorf("session id cannot contain path or query separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

// Create binds a new session with subject data present and makes it current.
// Creating an id that already exists resets its flag and makes it current again.
func (b *Binding) Create(id string) (Session, error) {
	if err := ValidateID(id); err != nil {
		return Session{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Session{
		ID:             id,
		CreatedAt:      b.now(),
		HasSubjectData: true,
	}
	previous := b.current
	b.sessions[id] = s
	b.current = id

	b.logger.Info().
		Str("session_id", id).
		Str("superseded", previous).
		Msg("Session created")

	return *s, nil
}

// MarkNoData records that the server has no subject data for the session.
func (b *Binding) MarkNoData(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok {
		return fmt.Errorf("mark no data for %q: %w", id, ErrUnknownSession)
	}
	if s.HasSubjectData {
		s.HasSubjectData = false
		b.logger.Warn().Str("session_id", id).Msg("Server reported no subject data for session")
	}
	return nil
}

// IsEligibleForReconnect reports whether the session may connect or retry.
// Only the current session is eligible, and only while it has subject data.
// Unknown and superseded sessions are not eligible; Create makes one eligible again.
func (b *Binding) IsEligibleForReconnect(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sessions[id]
	return ok && s.HasSubjectData && b.isCurrent(id)
}

// Get returns a copy of the session with the given id
func (b *Binding) Get(id string) (Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Current returns the most recently created session
func (b *Binding) Current() (Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current == "" {
		return Session{}, false
	}
	return *b.sessions[b.current], true
}

// isCurrent is called with b.mu held.
func (b *Binding) isCurrent(id string) bool {
	return id != "" && id == b.current
}
