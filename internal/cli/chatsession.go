package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/doctalk/pkg/backend"
	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/harun/doctalk/pkg/conversation"
	"github.com/harun/doctalk/pkg/frames"
	"github.com/harun/doctalk/pkg/session"
	"github.com/harun/doctalk/pkg/transcript"
	"github.com/rs/zerolog"
)

// ErrNoSubjectData is returned when resuming a session the server has no
// document for.
var ErrNoSubjectData = errors.New("session has no document data")

type chatSessionConfig struct {
	Backend       *backend.Client
	Store         *transcript.Store
	Dialer        chatconn.Dialer
	Policy        chatconn.RetryPolicy
	WarnAfter     int
	NoDataMarkers []string
	PageSize      int
	Logger        zerolog.Logger
	NewID         func() string
}

// chatSession wires upload, session binding, the chat connection and the
// transcript for one interactive chat.
type chatSession struct {
	backend *backend.Client
	store   *transcript.Store
	binding *session.Binding
	manager *chatconn.Manager
	client  *conversation.Client
	newID   func() string
	logger  zerolog.Logger

	// serializes uploads so a watcher re-upload never races the initial one
	mu sync.Mutex
}

func newChatSession(cfg chatSessionConfig) (*chatSession, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("transcript store is required")
	}
	if cfg.NewID == nil {
		cfg.NewID = session.NewSessionID
	}

	binding := session.NewBinding(session.Config{
		Logger: cfg.Logger.With().Str("component", "session").Logger(),
	})

	manager, err := chatconn.NewManager(chatconn.Config{
		Dialer:                 cfg.Dialer,
		Binding:                &persistedBinding{Binding: binding, store: cfg.Store, logger: cfg.Logger},
		Classifier:             frames.NewClassifier(cfg.NoDataMarkers...),
		Policy:                 cfg.Policy,
		Logger:                 cfg.Logger.With().Str("component", "chatconn").Logger(),
		RateLimitWarnThreshold: cfg.WarnAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	client, err := conversation.NewClient(conversation.Config{
		Conn:     manager,
		Sink:     cfg.Store,
		PageSize: cfg.PageSize,
		Logger:   cfg.Logger.With().Str("component", "conversation").Logger(),
	})
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create conversation client: %w", err)
	}

	return &chatSession{
		backend: cfg.Backend,
		store:   cfg.Store,
		binding: binding,
		manager: manager,
		client:  client,
		newID:   cfg.NewID,
		logger:  cfg.Logger,
	}, nil
}

// start uploads path under a session and connects to it. An empty id gets a
// fresh one. Upload failures are reported in the conversation and no
// connection is attempted.
func (s *chatSession) start(ctx context.Context, path, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.newID()
	}
	if err := session.ValidateID(id); err != nil {
		return "", err
	}

	result, err := s.backend.Upload(ctx, id, path)
	if err != nil {
		s.client.Notice(chatconn.OriginError, fmt.Sprintf("Upload failed: %s", uploadDetail(err)))
		return "", fmt.Errorf("upload failed: %w", err)
	}

	if err := s.bind(ctx, id, result.Filename); err != nil {
		return "", err
	}
	s.client.Notice(chatconn.OriginSystem, fmt.Sprintf("File uploaded successfully: %s", result.Filename))

	if err := s.client.Connect(id); err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}
	return id, nil
}

// resume reconnects to a session recorded in the transcript.
func (s *chatSession) resume(ctx context.Context, id string) (transcript.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.Session(ctx, id)
	if err != nil {
		return transcript.SessionRecord{}, err
	}
	if !rec.HasSubjectData {
		return rec, fmt.Errorf("resume %s: %w", id, ErrNoSubjectData)
	}

	if _, err := s.binding.Create(id); err != nil {
		return rec, err
	}
	if err := s.store.SetCurrent(ctx, id); err != nil {
		return rec, err
	}
	if err := s.client.Connect(id); err != nil {
		return rec, fmt.Errorf("failed to connect: %w", err)
	}
	return rec, nil
}

func (s *chatSession) bind(ctx context.Context, id, document string) error {
	created, err := s.binding.Create(id)
	if err != nil {
		return err
	}
	if err := s.store.SaveSession(ctx, transcript.SessionRecord{
		ID:             id,
		Document:       document,
		HasSubjectData: true,
		CreatedAt:      created.CreatedAt,
	}); err != nil {
		return err
	}
	return s.store.SetCurrent(ctx, id)
}

// score fetches the score of the current session.
func (s *chatSession) score(ctx context.Context) (float64, error) {
	current, ok := s.binding.Current()
	if !ok {
		return 0, errors.New("no active session")
	}
	return s.backend.Score(ctx, current.ID)
}

func (s *chatSession) Close() error {
	err := s.client.Close()
	if cerr := s.manager.Close(); err == nil {
		err = cerr
	}
	return err
}

// persistedBinding mirrors no-data marks into the transcript so a later
// resume knows the session is gone.
type persistedBinding struct {
	*session.Binding
	store  *transcript.Store
	logger zerolog.Logger
}

func (b *persistedBinding) MarkNoData(id string) error {
	if err := b.Binding.MarkNoData(id); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.store.MarkNoData(ctx, id); err != nil && !errors.Is(err, transcript.ErrNotFound) {
		b.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to persist no-data mark")
	}
	return nil
}

func uploadDetail(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return err.Error()
}
