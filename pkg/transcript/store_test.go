package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(Config{
		DBPath: filepath.Join(t.TempDir(), "transcript.db"),
		Logger: zerolog.Nop(),
		Now:    clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func message(sessionID string, seq int, origin chatconn.Origin, content string) chatconn.Message {
	return chatconn.Message{SessionID: sessionID, Sequence: seq, Origin: origin, Content: content}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	ctx := context.Background()

	s, err := Open(Config{DBPath: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "abc123", Document: "cv.pdf", HasSubjectData: true}))
	require.NoError(t, s.Append(message("abc123", 1, chatconn.OriginUser, "hello")))
	require.NoError(t, s.Close())

	s, err = Open(Config{DBPath: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Messages(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestAppendAndMessages(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "abc123", Document: "cv.pdf", HasSubjectData: true}))
	require.NoError(t, s.Append(message("abc123", 1, chatconn.OriginUser, "What are the key skills?")))
	require.NoError(t, s.Append(message("abc123", 2, chatconn.OriginAssistant, "Go and SQL.")))
	require.NoError(t, s.Append(chatconn.Message{
		SessionID: "abc123",
		Sequence:  3,
		Origin:    chatconn.OriginError,
		Kind:      chatconn.KindServer,
		Content:   "model overloaded",
	}))

	msgs, err := s.Messages(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, chatconn.OriginUser, msgs[0].Origin)
	assert.Equal(t, "Go and SQL.", msgs[1].Content)
	assert.Equal(t, chatconn.KindServer, msgs[2].Kind)
	for i, msg := range msgs {
		assert.Equal(t, i+1, msg.Sequence)
		assert.Equal(t, "abc123", msg.SessionID)
		assert.False(t, msg.At.IsZero())
	}
}

func TestAppend_CreatesUnknownSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(message("def456", 1, chatconn.OriginAssistant, "hi")))

	rec, err := s.Session(ctx, "def456")
	require.NoError(t, err)
	assert.True(t, rec.HasSubjectData)
	assert.Equal(t, 1, rec.MessageCount)
}

func TestAppend_SkipsMessagesWithoutSession(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.Append(chatconn.Message{Origin: chatconn.OriginSystem, Content: "local notice"}))

	sessions, err := s.Sessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessions_OrderedByActivity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "first", Document: "a.pdf"}))
	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "second", Document: "b.pdf"}))
	require.NoError(t, s.Append(message("first", 1, chatconn.OriginUser, "back again")))

	sessions, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "first", sessions[0].ID)
	assert.Equal(t, 1, sessions[0].MessageCount)
	assert.Equal(t, "second", sessions[1].ID)
	assert.Equal(t, "b.pdf", sessions[1].Document)

	limited, err := s.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMarkNoData(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "abc123", HasSubjectData: true}))
	require.NoError(t, s.MarkNoData(ctx, "abc123"))

	rec, err := s.Session(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, rec.HasSubjectData)

	assert.ErrorIs(t, s.MarkNoData(ctx, "missing"), ErrNotFound)
}

func TestSession_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSession_RemovesMessages(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(message("abc123", 1, chatconn.OriginUser, "hello")))
	require.NoError(t, s.DeleteSession(ctx, "abc123"))

	msgs, err := s.Messages(ctx, "abc123")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, s.DeleteSession(ctx, "abc123"), ErrNotFound)
}

func TestPrune(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "old001", HasSubjectData: true}))
	require.NoError(t, s.Append(message("old001", 1, chatconn.OriginUser, "stale")))
	old, err := s.Session(ctx, "old001")
	require.NoError(t, err)

	require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "new001", HasSubjectData: true}))

	n, err := s.Prune(ctx, old.LastActiveAt.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Session(ctx, "old001")
	assert.ErrorIs(t, err, ErrNotFound)
	hits, err := s.Search(ctx, "stale", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Session(ctx, "new001")
	assert.NoError(t, err)

	n, err = s.Prune(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCurrentSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Current(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCurrent(ctx, "abc123"))
	require.NoError(t, s.SetCurrent(ctx, "def456"))

	id, ok, err := s.Current(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def456", id)
}

func TestSearch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(message("abc123", 1, chatconn.OriginUser, "Does the candidate know Kubernetes?")))
	require.NoError(t, s.Append(message("abc123", 2, chatconn.OriginAssistant, "Yes, 3 years of kubernetes.")))
	require.NoError(t, s.Append(message("def456", 1, chatconn.OriginAssistant, "100% remote")))

	hits, err := s.Search(ctx, "kubernetes", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Message.Sequence, "newest first")

	hits, err = s.Search(ctx, "100%", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "def456", hits[0].SessionID)

	hits, err = s.Search(ctx, "0%", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.Search(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
