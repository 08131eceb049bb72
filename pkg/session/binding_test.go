package session

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBinding() *Binding {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewBinding(Config{
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixed },
	})
}

func TestBinding_Create(t *testing.T) {
	b := newTestBinding()

	s, err := b.Create("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", s.ID)
	assert.True(t, s.HasSubjectData)
	assert.Equal(t, 2026, s.CreatedAt.Year())

	current, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "abc123", current.ID)
	assert.True(t, b.IsEligibleForReconnect("abc123"))
}

func TestBinding_CreateSupersedes(t *testing.T) {
	b := newTestBinding()

	_, err := b.Create("first")
	require.NoError(t, err)
	_, err = b.Create("second")
	require.NoError(t, err)

	assert.True(t, b.IsEligibleForReconnect("second"))
	assert.False(t, b.IsEligibleForReconnect("first"), "superseded sessions never reconnect")

	old, ok := b.Get("first")
	require.True(t, ok)
	assert.True(t, old.HasSubjectData)

	// Binding the old id again is a new session and makes it eligible.
	_, err = b.Create("first")
	require.NoError(t, err)
	assert.True(t, b.IsEligibleForReconnect("first"))
	assert.False(t, b.IsEligibleForReconnect("second"))
}

func TestBinding_MarkNoData(t *testing.T) {
	b := newTestBinding()
	_, err := b.Create("abc123")
	require.NoError(t, err)

	require.NoError(t, b.MarkNoData("abc123"))
	assert.False(t, b.IsEligibleForReconnect("abc123"))

	// Marking twice is harmless
	require.NoError(t, b.MarkNoData("abc123"))

	s, ok := b.Get("abc123")
	require.True(t, ok)
	assert.False(t, s.HasSubjectData)
}

func TestBinding_MarkNoDataUnknown(t *testing.T) {
	b := newTestBinding()

	err := b.MarkNoData("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSession))
	assert.False(t, b.IsEligibleForReconnect("missing"))
}

func TestBinding_RecreateRestoresEligibility(t *testing.T) {
	b := newTestBinding()
	_, err := b.Create("abc123")
	require.NoError(t, err)
	require.NoError(t, b.MarkNoData("abc123"))

	_, err = b.Create("abc123")
	require.NoError(t, err)
	assert.True(t, b.IsEligibleForReconnect("abc123"))
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"valid id", "abc123", false},
		{"empty id", "", true},
		{"blank id", "   ", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "abc/123", true},
		{"backslash", "abc\\123", true},
		{"query separator", "abc?x=1", true},
		{"null byte", "abc\x00123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := NewSessionID()
		assert.Len(t, id, idLength)
		assert.Regexp(t, `^[0-9a-z]+$`, id)
		assert.NoError(t, ValidateID(id))
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
