package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harun/doctalk/internal/config"
	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/harun/doctalk/pkg/transcript"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTranscript(t *testing.T, cfgPath string) *transcript.Store {
	t.Helper()
	store, err := transcript.Open(transcript.Config{
		DBPath: filepath.Join(filepath.Dir(cfgPath), transcriptFile),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUploadScoreHistory(t *testing.T) {
	svc := newFakeService(t)
	cfgPath := writeConfig(t, svc.URL)
	doc := writeDocument(t, "resume.pdf", "%PDF-1.4")

	out, err := execute(t, "", "--config", cfgPath, "upload", "--file", doc, "--session", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "File uploaded successfully: resume.pdf (8 bytes)")
	assert.Contains(t, out, "Session: abc123")

	out, err = execute(t, "", "--config", cfgPath, "score")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: abc123")
	assert.Contains(t, out, "Score: 7.5")

	out, err = execute(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "abc123 *")
	assert.Contains(t, out, "resume.pdf")

	store := openTranscript(t, cfgPath)
	for _, msg := range []chatconn.Message{
		{Origin: chatconn.OriginUser, Content: "what are my skills?", SessionID: "abc123", Sequence: 1},
		{Origin: chatconn.OriginAssistant, Content: "Go and", SessionID: "abc123", Sequence: 2},
		{Origin: chatconn.OriginAssistant, Content: "SQL.", SessionID: "abc123", Sequence: 3},
	} {
		require.NoError(t, store.Append(msg))
	}

	out, err = execute(t, "", "--config", cfgPath, "history", "--session", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "you> what are my skills?")
	assert.Contains(t, out, "assistant> Go and SQL.")

	out, err = execute(t, "", "--config", cfgPath, "history", "--search", "skills")
	require.NoError(t, err)
	assert.Contains(t, out, "[abc123] you> what are my skills?")

	out, err = execute(t, "", "--config", cfgPath, "history", "--search", "kubernetes")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching messages")

	out, err = execute(t, "", "--config", cfgPath, "history", "--prune", "720h")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 sessions")

	out, err = execute(t, "", "--config", cfgPath, "history", "--delete", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session abc123")

	out, err = execute(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded")
}

func TestUploadCommand_Errors(t *testing.T) {
	svc := newFakeService(t)
	cfgPath := writeConfig(t, svc.URL)

	t.Run("file flag required", func(t *testing.T) {
		_, err := execute(t, "", "--config", cfgPath, "upload")
		assert.Error(t, err)
	})

	t.Run("service rejects upload", func(t *testing.T) {
		svc.failUploads(413, "File too large")
		t.Cleanup(func() { svc.failUploads(0, "") })

		_, err := execute(t, "", "--config", cfgPath, "upload", "--file", writeDocument(t, "resume.pdf", "%PDF"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "File too large")
	})
}

func TestScoreCommand_NoSession(t *testing.T) {
	svc := newFakeService(t)
	cfgPath := writeConfig(t, svc.URL)

	_, err := execute(t, "", "--config", cfgPath, "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current session")
}

func TestChatCommand(t *testing.T) {
	t.Run("flag validation", func(t *testing.T) {
		_, err := execute(t, "", "chat")
		assert.EqualError(t, err, "either --file or --session is required")

		_, err = execute(t, "", "chat", "--session", "abc123", "--watch")
		assert.EqualError(t, err, "--watch requires --file")
	})

	t.Run("uploads and quits", func(t *testing.T) {
		svc := newFakeService(t)
		cfgPath := writeConfig(t, svc.URL)
		doc := writeDocument(t, "resume.pdf", "%PDF")

		out, err := execute(t, "/quit\n", "--config", cfgPath, "chat", "--file", doc, "--session", "abc123")
		require.NoError(t, err)
		assert.Contains(t, out, "* File uploaded successfully: resume.pdf")
		assert.Contains(t, out, "Type a message")
		assert.Equal(t, []string{"abc123"}, svc.Uploads())

		current, ok, err := openTranscript(t, cfgPath).Current(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc123", current)
	})

	t.Run("upload failure is reported", func(t *testing.T) {
		svc := newFakeService(t)
		svc.failUploads(400, "Unsupported file type")
		cfgPath := writeConfig(t, svc.URL)

		out, err := execute(t, "", "--config", cfgPath, "chat", "--file", writeDocument(t, "resume.pdf", "%PDF"))
		require.Error(t, err)
		assert.Contains(t, out, "error> Upload failed: Unsupported file type")
		assert.Zero(t, svc.dials.Load())
	})

	t.Run("resume prints history", func(t *testing.T) {
		svc := newFakeService(t)
		cfgPath := writeConfig(t, svc.URL)

		store := openTranscript(t, cfgPath)
		require.NoError(t, store.SaveSession(context.Background(), transcript.SessionRecord{ID: "abc123", Document: "resume.pdf", HasSubjectData: true}))
		require.NoError(t, store.Append(chatconn.Message{Origin: chatconn.OriginUser, Content: "earlier question", SessionID: "abc123", Sequence: 1}))

		out, err := execute(t, "/quit\n", "--config", cfgPath, "chat", "--session", "abc123")
		require.NoError(t, err)
		assert.Contains(t, out, "you> earlier question")
		assert.Empty(t, svc.Uploads())
	})
}

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "interactive configuration wizard")
	})

	t.Run("saves answers", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "doctalk.json")
		answers := "https://docs.example.com\n\n5\n2000\ndebug\n"

		out, err := execute(t, answers, "--config", cfgPath, "configure")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+cfgPath)

		cfg, err := config.Load(cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "https://docs.example.com", cfg.Server.BaseURL)
		assert.Equal(t, 5, cfg.Retry.MaxRetries)
		assert.Equal(t, 2000, cfg.Retry.BaseDelayMs)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
