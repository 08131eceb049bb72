package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/doctalk/internal/observability"
	"github.com/harun/doctalk/pkg/chatconn"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const currentSessionKey = "current_session"

// ErrNotFound is returned when a session is not in the store.
var ErrNotFound = errors.New("session not found")

// SessionRecord is a stored session.
type SessionRecord struct {
	ID             string    `json:"id"`
	Document       string    `json:"document,omitempty"`
	HasSubjectData bool      `json:"has_subject_data"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
	MessageCount   int       `json:"message_count"`
}

// SearchHit is one message matching a search.
type SearchHit struct {
	SessionID string           `json:"session_id"`
	Message   chatconn.Message `json:"message"`
}

// Config holds transcript store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
	Now    func() time.Time
}

// Store is the SQLite transcript store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the store at cfg.DBPath
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger, now: cfg.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", cfg.DBPath).Msg("Transcript store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL DEFAULT '',
			has_subject_data INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(last_active_at);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			origin TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts or updates a session.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.ID == "" {
		return errors.New("session id is required")
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, document, has_subject_data, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			has_subject_data = excluded.has_subject_data,
			last_active_at = excluded.last_active_at
	`, rec.ID, rec.Document, rec.HasSubjectData, rec.CreatedAt.UnixMilli(), now.UnixMilli())
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

// MarkNoData records that the server holds no subject data for the session.
func (s *Store) MarkNoData(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET has_subject_data = 0 WHERE id = ?`, sessionID)
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Append stores one message of a conversation. Messages without a session
// id, such as local notices before any upload, are not stored.
func (s *Store) Append(msg chatconn.Message) error {
	if msg.SessionID == "" {
		return nil
	}
	at := msg.At
	if at.IsZero() {
		at = s.now()
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_active_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active_at = excluded.last_active_at
	`, msg.SessionID, at.UnixMilli(), at.UnixMilli()); err != nil {
		observability.RecordTranscriptWrite(false)
		return fmt.Errorf("failed to touch session %s: %w", msg.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, sequence, origin, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.SessionID, msg.Sequence, string(msg.Origin), string(msg.Kind), msg.Content, at.UnixMilli()); err != nil {
		observability.RecordTranscriptWrite(false)
		return fmt.Errorf("failed to append message: %w", err)
	}

	err = tx.Commit()
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Messages returns the stored log of a session, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]chatconn.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, origin, kind, content, created_at
		FROM messages WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []chatconn.Message
	for rows.Next() {
		msg, err := scanMessage(rows, sessionID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Session returns one stored session
func (s *Store) Session(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.id = ? GROUP BY s.id`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return rec, err
}

// Sessions returns stored sessions, most recently active first. A
// non-positive limit returns all of them.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := sessionQuery + ` GROUP BY s.id ORDER BY s.last_active_at DESC, s.id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Prune deletes sessions last active before the cutoff, with their
// messages, and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, before.UnixMilli())
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("sessions", n).Time("before", before).Msg("Pruned transcript")
	}
	return int(n), nil
}

// SetCurrent remembers id as the session to resume.
func (s *Store) SetCurrent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, currentSessionKey, id)
	observability.RecordTranscriptWrite(err == nil)
	if err != nil {
		return fmt.Errorf("failed to set current session: %w", err)
	}
	return nil
}

// Current returns the session set with SetCurrent, if any.
func (s *Store) Current(ctx context.Context) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, currentSessionKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read current session: %w", err)
	}
	return id, true, nil
}

// Search finds messages whose content contains query, newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, sequence, origin, kind, content, created_at
		FROM messages
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY id DESC
		LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var sessionID string
		var seq int
		var origin, kind, content string
		var createdAt int64
		if err := rows.Scan(&sessionID, &seq, &origin, &kind, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		hits = append(hits, SearchHit{
			SessionID: sessionID,
			Message:   newMessage(sessionID, seq, origin, kind, content, createdAt),
		})
	}
	return hits, rows.Err()
}

const sessionQuery = `
	SELECT s.id, s.document, s.has_subject_data, s.created_at, s.last_active_at, COUNT(m.id)
	FROM sessions s LEFT JOIN messages m ON m.session_id = s.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var rec SessionRecord
	var created, active int64
	if err := row.Scan(&rec.ID, &rec.Document, &rec.HasSubjectData, &created, &active, &rec.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, err
		}
		return SessionRecord{}, fmt.Errorf("failed to scan session: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(created)
	rec.LastActiveAt = time.UnixMilli(active)
	return rec, nil
}

func scanMessage(row scanner, sessionID string) (chatconn.Message, error) {
	var seq int
	var origin, kind, content string
	var createdAt int64
	if err := row.Scan(&seq, &origin, &kind, &content, &createdAt); err != nil {
		return chatconn.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	return newMessage(sessionID, seq, origin, kind, content, createdAt), nil
}

func newMessage(sessionID string, seq int, origin, kind, content string, createdAt int64) chatconn.Message {
	return chatconn.Message{
		Origin:    chatconn.Origin(origin),
		Content:   content,
		Sequence:  seq,
		Kind:      chatconn.ErrorKind(kind),
		SessionID: sessionID,
		At:        time.UnixMilli(createdAt),
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
