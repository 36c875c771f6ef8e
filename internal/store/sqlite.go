package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/SoftwareDev-01/6.vybe/internal/crypto"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

// sqliteTimeFormat is fixed-width so lexicographic order equals time order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore handles SQLite database operations. It is the development
// fallback behind the same DataStore interface as PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/vybe.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/vybe.db"
	}

	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dbPath += "?_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		pair_key TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL,
		last_message_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'seen')),
		deleted_for_everyone INTEGER NOT NULL DEFAULT 0,
		deleted_for TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindOrCreateConversation looks up the conversation for the unordered pair
// {x, y}, creating it when absent. INSERT OR IGNORE races through the
// pair_key uniqueness constraint; the loser falls back to the re-fetch.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error) {
	a, b := models.NormalizePair(x, y)
	now := time.Now().UTC().Format(sqliteTimeFormat)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, participant_a, participant_b, pair_key, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, crypto.NewUUIDv7().String(), a.String(), b.String(), models.PairKey(x, y), now, now)
	if err != nil {
		return nil, err
	}

	conv, err := s.GetConversation(ctx, x, y)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.New("conversation missing after insert")
	}
	return conv, nil
}

// GetConversation retrieves the conversation for the unordered pair {x, y},
// or nil when none exists.
func (s *SQLiteStore) GetConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error) {
	var (
		conv          models.Conversation
		id, pa, pb    string
		created, last string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, created_at, last_message_at
		FROM conversations WHERE pair_key = ?
	`, models.PairKey(x, y)).Scan(&id, &pa, &pb, &created, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	conv.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	if conv.ParticipantA, err = uuid.Parse(pa); err != nil {
		return nil, err
	}
	if conv.ParticipantB, err = uuid.Parse(pb); err != nil {
		return nil, err
	}
	if conv.CreatedAt, err = time.Parse(sqliteTimeFormat, created); err != nil {
		return nil, err
	}
	if conv.LastMessageAt, err = time.Parse(sqliteTimeFormat, last); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage records messageID as the latest activity on a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = MAX(last_message_at, (SELECT created_at FROM messages WHERE id = ?))
		WHERE id = ?
	`, messageID, conversationID.String())
	return err
}

// ListPeers returns the distinct counterparts across all of userID's
// conversations, most recently active first.
func (s *SQLiteStore) ListPeers(ctx context.Context, userID uuid.UUID) ([]models.PeerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			CASE WHEN participant_a = ? THEN participant_b ELSE participant_a END,
			last_message_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY last_message_at DESC
	`, userID.String(), userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	peers := []models.PeerSummary{}
	for rows.Next() {
		var rawID, rawTime string
		if err := rows.Scan(&rawID, &rawTime); err != nil {
			return nil, err
		}
		var p models.PeerSummary
		if p.UserID, err = uuid.Parse(rawID); err != nil {
			return nil, err
		}
		if p.LastActiveAt, err = time.Parse(sqliteTimeFormat, rawTime); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// CreateMessage persists a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, receiver, body, media_url, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID.String(), msg.Sender.String(), msg.Receiver.String(),
		msg.Body, msg.Media, string(msg.Status), msg.CreatedAt.UTC().Format(sqliteTimeFormat))
	return err
}

const sqliteMessageColumns = `id, conversation_id, sender, receiver, body, media_url, status, deleted_for_everyone, deleted_for, created_at`

// GetMessage retrieves a message by id, or nil when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?
	`, id)
	msg, err := scanSQLiteMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation's messages visible to viewerID in
// send order, excluding anything on the viewer's delete-for-me list.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ?
		AND NOT EXISTS (SELECT 1 FROM json_each(messages.deleted_for) WHERE value = ?)
		ORDER BY created_at ASC, id ASC
	`, conversationID.String(), viewerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UpdateStatus applies a forward-only status transition and reports whether
// it took effect.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, messageID string, next models.Status) (bool, error) {
	if !next.Valid() {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?
		WHERE id = ?
		AND (CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END) <
		    (CASE ? WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END)
	`, string(next), messageID, string(next))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkDeletedForEveryone sets the one-way global deletion flag.
func (s *SQLiteStore) MarkDeletedForEveryone(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for_everyone = 1 WHERE id = ?
	`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AddDeletedFor hides the message for userID. Duplicate inserts are no-ops.
func (s *SQLiteStore) AddDeletedFor(ctx context.Context, messageID string, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_for = json_insert(deleted_for, '$[#]', ?)
		WHERE id = ?
		AND NOT EXISTS (SELECT 1 FROM json_each(messages.deleted_for) WHERE value = ?)
	`, userID.String(), messageID, userID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		msg, err := s.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return models.ErrNotFound
		}
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteMessage(row scanner) (*models.Message, error) {
	var (
		msg                models.Message
		convID, sender     string
		receiver, status   string
		deletedForEveryone int
		deletedFor         string
		created            string
	)
	err := row.Scan(
		&msg.ID, &convID, &sender, &receiver,
		&msg.Body, &msg.Media, &status, &deletedForEveryone, &deletedFor, &created,
	)
	if err != nil {
		return nil, err
	}

	if msg.ConversationID, err = uuid.Parse(convID); err != nil {
		return nil, err
	}
	if msg.Sender, err = uuid.Parse(sender); err != nil {
		return nil, err
	}
	if msg.Receiver, err = uuid.Parse(receiver); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = time.Parse(sqliteTimeFormat, created); err != nil {
		return nil, err
	}
	msg.Status = models.Status(status)
	msg.DeletedForEveryone = deletedForEveryone != 0

	var rawIDs []string
	if err := json.Unmarshal([]byte(deletedFor), &rawIDs); err != nil {
		return nil, err
	}
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		msg.DeletedFor = append(msg.DeletedFor, id)
	}
	return &msg, nil
}
