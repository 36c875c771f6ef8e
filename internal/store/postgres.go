package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SoftwareDev-01/6.vybe/internal/crypto"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	participant_a UUID NOT NULL,
	participant_b UUID NOT NULL,
	pair_key TEXT UNIQUE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	sender UUID NOT NULL,
	receiver UUID NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	media_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'seen')),
	deleted_for_everyone BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_for TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_participant_a ON conversations(participant_a, last_message_at);
CREATE INDEX IF NOT EXISTS idx_conversations_participant_b ON conversations(participant_b, last_message_at);
`

// RunMigrations applies the schema to the database at databaseURL.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, pgSchema)
	return err
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindOrCreateConversation looks up the conversation for the unordered pair
// {x, y}, creating it when absent. The INSERT races through the pair_key
// uniqueness constraint; the loser falls back to the re-fetch.
func (s *PostgresStore) FindOrCreateConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error) {
	a, b := models.NormalizePair(x, y)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, pair_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_key) DO NOTHING
	`, crypto.NewUUIDv7(), a, b, models.PairKey(x, y))
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
func (s *PostgresStore) GetConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, participant_a, participant_b, created_at, last_message_at
		FROM conversations WHERE pair_key = $1
	`, models.PairKey(x, y)).Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// AppendMessage records messageID as the latest activity on a conversation.
// Message rows already carry their conversation id, so the append reduces to
// bumping the activity timestamp that orders the peer listing.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, (SELECT created_at FROM messages WHERE id = $2))
		WHERE id = $1
	`, conversationID, messageID)
	return err
}

// ListPeers returns the distinct counterparts across all of userID's
// conversations, most recently active first.
func (s *PostgresStore) ListPeers(ctx context.Context, userID uuid.UUID) ([]models.PeerSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			CASE WHEN participant_a = $1 THEN participant_b ELSE participant_a END,
			last_message_at
		FROM conversations
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_message_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	peers := []models.PeerSummary{}
	for rows.Next() {
		var p models.PeerSummary
		if err := rows.Scan(&p.UserID, &p.LastActiveAt); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// CreateMessage persists a new message.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, receiver, body, media_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.ConversationID, msg.Sender, msg.Receiver, msg.Body, msg.Media, string(msg.Status), msg.CreatedAt)
	return err
}

// GetMessage retrieves a message by id, or nil when absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanPGMessage(s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender, receiver, body, media_url, status, deleted_for_everyone, deleted_for, created_at
		FROM messages WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation's messages visible to viewerID in
// send order. Messages on the viewer's delete-for-me list are excluded here,
// in the query; deleted-for-everyone messages stay in the listing so clients
// can render the placeholder.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender, receiver, body, media_url, status, deleted_for_everyone, deleted_for, created_at
		FROM messages
		WHERE conversation_id = $1 AND NOT ($2::text = ANY(deleted_for))
		ORDER BY created_at ASC, id ASC
	`, conversationID, viewerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanPGMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UpdateStatus applies a forward-only status transition and reports whether
// it took effect. Monotonicity is enforced in the UPDATE itself so racing
// callers cannot move a message backward.
func (s *PostgresStore) UpdateStatus(ctx context.Context, messageID string, next models.Status) (bool, error) {
	if !next.Valid() {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET status = $2
		WHERE id = $1
		AND (CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END) <
		    (CASE $2 WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 ELSE 2 END)
	`, messageID, string(next))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDeletedForEveryone sets the one-way global deletion flag.
func (s *PostgresStore) MarkDeletedForEveryone(ctx context.Context, messageID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_for_everyone = TRUE WHERE id = $1
	`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AddDeletedFor hides the message for userID. Duplicate inserts are no-ops.
func (s *PostgresStore) AddDeletedFor(ctx context.Context, messageID string, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted_for = array_append(deleted_for, $2::text)
		WHERE id = $1 AND NOT ($2::text = ANY(deleted_for))
	`, messageID, userID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either already hidden (fine) or the message does not exist.
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

// scanPGMessage scans one message row, converting the deleted_for text array
// back into uuids.
func scanPGMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var status string
	var deletedFor []string
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Sender,
		&msg.Receiver,
		&msg.Body,
		&msg.Media,
		&status,
		&msg.DeletedForEveryone,
		&deletedFor,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Status = models.Status(status)
	for _, raw := range deletedFor {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		msg.DeletedFor = append(msg.DeletedFor, id)
	}
	return msg, nil
}
