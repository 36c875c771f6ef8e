package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

// DataStore defines the interface for persistent storage of conversations
// and messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Conversation operations
	//
	// FindOrCreateConversation must be safe under concurrent first-sends
	// from both directions of the same pair: a uniqueness constraint on the
	// normalized pair key plus re-fetch guarantees a single conversation.
	FindOrCreateConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, x, y uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error
	ListPeers(ctx context.Context, userID uuid.UUID) ([]models.PeerSummary, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns the conversation's messages visible to viewerID
	// (delete-for-me filtered), ordered by creation time ascending.
	ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]models.Message, error)
	// UpdateStatus applies a forward-only status transition. It reports
	// whether the transition was applied; backward or repeated transitions
	// are silent no-ops.
	UpdateStatus(ctx context.Context, messageID string, next models.Status) (bool, error)
	MarkDeletedForEveryone(ctx context.Context, messageID string) error
	// AddDeletedFor hides a message for one user. Idempotent.
	AddDeletedFor(ctx context.Context, messageID string, userID uuid.UUID) error
}
