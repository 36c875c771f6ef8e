package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the persisted record of the message history between exactly
// two users. ParticipantA always sorts before ParticipantB so the unordered
// pair has a single canonical form.
type Conversation struct {
	ID            uuid.UUID `json:"id"`
	ParticipantA  uuid.UUID `json:"participantA"`
	ParticipantB  uuid.UUID `json:"participantB"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// NormalizePair orders two user ids into canonical (a, b) form.
func NormalizePair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if y.String() < x.String() {
		return y, x
	}
	return x, y
}

// PairKey returns the canonical key for the unordered pair {x, y}. The store
// keeps a uniqueness constraint on this key, which is what guarantees a
// single conversation per pair under concurrent first-sends.
func PairKey(x, y uuid.UUID) string {
	a, b := NormalizePair(x, y)
	return a.String() + ":" + b.String()
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// PeerSummary is one entry in a user's conversation-peer listing.
type PeerSummary struct {
	UserID       uuid.UUID `json:"userId"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}
