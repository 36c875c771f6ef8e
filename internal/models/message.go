package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a message. Transitions only move forward:
// sent -> delivered -> seen.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank returns the position of a status in the delivery order.
// Unknown statuses rank below sent so they can never win an upgrade.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// CanUpgradeTo reports whether moving from s to next is a forward transition.
// Equal or backward transitions are rejected; callers treat them as no-ops.
func (s Status) CanUpgradeTo(next Status) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Delete modes accepted by the delete endpoint.
const (
	DeleteForMe       = "me"
	DeleteForEveryone = "everyone"
)

// Message is a single direct message between two users.
//
// The two deletion fields are independent: DeletedForEveryone is a one-way
// flag set by the sender and rendered as a placeholder by both participants,
// while DeletedFor is a per-user hide list that only affects that user's own
// listing.
type Message struct {
	ID                 string      `json:"id"`
	ConversationID     uuid.UUID   `json:"conversationId"`
	Sender             uuid.UUID   `json:"sender"`
	Receiver           uuid.UUID   `json:"receiver"`
	Body               string      `json:"body"`
	Media              string      `json:"media"`
	Status             Status      `json:"status"`
	DeletedForEveryone bool        `json:"isDeletedForEveryone"`
	DeletedFor         []uuid.UUID `json:"deletedForUserIds"`
	CreatedAt          time.Time   `json:"createdAt"`
}

// Validate checks the creation invariant: a message must carry text or media.
func (m *Message) Validate() error {
	if m.Body == "" && m.Media == "" {
		return ErrEmptyMessage
	}
	return nil
}

// HiddenFor reports whether the message is on userID's delete-for-me list.
func (m *Message) HiddenFor(userID uuid.UUID) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// IsParticipant reports whether userID is the sender or receiver.
func (m *Message) IsParticipant(userID uuid.UUID) bool {
	return m.Sender == userID || m.Receiver == userID
}
