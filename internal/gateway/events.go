package gateway

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

// Event types on the realtime channel. All pushes are fire-and-forget,
// at-most-once, best-effort: no queueing, no retry.
const (
	// server -> client
	EventPresenceChanged        = "presence-changed"
	EventNewMessage             = "new-message"
	EventMessageSeen            = "message-seen"
	EventMessageDeletedEveryone = "message-deleted-everyone"

	// both directions (client sends {to}, server relays {from})
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"

	// client -> server
	EventSeen = "seen"
)

// Event is the envelope multiplexed over a connection.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type presencePayload struct {
	OnlineUserIDs []uuid.UUID `json:"onlineUserIds"`
}

type typingInPayload struct {
	To uuid.UUID `json:"to"`
}

type typingOutPayload struct {
	From uuid.UUID `json:"from"`
}

type seenInPayload struct {
	MessageID string    `json:"messageId"`
	To        uuid.UUID `json:"to"`
}

type messageSeenPayload struct {
	MessageID string `json:"messageId"`
}

type messageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type newMessagePayload struct {
	Message *models.Message `json:"message"`
}

// encodeEvent marshals a payload into its envelope.
func encodeEvent(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Payload: raw})
}
