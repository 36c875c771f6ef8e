// Package gateway is the realtime fan-out layer: one websocket connection
// per online user, multiplexing message, typing, seen, presence and delete
// events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/api/middleware"
	"github.com/SoftwareDev-01/6.vybe/internal/metrics"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
	"github.com/SoftwareDev-01/6.vybe/internal/presence"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

const seenTimeout = 5 * time.Second

// Gateway fans events out to connected clients. Connection handlers are
// independent goroutines; the presence registry and the clients map are the
// only shared state, each guarded by its own lock.
type Gateway struct {
	store    store.DataStore
	registry *presence.Registry
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client // connection id -> client
}

// New creates a gateway backed by the given store and presence registry.
func New(st store.DataStore, registry *presence.Registry, logger zerolog.Logger) *Gateway {
	return &Gateway{
		store:    st,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The SPA is served from a different origin; auth happens via
			// the identity token, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// HandleWS upgrades an authenticated request to a websocket connection and
// runs its pumps. The identity middleware has already verified the token, so
// the user id on the context is trusted.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := g.attach(userID, conn)
	c.readPump(g)
}

// attach registers a new connection for userID and starts its write pump.
// Split from HandleWS so tests can attach in-memory connections.
func (g *Gateway) attach(userID uuid.UUID, conn Conn) *client {
	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	g.registry.Register(userID, c.id)
	metrics.GatewayConnections.Inc()
	g.logger.Info().
		Str("user_id", userID.String()).
		Str("conn_id", c.id).
		Msg("gateway connected")

	go c.writePump()
	g.broadcastPresence()
	return c
}

// drop detaches a client after its read pump exits. The registry unregister
// is conditional on the connection id so a stale disconnect from a
// superseded connection leaves the live mapping alone.
func (g *Gateway) drop(c *client) {
	// Closing send must be exclusive with pushes, which hold the read lock
	// while enqueueing.
	g.mu.Lock()
	delete(g.clients, c.id)
	close(c.send)
	g.mu.Unlock()

	c.conn.Close()
	metrics.GatewayConnections.Dec()

	if g.registry.Unregister(c.userID, c.id) {
		g.broadcastPresence()
	}
	g.logger.Info().
		Str("user_id", c.userID.String()).
		Str("conn_id", c.id).
		Msg("gateway disconnected")
}

// handleEvent dispatches one inbound client event.
func (g *Gateway) handleEvent(c *client, ev *Event) {
	switch ev.Type {
	case EventTypingStart, EventTypingStop:
		g.relayTyping(c, ev)
	case EventSeen:
		g.handleSeen(c, ev)
	default:
		g.logger.Debug().Str("type", ev.Type).Msg("ignoring unknown event")
	}
}

// relayTyping forwards a typing signal to the named counterpart, if online.
// Typing never touches persistence; an offline counterpart means the signal
// is silently dropped.
func (g *Gateway) relayTyping(c *client, ev *Event) {
	var in typingInPayload
	if err := unmarshalPayload(ev, &in); err != nil || in.To == uuid.Nil {
		return
	}
	g.PushToUser(in.To, ev.Type, typingOutPayload{From: c.userID})
}

// handleSeen persists the seen transition and notifies the sender. Repeated
// seen signals are no-ops: the store rejects non-forward transitions and
// nothing is pushed for them.
func (g *Gateway) handleSeen(c *client, ev *Event) {
	var in seenInPayload
	if err := unmarshalPayload(ev, &in); err != nil || in.MessageID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), seenTimeout)
	defer cancel()

	msg, err := g.store.GetMessage(ctx, in.MessageID)
	if err != nil {
		g.logger.Error().Err(err).Str("message_id", in.MessageID).Msg("seen lookup failed")
		return
	}
	// Only the receiver may acknowledge a message.
	if msg == nil || msg.Receiver != c.userID {
		return
	}

	applied, err := g.store.UpdateStatus(ctx, in.MessageID, models.StatusSeen)
	if err != nil {
		g.logger.Error().Err(err).Str("message_id", in.MessageID).Msg("seen update failed")
		return
	}
	if !applied {
		return
	}

	g.PushToUser(msg.Sender, EventMessageSeen, messageSeenPayload{MessageID: in.MessageID})
}

// DeliverNew pushes a freshly persisted message to the receiver's
// connection. Reports whether the receiver was reachable and the event was
// enqueued; the caller upgrades the stored status to delivered on success.
func (g *Gateway) DeliverNew(receiverID uuid.UUID, msg *models.Message) bool {
	return g.PushToUser(receiverID, EventNewMessage, newMessagePayload{Message: msg})
}

// NotifyDeleted tells the counterpart that a message was deleted for
// everyone. Delete-for-me is private and never pushed.
func (g *Gateway) NotifyDeleted(userID uuid.UUID, messageID string) {
	g.PushToUser(userID, EventMessageDeletedEveryone, messageDeletedPayload{MessageID: messageID})
}

// PushToUser sends one event to a user's active connection, best effort.
// Returns false when the user is offline or the send buffer is full.
func (g *Gateway) PushToUser(userID uuid.UUID, eventType string, payload interface{}) bool {
	connID, ok := g.registry.Resolve(userID)
	if !ok {
		metrics.EventsDropped.WithLabelValues(eventType).Inc()
		return false
	}

	data, err := encodeEvent(eventType, payload)
	if err != nil {
		g.logger.Error().Err(err).Str("type", eventType).Msg("event encode failed")
		return false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	c := g.clients[connID]
	if c == nil {
		metrics.EventsDropped.WithLabelValues(eventType).Inc()
		return false
	}

	select {
	case c.send <- data:
		metrics.EventsPushed.WithLabelValues(eventType).Inc()
		return true
	default:
		metrics.EventsDropped.WithLabelValues(eventType).Inc()
		return false
	}
}

// broadcastPresence pushes the full online-user list to every connection.
// Runs on every register and unregister.
func (g *Gateway) broadcastPresence() {
	data, err := encodeEvent(EventPresenceChanged, presencePayload{OnlineUserIDs: g.registry.Snapshot()})
	if err != nil {
		g.logger.Error().Err(err).Msg("presence encode failed")
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.clients {
		select {
		case c.send <- data:
			metrics.EventsPushed.WithLabelValues(EventPresenceChanged).Inc()
		default:
			metrics.EventsDropped.WithLabelValues(EventPresenceChanged).Inc()
		}
	}
}

func unmarshalPayload(ev *Event, v interface{}) error {
	if len(ev.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(ev.Payload, v)
}
