package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/models"
	"github.com/SoftwareDev-01/6.vybe/internal/presence"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

// fakeConn is an in-memory Conn for driving the gateway without HTTP.
type fakeConn struct {
	in   chan []byte
	out  chan []byte
	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:  make(chan []byte, 8),
		out: make(chan []byte, 64),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.out <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.in) })
	return nil
}

// nextEvent reads pushed events until one of the wanted type arrives.
func nextEvent(t *testing.T, conn *fakeConn, eventType string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-conn.out:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

// expectNoEvent asserts no event of the given type shows up briefly.
func expectNoEvent(t *testing.T, conn *fakeConn, eventType string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case data := <-conn.out:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Type == eventType {
				t.Fatalf("unexpected %s event", eventType)
			}
		case <-deadline:
			return
		}
	}
}

func newTestGateway(t *testing.T) (*Gateway, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	return New(st, presence.NewRegistry(), zerolog.Nop()), st
}

func seedMessage(t *testing.T, st *store.SQLiteStore, sender, receiver uuid.UUID) *models.Message {
	t.Helper()
	ctx := context.Background()
	conv, err := st.FindOrCreateConversation(ctx, sender, receiver)
	if err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		Sender:         sender,
		Receiver:       receiver,
		Body:           "hello",
		Status:         models.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
	if err := st.CreateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestDeliverNewOfflineReceiver(t *testing.T) {
	g, _ := newTestGateway(t)

	msg := &models.Message{ID: ulid.Make().String(), Body: "hi"}
	if g.DeliverNew(uuid.New(), msg) {
		t.Fatal("push to an offline user must report undelivered")
	}
}

func TestDeliverNewOnlineReceiver(t *testing.T) {
	g, _ := newTestGateway(t)
	receiver := uuid.New()
	conn := newFakeConn()
	g.attach(receiver, conn)

	msg := &models.Message{ID: ulid.Make().String(), Body: "hi", Status: models.StatusSent}
	if !g.DeliverNew(receiver, msg) {
		t.Fatal("push to an online user must report delivered")
	}

	ev := nextEvent(t, conn, EventNewMessage)
	var payload newMessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Message.ID != msg.ID {
		t.Fatalf("expected message %s, got %s", msg.ID, payload.Message.ID)
	}
}

func TestPresenceBroadcast(t *testing.T) {
	g, _ := newTestGateway(t)
	userA, userB := uuid.New(), uuid.New()

	connA := newFakeConn()
	g.attach(userA, connA)
	nextEvent(t, connA, EventPresenceChanged)

	connB := newFakeConn()
	clientB := g.attach(userB, connB)

	// Both connections hear about B coming online.
	ev := nextEvent(t, connA, EventPresenceChanged)
	var payload presencePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.OnlineUserIDs) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(payload.OnlineUserIDs))
	}

	// B disconnects; A hears the shrunken list.
	go clientB.readPump(g)
	clientB.conn.Close()

	ev = nextEvent(t, connA, EventPresenceChanged)
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.OnlineUserIDs) != 1 || payload.OnlineUserIDs[0] != userA {
		t.Fatalf("expected only %s online, got %v", userA, payload.OnlineUserIDs)
	}
}

func TestTypingRelay(t *testing.T) {
	g, _ := newTestGateway(t)
	userA, userB := uuid.New(), uuid.New()

	connA := newFakeConn()
	clientA := g.attach(userA, connA)
	connB := newFakeConn()
	g.attach(userB, connB)

	raw, _ := json.Marshal(typingInPayload{To: userB})
	g.handleEvent(clientA, &Event{Type: EventTypingStart, Payload: raw})

	ev := nextEvent(t, connB, EventTypingStart)
	var out typingOutPayload
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		t.Fatal(err)
	}
	if out.From != userA {
		t.Fatalf("typing relay must carry the origin user, got %s", out.From)
	}
}

func TestTypingDroppedWhenOffline(t *testing.T) {
	g, _ := newTestGateway(t)
	connA := newFakeConn()
	clientA := g.attach(uuid.New(), connA)

	// Counterpart offline: silently dropped, no queueing, no error.
	raw, _ := json.Marshal(typingInPayload{To: uuid.New()})
	g.handleEvent(clientA, &Event{Type: EventTypingStop, Payload: raw})
}

func TestSeenFlow(t *testing.T) {
	g, st := newTestGateway(t)
	sender, receiver := uuid.New(), uuid.New()
	msg := seedMessage(t, st, sender, receiver)

	senderConn := newFakeConn()
	g.attach(sender, senderConn)
	receiverConn := newFakeConn()
	receiverClient := g.attach(receiver, receiverConn)

	raw, _ := json.Marshal(seenInPayload{MessageID: msg.ID, To: sender})
	g.handleEvent(receiverClient, &Event{Type: EventSeen, Payload: raw})

	// Sender is notified and the stored status is upgraded.
	ev := nextEvent(t, senderConn, EventMessageSeen)
	var payload messageSeenPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.MessageID != msg.ID {
		t.Fatalf("expected %s, got %s", msg.ID, payload.MessageID)
	}

	got, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusSeen {
		t.Fatalf("expected seen, got %s", got.Status)
	}

	// A repeated seen signal is a no-op: no second notification.
	g.handleEvent(receiverClient, &Event{Type: EventSeen, Payload: raw})
	expectNoEvent(t, senderConn, EventMessageSeen)
}

func TestSeenIgnoredFromNonReceiver(t *testing.T) {
	g, st := newTestGateway(t)
	sender, receiver := uuid.New(), uuid.New()
	msg := seedMessage(t, st, sender, receiver)

	senderConn := newFakeConn()
	senderClient := g.attach(sender, senderConn)

	// The sender acknowledging its own message must not change anything.
	raw, _ := json.Marshal(seenInPayload{MessageID: msg.ID, To: sender})
	g.handleEvent(senderClient, &Event{Type: EventSeen, Payload: raw})

	got, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusSent {
		t.Fatalf("status must stay sent, got %s", got.Status)
	}
}
