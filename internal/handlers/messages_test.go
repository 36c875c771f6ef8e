package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/api/middleware"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

// fakePusher records deliveries and simulates receiver reachability.
type fakePusher struct {
	online    bool
	delivered []string
	deleted   []string
}

func (p *fakePusher) DeliverNew(receiverID uuid.UUID, msg *models.Message) bool {
	if !p.online {
		return false
	}
	p.delivered = append(p.delivered, msg.ID)
	return true
}

func (p *fakePusher) NotifyDeleted(userID uuid.UUID, messageID string) {
	p.deleted = append(p.deleted, messageID)
}

// fakeUploader returns a fixed URL, or the media error when failing.
type fakeUploader struct {
	fail bool
}

func (u fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if u.fail {
		return "", models.ErrMediaUpload
	}
	return "https://assets.example.com/fake.png", nil
}

func newTestHandler(t *testing.T) (*Handler, *store.SQLiteStore, *fakePusher) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	pusher := &fakePusher{}
	h := NewHandler(st, nil, pusher, fakeUploader{}, zerolog.Nop())
	return h, st, pusher
}

// authedRequest builds a request with a verified user and chi URL params.
func authedRequest(t *testing.T, userID uuid.UUID, method, target string, body *bytes.Buffer, params map[string]string) *http.Request {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithUser(ctx, userID))
}

// multipartBody builds a send form with a text field and optional file.
func multipartBody(t *testing.T, text string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if text != "" {
		if err := mw.WriteField("text", text); err != nil {
			t.Fatal(err)
		}
	}
	if withFile {
		fw, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("not-really-a-png"))
	}
	mw.Close()
	return buf, mw.FormDataContentType()
}

func sendMessage(t *testing.T, h *Handler, sender, receiver uuid.UUID, text string) models.Message {
	t.Helper()
	body, contentType := multipartBody(t, text, false)
	req := authedRequest(t, sender, http.MethodPost, "/send/"+receiver.String(), body, map[string]string{"receiverId": receiver.String()})
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send failed: %d %s", rec.Code, rec.Body.String())
	}

	var msg models.Message
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestSendMessageDeliveredWhenOnline(t *testing.T) {
	h, _, pusher := newTestHandler(t)
	sender, receiver := uuid.New(), uuid.New()

	pusher.online = true
	msg := sendMessage(t, h, sender, receiver, "hi")

	if msg.Status != models.StatusDelivered {
		t.Fatalf("receiver online: expected delivered, got %s", msg.Status)
	}
	if len(pusher.delivered) != 1 || pusher.delivered[0] != msg.ID {
		t.Fatal("message must be pushed to the receiver's connection")
	}
}

func TestSendMessageSentWhenOffline(t *testing.T) {
	h, st, pusher := newTestHandler(t)
	sender, receiver := uuid.New(), uuid.New()

	pusher.online = false
	msg := sendMessage(t, h, sender, receiver, "hi")

	if msg.Status != models.StatusSent {
		t.Fatalf("receiver offline: expected sent, got %s", msg.Status)
	}

	// Fetching later does not upgrade to delivered; delivery is decided at
	// send time only.
	stored, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusSent {
		t.Fatalf("stored status must stay sent, got %s", stored.Status)
	}
}

func TestSendMessageEmpty(t *testing.T) {
	h, _, _ := newTestHandler(t)
	sender, receiver := uuid.New(), uuid.New()

	body, contentType := multipartBody(t, "", false)
	req := authedRequest(t, sender, http.MethodPost, "/send/"+receiver.String(), body, map[string]string{"receiverId": receiver.String()})
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "empty") {
		t.Fatalf("expected empty-message error, got %s", rec.Body.String())
	}
}

func TestSendMessageMediaUploadFails(t *testing.T) {
	h, st, _ := newTestHandler(t)
	h.uploader = fakeUploader{fail: true}
	sender, receiver := uuid.New(), uuid.New()

	body, contentType := multipartBody(t, "caption", true)
	req := authedRequest(t, sender, http.MethodPost, "/send/"+receiver.String(), body, map[string]string{"receiverId": receiver.String()})
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	// Upload failure aborts the whole send: no partial message persisted.
	conv, err := st.GetConversation(context.Background(), sender, receiver)
	if err != nil {
		t.Fatal(err)
	}
	if conv != nil {
		t.Fatal("no conversation should exist after an aborted send")
	}
}

func TestSendMessageWithMedia(t *testing.T) {
	h, _, pusher := newTestHandler(t)
	pusher.online = true
	sender, receiver := uuid.New(), uuid.New()

	body, contentType := multipartBody(t, "", true)
	req := authedRequest(t, sender, http.MethodPost, "/send/"+receiver.String(), body, map[string]string{"receiverId": receiver.String()})
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}

	var msg models.Message
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Media == "" || msg.Body != "" {
		t.Fatalf("expected media-only message, got body=%q media=%q", msg.Body, msg.Media)
	}
}

func TestGetMessagesNoConversation(t *testing.T) {
	h, _, _ := newTestHandler(t)
	viewer, counterparty := uuid.New(), uuid.New()

	req := authedRequest(t, viewer, http.MethodGet, "/messages/"+counterparty.String(), nil, map[string]string{"counterpartyId": counterparty.String()})
	rec := httptest.NewRecorder()
	h.GetMessages(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("no conversation is an empty listing, not an error: %d", rec.Code)
	}
	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 0 {
		t.Fatalf("expected empty listing, got %d", len(resp.Messages))
	}
}

func fetchMessages(t *testing.T, h *Handler, viewer, counterparty uuid.UUID) []models.Message {
	t.Helper()
	req := authedRequest(t, viewer, http.MethodGet, "/messages/"+counterparty.String(), nil, map[string]string{"counterpartyId": counterparty.String()})
	rec := httptest.NewRecorder()
	h.GetMessages(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch failed: %d", rec.Code)
	}
	var resp MessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Messages
}

func deleteMessage(t *testing.T, h *Handler, requester uuid.UUID, messageID, mode string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(DeleteRequest{MessageID: messageID, Mode: mode})
	req := authedRequest(t, requester, http.MethodPost, "/delete", bytes.NewBuffer(payload), nil)
	rec := httptest.NewRecorder()
	h.DeleteMessage(rec, req)
	return rec
}

func TestDeleteForMeIdempotent(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a, b := uuid.New(), uuid.New()
	msg := sendMessage(t, h, a, b, "hi")

	for i := 0; i < 2; i++ {
		if rec := deleteMessage(t, h, a, msg.ID, models.DeleteForMe); rec.Code != http.StatusOK {
			t.Fatalf("delete-for-me failed: %d", rec.Code)
		}
	}

	if msgs := fetchMessages(t, h, a, b); len(msgs) != 0 {
		t.Fatal("message must be hidden from a after delete-for-me")
	}

	// The other participant still sees it, with a on the list exactly once.
	msgs := fetchMessages(t, h, b, a)
	if len(msgs) != 1 {
		t.Fatal("delete-for-me is private; b must still see the message")
	}
	if len(msgs[0].DeletedFor) != 1 || msgs[0].DeletedFor[0] != a {
		t.Fatalf("deletedFor must contain a exactly once, got %v", msgs[0].DeletedFor)
	}
}

func TestDeleteForEveryoneRequiresSender(t *testing.T) {
	h, st, pusher := newTestHandler(t)
	a, b := uuid.New(), uuid.New()
	msg := sendMessage(t, h, a, b, "hi")

	if rec := deleteMessage(t, h, b, msg.ID, models.DeleteForEveryone); rec.Code != http.StatusForbidden {
		t.Fatalf("non-sender delete-for-everyone must be forbidden, got %d", rec.Code)
	}
	stored, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DeletedForEveryone {
		t.Fatal("forbidden delete must not change state")
	}

	if rec := deleteMessage(t, h, a, msg.ID, models.DeleteForEveryone); rec.Code != http.StatusOK {
		t.Fatalf("sender delete-for-everyone failed: %d", rec.Code)
	}
	if len(pusher.deleted) != 1 || pusher.deleted[0] != msg.ID {
		t.Fatal("counterpart must be notified of delete-for-everyone")
	}

	// Both participants still get the message back, flagged.
	for viewer, counterparty := range map[uuid.UUID]uuid.UUID{a: b, b: a} {
		msgs := fetchMessages(t, h, viewer, counterparty)
		if len(msgs) != 1 || !msgs[0].DeletedForEveryone {
			t.Fatal("deleted-for-everyone message must stay listed with the flag")
		}
	}
}

func TestDeleteInvalidMode(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a, b := uuid.New(), uuid.New()
	msg := sendMessage(t, h, a, b, "hi")

	if rec := deleteMessage(t, h, a, msg.ID, "both"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode must be rejected, got %d", rec.Code)
	}
}

func TestDeleteMissingMessage(t *testing.T) {
	h, _, _ := newTestHandler(t)

	if rec := deleteMessage(t, h, uuid.New(), "01AN4Z07BY79KA1307SR9X4MV3", models.DeleteForMe); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteByNonParticipant(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a, b := uuid.New(), uuid.New()
	msg := sendMessage(t, h, a, b, "hi")

	if rec := deleteMessage(t, h, uuid.New(), msg.ID, models.DeleteForMe); rec.Code != http.StatusForbidden {
		t.Fatalf("outsider delete must be forbidden, got %d", rec.Code)
	}
}

func TestConversationPeers(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	sendMessage(t, h, a, b, "to b")
	sendMessage(t, h, a, c, "to c, later")

	req := authedRequest(t, a, http.MethodGet, "/conversationPeers", nil, nil)
	rec := httptest.NewRecorder()
	h.ConversationPeers(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("peers failed: %d", rec.Code)
	}

	var resp PeersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(resp.Peers))
	}
	if resp.Peers[0].UserID != c || resp.Peers[1].UserID != b {
		t.Fatal("peers must be ordered most-recently-active first")
	}
}
