package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/SoftwareDev-01/6.vybe/internal/api/middleware"
	"github.com/SoftwareDev-01/6.vybe/internal/metrics"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

// maxUploadSize bounds the multipart form, text field included.
const maxUploadSize = 10 << 20

// MessagesResponse wraps a message listing.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// PeersResponse wraps the conversation-peer listing.
type PeersResponse struct {
	Peers []models.PeerSummary `json:"peers"`
}

// DeleteRequest is the delete endpoint body.
type DeleteRequest struct {
	MessageID string `json:"messageId"`
	Mode      string `json:"mode"`
}

// DeleteResponse acknowledges a deletion.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// SendMessage handles POST /send/{receiverId}. Multipart form with an
// optional "text" field and an optional "image" file. The response carries
// the persisted message with its final status: delivered when the receiver's
// connection took the push, sent otherwise.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.DomainError(w, models.ErrUnauthorized)
		return
	}

	receiverID, err := uuid.Parse(chi.URLParam(r, "receiverId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid receiver ID format")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	text := r.FormValue("text")

	mediaURL := ""
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		mediaURL, err = h.uploadMedia(r, file)
		if err != nil {
			metrics.MediaUploads.WithLabelValues("error").Inc()
			h.DomainError(w, err)
			return
		}
		metrics.MediaUploads.WithLabelValues("ok").Inc()
	case errors.Is(err, http.ErrMissingFile):
		// text-only message
	default:
		h.Error(w, http.StatusBadRequest, "invalid media file")
		return
	}

	if text == "" && mediaURL == "" {
		h.DomainError(w, models.ErrEmptyMessage)
		return
	}

	conv, err := h.store.FindOrCreateConversation(r.Context(), senderID, receiverID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		Sender:         senderID,
		Receiver:       receiverID,
		Body:           text,
		Media:          mediaURL,
		Status:         models.StatusSent,
	}
	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		h.DomainError(w, err)
		return
	}
	if err := h.store.AppendMessage(r.Context(), conv.ID, msg.ID); err != nil {
		h.DomainError(w, err)
		return
	}

	// Push-then-upgrade: delivered is decided at send time only. An offline
	// receiver leaves the message at sent; fetching later does not upgrade.
	if h.gateway.DeliverNew(receiverID, msg) {
		applied, err := h.store.UpdateStatus(r.Context(), msg.ID, models.StatusDelivered)
		if err != nil {
			h.logger.Error().Err(err).Str("message_id", msg.ID).Msg("delivered upgrade failed")
		} else if applied {
			msg.Status = models.StatusDelivered
		}
	}
	metrics.MessagesSent.WithLabelValues(string(msg.Status)).Inc()

	h.invalidatePeers(r, senderID, receiverID)

	h.JSON(w, http.StatusCreated, msg)
}

// uploadMedia spools the uploaded file to a temp path and hands it to the
// media store. The temp file is removed whether or not the upload succeeds.
func (h *Handler) uploadMedia(r *http.Request, file io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "vybe-upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	return h.uploader.Upload(r.Context(), tmp.Name())
}

// GetMessages handles GET /messages/{counterpartyId}. Returns the viewer's
// filtered listing; no conversation yet means an empty listing, not an
// error.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.DomainError(w, models.ErrUnauthorized)
		return
	}

	counterpartyID, err := uuid.Parse(chi.URLParam(r, "counterpartyId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid counterparty ID format")
		return
	}

	conv, err := h.store.GetConversation(r.Context(), viewerID, counterpartyID)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if conv == nil {
		h.JSON(w, http.StatusOK, MessagesResponse{Messages: []models.Message{}})
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID, viewerID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// ConversationPeers handles GET /conversationPeers: the distinct users the
// caller has conversations with, most recently active first.
func (h *Handler) ConversationPeers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.DomainError(w, models.ErrUnauthorized)
		return
	}

	if h.redis != nil {
		if peers, err := h.redis.GetPeersCache(r.Context(), userID); err == nil && peers != nil {
			h.JSON(w, http.StatusOK, PeersResponse{Peers: peers})
			return
		}
	}

	peers, err := h.store.ListPeers(r.Context(), userID)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	if h.redis != nil {
		if err := h.redis.SetPeersCache(r.Context(), userID, peers); err != nil {
			h.logger.Warn().Err(err).Msg("peers cache write failed")
		}
	}

	h.JSON(w, http.StatusOK, PeersResponse{Peers: peers})
}

// DeleteMessage handles POST /delete. Mode "everyone" is sender-only and
// notifies the counterpart; mode "me" is a private, idempotent hide.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.DomainError(w, models.ErrUnauthorized)
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Mode != models.DeleteForMe && req.Mode != models.DeleteForEveryone {
		h.DomainError(w, models.ErrInvalidMode)
		return
	}

	msg, err := h.store.GetMessage(r.Context(), req.MessageID)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	if msg == nil {
		h.DomainError(w, models.ErrNotFound)
		return
	}
	if !msg.IsParticipant(requesterID) {
		h.DomainError(w, models.ErrForbidden)
		return
	}

	switch req.Mode {
	case models.DeleteForEveryone:
		if msg.Sender != requesterID {
			h.DomainError(w, models.ErrForbidden)
			return
		}
		if err := h.store.MarkDeletedForEveryone(r.Context(), req.MessageID); err != nil {
			h.DomainError(w, err)
			return
		}
		h.gateway.NotifyDeleted(msg.Receiver, req.MessageID)

	case models.DeleteForMe:
		if err := h.store.AddDeletedFor(r.Context(), req.MessageID, requesterID); err != nil {
			h.DomainError(w, err)
			return
		}
		// Private to the requester: nothing is pushed.
	}
	metrics.MessageDeletes.WithLabelValues(req.Mode).Inc()

	h.JSON(w, http.StatusOK, DeleteResponse{Success: true})
}

// invalidatePeers drops both participants' cached peer listings after a
// send so ordering reflects the new activity.
func (h *Handler) invalidatePeers(r *http.Request, users ...uuid.UUID) {
	if h.redis == nil {
		return
	}
	if err := h.redis.InvalidatePeers(r.Context(), users...); err != nil {
		h.logger.Warn().Err(err).Msg("peers cache invalidation failed")
	}
}
