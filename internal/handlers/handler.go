package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SoftwareDev-01/6.vybe/internal/media"
	"github.com/SoftwareDev-01/6.vybe/internal/models"
	"github.com/SoftwareDev-01/6.vybe/internal/store"
)

// Pusher is the realtime fan-out surface the handlers depend on. The
// gateway implements it; tests use a fake.
type Pusher interface {
	DeliverNew(receiverID uuid.UUID, msg *models.Message) bool
	NotifyDeleted(userID uuid.UUID, messageID string)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	redis    *store.RedisStore
	gateway  Pusher
	uploader media.Uploader
	logger   zerolog.Logger
}

// NewHandler creates a new Handler. redis may be nil in development.
func NewHandler(st store.DataStore, rs *store.RedisStore, gw Pusher, up media.Uploader, logger zerolog.Logger) *Handler {
	return &Handler{store: st, redis: rs, gateway: gw, uploader: up, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// DomainError maps a domain error to its HTTP response.
func (h *Handler) DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyMessage):
		h.Error(w, http.StatusBadRequest, "message cannot be empty")
	case errors.Is(err, models.ErrMediaUpload):
		h.Error(w, http.StatusBadGateway, "media upload failed")
	case errors.Is(err, models.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		h.Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrInvalidMode):
		h.Error(w, http.StatusBadRequest, "invalid delete mode")
	case errors.Is(err, models.ErrUnauthorized):
		h.Error(w, http.StatusUnauthorized, "authentication required")
	default:
		h.logger.Error().Err(err).Msg("internal error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
