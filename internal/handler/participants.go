package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// ParticipantHandler handles participant endpoints.
type ParticipantHandler struct {
	store  *resilience.Adapter
	logger *logger.Logger
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(store *resilience.Adapter, log *logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{store: store, logger: log}
}

// AddParticipantRequest is the body of POST /conversations/{id}/participants.
type AddParticipantRequest struct {
	UserID      string                `json:"user_id"`
	Role        model.ParticipantRole `json:"role,omitempty"`
	Permissions []string              `json:"permissions,omitempty"`
}

// Add handles POST /api/v1/conversations/{id}/participants
func (h *ParticipantHandler) Add(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	var req AddParticipantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.store.AddParticipant(r.Context(), scope, scope.ConversationID(), req.UserID, req.Role, req.Permissions)
	if err != nil {
		writeStoreError(w, h.logger, "add participant", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Remove handles DELETE /api/v1/conversations/{id}/participants/{userID}.
// The participant row is deactivated, never deleted.
func (h *ParticipantHandler) Remove(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	if err := h.store.DeactivateParticipant(r.Context(), scope, scope.ConversationID(), chi.URLParam(r, "userID")); err != nil {
		writeStoreError(w, h.logger, "remove participant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
