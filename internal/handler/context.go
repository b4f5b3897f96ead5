package handler

import (
	"net/http"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// ContextHandler handles conversation context endpoints.
type ContextHandler struct {
	store  *resilience.Adapter
	logger *logger.Logger
}

// NewContextHandler creates a new context handler.
func NewContextHandler(store *resilience.Adapter, log *logger.Logger) *ContextHandler {
	return &ContextHandler{store: store, logger: log}
}

// Get handles GET /api/v1/conversations/{id}/context
func (h *ContextHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	out := h.store.GetConversationContext(r.Context(), scope, scope.ConversationID())
	if out.IsStored() && out.Value == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeOutcome(w, h.logger, "get context", http.StatusOK, out)
}

// Update handles PATCH /api/v1/conversations/{id}/context. Knowledge
// fields in the body are merged key by key into the stored context.
func (h *ContextHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	update, err := model.ContextUpdateFromMap(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.store.UpdateConversationContext(r.Context(), scope, scope.ConversationID(), update)
	writeOutcome(w, h.logger, "update context", http.StatusOK, out)
}

// MarkSummarized handles POST /api/v1/conversations/{id}/context/summarized
func (h *ContextHandler) MarkSummarized(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	cc, err := h.store.MarkContextSummarized(r.Context(), scope, scope.ConversationID())
	if err != nil {
		writeStoreError(w, h.logger, "mark context summarized", err)
		return
	}
	writeJSON(w, http.StatusOK, cc)
}
