// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/capitalize-ai/agent-conversations/internal/middleware"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/internal/service"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store  *resilience.Adapter
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(store *resilience.Adapter, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  store,
		logger: log,
	}
}

// CreateConversationRequest is the body of POST /conversations. When
// ConversationID names an accessible conversation it is returned instead
// of creating a new one.
type CreateConversationRequest struct {
	ConversationID   int64         `json:"conversation_id,omitempty"`
	Title            string        `json:"title"`
	Type             string        `json:"conversation_type,omitempty"`
	EventID          *int64        `json:"event_id,omitempty"`
	Description      *string       `json:"description,omitempty"`
	PrimaryAgentType *string       `json:"primary_agent_type,omitempty"`
	AgentContext     model.Payload `json:"agent_context,omitempty"`
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := middleware.GetScope(ctx)

	var req CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID < 0 {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	out := h.store.GetOrCreateConversation(ctx, scope.WithConversation(req.ConversationID), model.CreateConversationParams{
		Title:            req.Title,
		Type:             req.Type,
		EventID:          req.EventID,
		Description:      req.Description,
		PrimaryAgentType: req.PrimaryAgentType,
		AgentContext:     req.AgentContext,
	})
	status := http.StatusCreated
	if out.IsStored() && req.ConversationID > 0 && out.Value.ID == req.ConversationID {
		status = http.StatusOK
	}
	writeOutcome(w, h.logger, "create conversation", status, out)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := model.ConversationFilter{
		Type:   q.Get("type"),
		Status: model.ConversationStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if raw := q.Get("event_id"); raw != "" {
		eventID, err := middleware.ParseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event id")
			return
		}
		filter.EventID = &eventID
	}

	resp, err := h.store.ListConversations(ctx, middleware.GetScope(ctx), filter, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeStoreError(w, h.logger, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	conv, err := h.store.GetConversation(r.Context(), scope, scope.ConversationID(), service.GetOptions{
		IncludeMessages: queryBool(r, "include_messages"),
		IncludeInternal: queryBool(r, "include_internal"),
		IncludeContext:  queryBool(r, "include_context"),
	})
	if err != nil {
		writeStoreError(w, h.logger, "get conversation", err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// UpdateStatusRequest is the body of PUT /conversations/{id}/status.
type UpdateStatusRequest struct {
	Status model.ConversationStatus `json:"status"`
}

// UpdateStatus handles PUT /api/v1/conversations/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.store.UpdateConversationStatus(r.Context(), scope, scope.ConversationID(), req.Status)
	if err != nil {
		writeStoreError(w, h.logger, "update conversation status", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// UpdateProgressRequest is the body of PUT /conversations/{id}/progress.
type UpdateProgressRequest struct {
	CurrentPhase         *string `json:"current_phase,omitempty"`
	CompletionPercentage *int    `json:"completion_percentage,omitempty"`
}

// UpdateProgress handles PUT /api/v1/conversations/{id}/progress
func (h *ConversationHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	var req UpdateProgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.store.UpdateConversationProgress(r.Context(), scope, scope.ConversationID(), model.ConversationProgress{
		CurrentPhase:         req.CurrentPhase,
		CompletionPercentage: req.CompletionPercentage,
	})
	if err != nil {
		writeStoreError(w, h.logger, "update conversation progress", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Summary handles GET /api/v1/conversations/{id}/summary
func (h *ConversationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	summary, err := h.store.GetConversationSummary(r.Context(), scope, scope.ConversationID())
	if err != nil {
		writeStoreError(w, h.logger, "summarize conversation", err)
		return
	}
	if summary.IsEmpty() {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
