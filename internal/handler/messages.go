package handler

import (
	"net/http"

	"github.com/capitalize-ai/agent-conversations/internal/middleware"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	store  *resilience.Adapter
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(store *resilience.Adapter, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		store:  store,
		logger: log,
	}
}

// MessagesResponse is one page of messages.
type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
	HasMore  bool            `json:"has_more"`
}

// List handles GET /api/v1/conversations/{id}/messages. Messages of a
// conversation the caller cannot see come back as an empty page.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit == 0 || limit > 200 {
		limit = 50
	}
	filter := model.MessageFilter{
		// One extra row tells us whether another page exists.
		Limit:           limit + 1,
		Offset:          queryInt(r, "offset", 0),
		IncludeInternal: queryBool(r, "include_internal"),
		Role:            model.Role(r.URL.Query().Get("role")),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	msgs, err := h.store.GetMessages(r.Context(), scope, scope.ConversationID(), filter)
	if err != nil {
		writeStoreError(w, h.logger, "list messages", err)
		return
	}

	resp := MessagesResponse{Messages: msgs}
	if len(msgs) > limit {
		resp.Messages = msgs[:limit]
		resp.HasMore = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Role            model.Role    `json:"role,omitempty"`
	Content         string        `json:"content"`
	ContentType     string        `json:"content_type,omitempty"`
	ParentMessageID *int64        `json:"parent_message_id,omitempty"`
	Metadata        model.Payload `json:"metadata,omitempty"`
}

// Send handles POST /api/v1/conversations/{id}/messages. A message that
// could not be persisted is answered with 202 and DegradedHeader.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if err := middleware.ValidateRole(req.Role); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.store.AddMessage(r.Context(), scope, scope.ConversationID(), model.AddMessageParams{
		Role:            req.Role,
		Content:         req.Content,
		ContentType:     req.ContentType,
		ParentMessageID: req.ParentMessageID,
		Metadata:        req.Metadata,
	})
	writeOutcome(w, h.logger, "send message", http.StatusCreated, out)
}
