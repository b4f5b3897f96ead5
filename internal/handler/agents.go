package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/agent-conversations/internal/agent"
	"github.com/capitalize-ai/agent-conversations/internal/middleware"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// AgentHandler exposes agent state and agent messaging to out-of-process
// agent workers.
type AgentHandler struct {
	store       *resilience.Adapter
	coordinator string
	logger      *logger.Logger
}

// NewAgentHandler creates a new agent handler. Status and error reports are
// routed to the coordinator agent type.
func NewAgentHandler(store *resilience.Adapter, coordinator string, log *logger.Logger) *AgentHandler {
	return &AgentHandler{store: store, coordinator: coordinator, logger: log}
}

func (h *AgentHandler) agentType(w http.ResponseWriter, r *http.Request) (string, bool) {
	agentType := chi.URLParam(r, "agentType")
	if err := middleware.ValidateAgentType(agentType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return agentType, true
}

// GetState handles GET /api/v1/conversations/{id}/agents/{agentType}/state.
// Without ?agent_id the process default instance is read; with
// ?latest=true the most recently updated instance of the type is.
func (h *AgentHandler) GetState(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	agentType, ok := h.agentType(w, r)
	if !ok {
		return
	}
	agentID := r.URL.Query().Get("agent_id")

	if queryBool(r, "latest") {
		out := h.store.GetOtherAgentState(r.Context(), scope, scope.ConversationID(), agentType, agentID)
		switch {
		case out.IsStored() && out.Value == nil:
			writeError(w, http.StatusNotFound, "agent state not found")
		case out.IsDegraded() && out.Value == nil:
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
		default:
			writeOutcome(w, h.logger, "get agent state", http.StatusOK, out)
		}
		return
	}

	out := h.store.GetAgentState(r.Context(), scope, scope.ConversationID(), agentType, agentID)
	if out.IsStored() && out.Value == nil {
		writeError(w, http.StatusNotFound, "agent state not found")
		return
	}
	writeOutcome(w, h.logger, "get agent state", http.StatusOK, out)
}

// SaveStateRequest is the body of PUT .../agents/{agentType}/state.
type SaveStateRequest struct {
	AgentID        string        `json:"agent_id,omitempty"`
	AgentVersion   *string       `json:"agent_version,omitempty"`
	StateData      model.Payload `json:"state_data"`
	CheckpointData model.Payload `json:"checkpoint_data,omitempty"`
}

// SaveState handles PUT /api/v1/conversations/{id}/agents/{agentType}/state
func (h *AgentHandler) SaveState(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	agentType, ok := h.agentType(w, r)
	if !ok {
		return
	}
	var req SaveStateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out := h.store.SaveAgentState(r.Context(), scope, scope.ConversationID(), model.SaveAgentStateParams{
		AgentType:      agentType,
		AgentID:        req.AgentID,
		AgentVersion:   req.AgentVersion,
		StateData:      req.StateData,
		CheckpointData: req.CheckpointData,
	})
	writeOutcome(w, h.logger, "save agent state", http.StatusOK, out)
}

// AgentMessageRequest is the body of POST .../agents/{agentType}/messages.
// An empty TargetAgentType addresses the user.
type AgentMessageRequest struct {
	AgentID         string            `json:"agent_id,omitempty"`
	TargetAgentType string            `json:"target_agent_type,omitempty"`
	MessageType     agent.MessageType `json:"message_type,omitempty"`
	Content         string            `json:"content"`
	ContentType     string            `json:"content_type,omitempty"`
	RequiresAction  bool              `json:"requires_action,omitempty"`
	Metadata        model.Payload     `json:"metadata,omitempty"`
}

// SendMessage handles POST /api/v1/conversations/{id}/agents/{agentType}/messages
func (h *AgentHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	scope, ok := conversationScope(w, r)
	if !ok {
		return
	}
	agentType, ok := h.agentType(w, r)
	if !ok {
		return
	}
	var req AgentMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := agent.New(h.store, scope, agentType,
		agent.WithAgentID(req.AgentID),
		agent.WithCoordinator(h.coordinator),
		agent.WithLogger(h.logger),
	)
	if err != nil {
		writeStoreError(w, h.logger, "send agent message", err)
		return
	}

	var out resilience.Outcome[*model.Message]
	if req.TargetAgentType == "" {
		out = c.SendMessageToUser(r.Context(), req.Content, req.ContentType, req.RequiresAction, req.Metadata)
	} else {
		messageType := req.MessageType
		if messageType == "" {
			messageType = agent.MessageCommunication
		}
		out = c.SendInternalMessage(r.Context(), req.TargetAgentType, req.Content, messageType, req.Metadata)
	}
	writeOutcome(w, h.logger, "send agent message", http.StatusCreated, out)
}
