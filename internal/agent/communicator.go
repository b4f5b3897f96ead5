// Package agent gives reasoning agents a conversation vocabulary: talking
// to the user, talking to other agents, recording what they learned and
// persisting their own state.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// DefaultCoordinator is the agent type that receives status updates and
// error reports.
const DefaultCoordinator = "coordinator"

// MessageType classifies an internal agent-to-agent message.
type MessageType string

const (
	MessageCommunication      MessageType = "communication"
	MessageDelegation         MessageType = "delegation"
	MessageInformationRequest MessageType = "information_request"
	MessageStatusUpdate       MessageType = "status_update"
	MessageError              MessageType = "error"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageCommunication, MessageDelegation, MessageInformationRequest, MessageStatusUpdate, MessageError:
		return true
	}
	return false
}

// Store is what the communicator needs from the resilient store.
type Store interface {
	AgentKey(conversationID int64, agentType, agentID string) model.AgentStateKey
	AddMessage(ctx context.Context, scope model.Scope, conversationID int64, params model.AddMessageParams) resilience.Outcome[*model.Message]
	SaveAgentState(ctx context.Context, scope model.Scope, conversationID int64, params model.SaveAgentStateParams) resilience.Outcome[*model.AgentState]
	GetAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) resilience.Outcome[*model.AgentState]
	GetOtherAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) resilience.Outcome[*model.AgentState]
	RecordInteraction(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string, outcome model.Interaction) (*model.AgentState, error)
	UpdateConversationContext(ctx context.Context, scope model.Scope, conversationID int64, u model.ContextUpdate) resilience.Outcome[*model.ConversationContext]
	GetConversationContext(ctx context.Context, scope model.Scope, conversationID int64) resilience.Outcome[*model.ConversationContext]
}

var _ Store = (*resilience.Adapter)(nil)

// Communicator acts for one agent instance in one conversation.
type Communicator struct {
	store       Store
	scope       model.Scope
	agentType   string
	agentID     string
	coordinator string
	logger      *logger.Logger
	now         func() time.Time
}

// Option configures a Communicator.
type Option func(*Communicator)

// WithAgentID pins the agent instance id instead of the process default.
func WithAgentID(id string) Option {
	return func(c *Communicator) { c.agentID = id }
}

// WithCoordinator sets the agent type that receives status and error
// reports.
func WithCoordinator(agentType string) Option {
	return func(c *Communicator) { c.coordinator = agentType }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Communicator) { c.logger = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Communicator) { c.now = now }
}

// New creates a Communicator for agentType in the scope's conversation.
func New(store Store, scope model.Scope, agentType string, opts ...Option) (*Communicator, error) {
	if scope.IsZero() || scope.ConversationID() <= 0 {
		return nil, fmt.Errorf("%w: agent scope needs organization, user and conversation", model.ErrValidation)
	}
	agentType = strings.TrimSpace(agentType)
	if agentType == "" {
		return nil, fmt.Errorf("%w: agent type is required", model.ErrValidation)
	}

	c := &Communicator{
		store:       store,
		scope:       scope,
		agentType:   agentType,
		coordinator: DefaultCoordinator,
		logger:      logger.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.agentID == "" {
		c.agentID = store.AgentKey(scope.ConversationID(), agentType, "").AgentID
	}
	c.logger = c.logger.
		WithConversation(scope.OrganizationID(), scope.UserID(), scope.ConversationID()).
		WithAgent(c.agentType, c.agentID)
	return c, nil
}

// AgentType returns the agent's type.
func (c *Communicator) AgentType() string { return c.agentType }

// AgentID returns the agent's instance id.
func (c *Communicator) AgentID() string { return c.agentID }

func (c *Communicator) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}

func (c *Communicator) conversationID() int64 {
	return c.scope.ConversationID()
}

// record counts one terminal outcome. Failures are logged only.
func (c *Communicator) record(ctx context.Context, outcome model.Interaction) {
	if _, err := c.store.RecordInteraction(ctx, c.scope, c.conversationID(), c.agentType, c.agentID, outcome); err != nil {
		c.logger.Warn("failed to record agent interaction", zap.Error(err))
	}
}

func interactionOf[T any](o resilience.Outcome[T]) model.Interaction {
	if o.IsStored() {
		return model.InteractionSuccess
	}
	return model.InteractionError
}

func (c *Communicator) stamp(metadata model.Payload) model.Payload {
	out := metadata.Clone()
	if out == nil {
		out = model.Payload{}
	}
	out["agent_type"] = c.agentType
	out["agent_id"] = c.agentID
	out["timestamp"] = c.timestamp()
	return out
}

// SendMessageToUser posts an assistant message and records the outcome.
func (c *Communicator) SendMessageToUser(ctx context.Context, content, contentType string, requiresAction bool, metadata model.Payload) resilience.Outcome[*model.Message] {
	out := c.sendToUser(ctx, content, contentType, requiresAction, metadata)
	c.record(ctx, interactionOf(out))
	return out
}

func (c *Communicator) sendToUser(ctx context.Context, content, contentType string, requiresAction bool, metadata model.Payload) resilience.Outcome[*model.Message] {
	agentType, agentID := c.agentType, c.agentID
	out := c.store.AddMessage(ctx, c.scope, c.conversationID(), model.AddMessageParams{
		Role:           model.RoleAssistant,
		Content:        content,
		ContentType:    contentType,
		AgentType:      &agentType,
		AgentID:        &agentID,
		Metadata:       c.stamp(metadata),
		RequiresAction: requiresAction,
	})
	if out.IsDegraded() {
		c.logger.Warn("user message not persisted", zap.String("reason", out.Reason))
	}
	return out
}

// SendInternalMessage posts an internal message addressed to another agent
// type and records the outcome.
func (c *Communicator) SendInternalMessage(ctx context.Context, targetAgentType, content string, messageType MessageType, metadata model.Payload) resilience.Outcome[*model.Message] {
	out := c.sendInternal(ctx, targetAgentType, content, messageType, metadata)
	c.record(ctx, interactionOf(out))
	return out
}

func (c *Communicator) sendInternal(ctx context.Context, targetAgentType, content string, messageType MessageType, metadata model.Payload) resilience.Outcome[*model.Message] {
	if !messageType.Valid() {
		return resilience.Failed[*model.Message](fmt.Errorf("%w: unknown message type %q", model.ErrValidation, messageType))
	}
	meta := c.stamp(metadata)
	meta["source_agent_type"] = c.agentType
	meta["source_agent_id"] = c.agentID
	meta["target_agent_type"] = targetAgentType
	meta["message_type"] = string(messageType)

	agentType, agentID := c.agentType, c.agentID
	out := c.store.AddMessage(ctx, c.scope, c.conversationID(), model.AddMessageParams{
		Role:        model.RoleAgent,
		Content:     content,
		ContentType: model.DefaultContentType,
		AgentType:   &agentType,
		AgentID:     &agentID,
		Metadata:    meta,
		IsInternal:  true,
		IsError:     messageType == MessageError,
	})
	if out.IsDegraded() {
		c.logger.Warn("internal message not persisted",
			zap.String("target_agent_type", targetAgentType),
			zap.String("reason", out.Reason),
		)
	}
	return out
}

// Task describes work handed to another agent.
type Task struct {
	Description string
	Priority    string
	Deadline    *time.Time
}

// DelegateTask asks another agent type to perform a task.
func (c *Communicator) DelegateTask(ctx context.Context, targetAgentType string, task Task) resilience.Outcome[*model.Message] {
	priority := task.Priority
	if priority == "" {
		priority = "medium"
	}
	payload := map[string]any{
		"description": task.Description,
		"priority":    priority,
	}
	if task.Deadline != nil {
		payload["deadline"] = task.Deadline.UTC().Format(time.RFC3339)
	}
	return c.SendInternalMessage(ctx, targetAgentType,
		"Task delegation: "+task.Description,
		MessageDelegation,
		model.Payload{"task": payload},
	)
}

// InformationRequest asks another agent for data.
type InformationRequest struct {
	InformationType string
	Query           model.Payload
	Urgency         string
}

// RequestInformation asks another agent type for information.
func (c *Communicator) RequestInformation(ctx context.Context, targetAgentType string, req InformationRequest) resilience.Outcome[*model.Message] {
	urgency := req.Urgency
	if urgency == "" {
		urgency = "normal"
	}
	query := map[string]any(req.Query.Clone())
	if query == nil {
		query = map[string]any{}
	}
	return c.SendInternalMessage(ctx, targetAgentType,
		"Information request: "+req.InformationType,
		MessageInformationRequest,
		model.Payload{"request": map[string]any{
			"information_type": req.InformationType,
			"query":            query,
			"urgency":          urgency,
		}},
	)
}

// StatusUpdate reports an agent's progress.
type StatusUpdate struct {
	Status    string
	Progress  int
	NextSteps []string
}

// ProvideStatusUpdate tells the user about progress and notifies the
// coordinator. One interaction is recorded, from the user message.
func (c *Communicator) ProvideStatusUpdate(ctx context.Context, update StatusUpdate) resilience.Outcome[*model.Message] {
	if update.Progress < 0 || update.Progress > 100 {
		err := fmt.Errorf("%w: progress must be between 0 and 100", model.ErrValidation)
		c.record(ctx, model.InteractionError)
		return resilience.Failed[*model.Message](err)
	}
	steps := make([]any, len(update.NextSteps))
	for i, s := range update.NextSteps {
		steps[i] = s
	}
	status := map[string]any{
		"status":     update.Status,
		"progress":   update.Progress,
		"next_steps": steps,
	}

	content := fmt.Sprintf("Status update: %s (%d%% complete)", update.Status, update.Progress)
	out := c.sendToUser(ctx, content, "status_update", false, model.Payload{"status_update": status})

	if c.coordinator != "" && c.coordinator != c.agentType {
		notice := c.sendInternal(ctx, c.coordinator, content, MessageStatusUpdate, model.Payload{"status_update": status})
		if notice.Err != nil {
			c.logger.Warn("failed to notify coordinator", zap.Error(notice.Err))
		}
	}
	c.record(ctx, interactionOf(out))
	return out
}

// TrackUserPreference records a user preference in the conversation
// context, attributed to this agent.
func (c *Communicator) TrackUserPreference(ctx context.Context, key string, value any, confidence float64) resilience.Outcome[*model.ConversationContext] {
	if strings.TrimSpace(key) == "" {
		c.record(ctx, model.InteractionError)
		return resilience.Failed[*model.ConversationContext](fmt.Errorf("%w: preference key is required", model.ErrValidation))
	}
	var u model.ContextUpdate
	u.Set(model.FieldUserPreferences, model.Knowledge{key: map[string]any{
		"value":         value,
		"confidence":    confidence,
		"discovered_by": c.agentType,
		"agent_id":      c.agentID,
		"discovered_at": c.timestamp(),
	}})
	return c.updateContext(ctx, u)
}

// TrackDecision appends a decision to the conversation's decision history.
func (c *Communicator) TrackDecision(ctx context.Context, decision, rationale string, data model.Payload) resilience.Outcome[*model.ConversationContext] {
	if strings.TrimSpace(decision) == "" {
		c.record(ctx, model.InteractionError)
		return resilience.Failed[*model.ConversationContext](fmt.Errorf("%w: decision is required", model.ErrValidation))
	}
	at := c.timestamp()
	entry := map[string]any{
		"decision":   decision,
		"rationale":  rationale,
		"decided_by": c.agentType,
		"agent_id":   c.agentID,
		"decided_at": at,
	}
	if len(data) > 0 {
		entry["data"] = map[string]any(data.Clone())
	}
	var u model.ContextUpdate
	u.Set(model.FieldDecisionHistory, model.Knowledge{at + "_" + c.agentType: entry})
	return c.updateContext(ctx, u)
}

// updateContext applies u. When storage is unavailable the outcome is
// degraded and holds u applied to the last known context.
func (c *Communicator) updateContext(ctx context.Context, u model.ContextUpdate) resilience.Outcome[*model.ConversationContext] {
	out := c.store.UpdateConversationContext(ctx, c.scope, c.conversationID(), u)
	if out.IsDegraded() {
		c.logger.Warn("context update not persisted", zap.String("reason", out.Reason))
	}
	c.record(ctx, interactionOf(out))
	return out
}

// LogError records a failed interaction and reports the error to the
// coordinator as an internal error message.
func (c *Communicator) LogError(ctx context.Context, message, errorType string, data model.Payload) resilience.Outcome[*model.Message] {
	c.logger.Error("agent error",
		zap.String("error_type", errorType),
		zap.String("message", message),
	)
	details := map[string]any{
		"error_type": errorType,
		"message":    message,
	}
	if len(data) > 0 {
		details["data"] = map[string]any(data.Clone())
	}
	out := c.sendInternal(ctx, c.coordinator, "Agent error: "+message, MessageError, model.Payload{"error": details})
	c.record(ctx, model.InteractionError)
	return out
}

// SaveState persists the agent's working state, with an optional
// checkpoint for recovery.
func (c *Communicator) SaveState(ctx context.Context, state, checkpoint model.Payload) resilience.Outcome[*model.AgentState] {
	out := c.store.SaveAgentState(ctx, c.scope, c.conversationID(), model.SaveAgentStateParams{
		AgentType:      c.agentType,
		AgentID:        c.agentID,
		StateData:      state,
		CheckpointData: checkpoint,
	})
	if out.IsDegraded() {
		c.logger.Warn("agent state not persisted", zap.String("reason", out.Reason))
	}
	return out
}

// GetAgentState returns this agent's last saved state.
func (c *Communicator) GetAgentState(ctx context.Context) resilience.Outcome[*model.AgentState] {
	return c.store.GetAgentState(ctx, c.scope, c.conversationID(), c.agentType, c.agentID)
}

// GetOtherAgentState returns another agent's state in this conversation.
// An empty agentID selects the most recently updated instance. The value is
// nil when that agent saved nothing, or when storage is unavailable and no
// earlier read is cached.
func (c *Communicator) GetOtherAgentState(ctx context.Context, agentType, agentID string) resilience.Outcome[*model.AgentState] {
	return c.store.GetOtherAgentState(ctx, c.scope, c.conversationID(), agentType, agentID)
}

// GetConversationContext returns the conversation context.
func (c *Communicator) GetConversationContext(ctx context.Context) resilience.Outcome[*model.ConversationContext] {
	return c.store.GetConversationContext(ctx, c.scope, c.conversationID())
}
