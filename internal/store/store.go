// Package store defines the persistence boundary of the conversation core.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// ErrNotFound is returned when a record does not exist within the
// requested organization. It wraps model.ErrNotFound.
var ErrNotFound = fmt.Errorf("record %w", model.ErrNotFound)

// Transient wraps err so that it matches model.ErrTransientStorage.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrTransientStorage, err)
}

// NewConversation is the bundle created atomically by CreateConversation.
type NewConversation struct {
	Conversation *model.Conversation
	Context      *model.ConversationContext
	Owner        *model.Participant
}

// Repository is the durable store for the five conversation entities.
// Every method is scoped by organization id; implementations must never
// return a row whose organization differs from the one requested.
//
// Implementations report retryable failures by wrapping
// model.ErrTransientStorage and absent rows with ErrNotFound.
type Repository interface {
	// Directory lookups owned by external collaborators.
	UserInOrganization(ctx context.Context, organizationID, userID string) (bool, error)
	EventInOrganization(ctx context.Context, organizationID string, eventID int64) (bool, error)

	// Conversations
	CreateConversation(ctx context.Context, nc NewConversation) (*model.Conversation, error)
	GetConversation(ctx context.Context, organizationID string, id int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, organizationID, userID string, filter model.ConversationFilter, limit, offset int) ([]model.Conversation, int, error)
	UpdateConversation(ctx context.Context, organizationID string, id int64, fn func(*model.Conversation) error) (*model.Conversation, error)

	// Messages. InsertMessage also bumps the parent conversation's
	// updated_at and last_activity_at in the same write.
	InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	ListMessages(ctx context.Context, organizationID string, conversationID int64, filter model.MessageFilter) ([]model.Message, error)
	CountMessagesByRole(ctx context.Context, organizationID string, conversationID int64) (map[model.Role]int, error)

	// Participants
	GetParticipant(ctx context.Context, organizationID string, conversationID int64, userID string) (*model.Participant, error)
	UpsertParticipant(ctx context.Context, p *model.Participant) (*model.Participant, error)
	SetParticipantActive(ctx context.Context, organizationID string, conversationID int64, userID string, active bool) error
	TouchParticipant(ctx context.Context, organizationID string, conversationID int64, userID string, at time.Time) error
	CountActiveParticipants(ctx context.Context, organizationID string, conversationID int64) (int, error)

	// Agent state. UpsertAgentState must perform the version increment as
	// an atomic read-modify-write.
	GetAgentState(ctx context.Context, organizationID string, key model.AgentStateKey) (*model.AgentState, error)
	UpsertAgentState(ctx context.Context, state *model.AgentState) (*model.AgentState, error)
	RecordInteraction(ctx context.Context, organizationID, userID string, key model.AgentStateKey, outcome model.Interaction) (*model.AgentState, error)
	ListAgentStates(ctx context.Context, organizationID string, conversationID int64) ([]model.AgentState, error)

	// Conversation context
	GetContext(ctx context.Context, organizationID string, conversationID int64) (*model.ConversationContext, error)
	UpdateContext(ctx context.Context, organizationID string, conversationID int64, fn func(*model.ConversationContext) error) (*model.ConversationContext, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
