package model

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the soft lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationPaused    ConversationStatus = "paused"
	ConversationCompleted ConversationStatus = "completed"
	ConversationArchived  ConversationStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationPaused, ConversationCompleted, ConversationArchived:
		return true
	}
	return false
}

// DefaultConversationType is used when a caller does not tag a conversation.
const DefaultConversationType = "event_planning"

// Conversation is the unit of access control. OrganizationID never changes
// after creation.
type Conversation struct {
	ID                   int64              `json:"id"`
	UUID                 uuid.UUID          `json:"conversation_uuid"`
	OrganizationID       string             `json:"organization_id"`
	UserID               string             `json:"user_id"`
	EventID              *int64             `json:"event_id,omitempty"`
	Title                string             `json:"title"`
	Description          *string            `json:"description,omitempty"`
	Type                 string             `json:"conversation_type"`
	Status               ConversationStatus `json:"status"`
	PrimaryAgentType     *string            `json:"primary_agent_type,omitempty"`
	AgentContext         Payload            `json:"agent_context,omitempty"`
	CurrentPhase         *string            `json:"current_phase,omitempty"`
	CompletionPercentage int                `json:"completion_percentage"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	LastActivityAt       time.Time          `json:"last_activity_at"`

	// Populated by GetConversation on request.
	Messages []Message           `json:"messages,omitempty"`
	Context  *ConversationContext `json:"context,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.EventID = clonePtr(c.EventID)
	out.Description = clonePtr(c.Description)
	out.PrimaryAgentType = clonePtr(c.PrimaryAgentType)
	out.CurrentPhase = clonePtr(c.CurrentPhase)
	out.AgentContext = c.AgentContext.Clone()
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = *c.Messages[i].Clone()
		}
	}
	out.Context = c.Context.Clone()
	return &out
}

// CreateConversationParams holds input for creating a conversation.
type CreateConversationParams struct {
	Title            string
	Type             string
	EventID          *int64
	Description      *string
	PrimaryAgentType *string
	AgentContext     Payload
}

// ConversationFilter narrows ListConversations. Zero fields match anything.
type ConversationFilter struct {
	Type    string
	Status  ConversationStatus
	EventID *int64
}

// ConversationList is one page of conversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// ConversationProgress updates phase and completion of a conversation.
// Nil fields are left unchanged.
type ConversationProgress struct {
	CurrentPhase         *string
	CompletionPercentage *int
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
