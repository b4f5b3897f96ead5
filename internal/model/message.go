package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleAgent     Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleAgent:
		return true
	}
	return false
}

// DefaultContentType is applied when a message omits its content type.
const DefaultContentType = "text"

// Message is one entry of a conversation. Messages form a tree through
// ParentMessageID.
type Message struct {
	// Identity
	ID             int64     `json:"id"`
	UUID           uuid.UUID `json:"message_uuid"`
	OrganizationID string    `json:"organization_id"`
	ConversationID int64     `json:"conversation_id"`
	UserID         *string   `json:"user_id,omitempty"`

	// Content
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`

	// Agent attribution
	AgentType       *string `json:"agent_type,omitempty"`
	AgentID         *string `json:"agent_id,omitempty"`
	ParentMessageID *int64  `json:"parent_message_id,omitempty"`

	// Processing metrics
	LatencyMs  *int64 `json:"latency_ms,omitempty"`
	TokenCount *int   `json:"token_count,omitempty"`

	IsInternal     bool    `json:"is_internal"`
	IsError        bool    `json:"is_error"`
	RequiresAction bool    `json:"requires_action"`
	Metadata       Payload `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.UserID = clonePtr(m.UserID)
	out.AgentType = clonePtr(m.AgentType)
	out.AgentID = clonePtr(m.AgentID)
	out.ParentMessageID = clonePtr(m.ParentMessageID)
	out.LatencyMs = clonePtr(m.LatencyMs)
	out.TokenCount = clonePtr(m.TokenCount)
	out.EditedAt = clonePtr(m.EditedAt)
	out.Metadata = m.Metadata.Clone()
	return &out
}

// AddMessageParams holds input for appending a message.
type AddMessageParams struct {
	Role            Role
	Content         string
	ContentType     string
	AgentType       *string
	AgentID         *string
	ParentMessageID *int64
	Metadata        Payload
	IsInternal      bool
	IsError         bool
	RequiresAction  bool
	LatencyMs       *int64
	TokenCount      *int
}

// Author returns the user id to record on the message. Assistant and agent
// messages written by a named agent have no user author.
func (p AddMessageParams) Author(scope Scope) *string {
	if p.AgentType != nil && (p.Role == RoleAssistant || p.Role == RoleAgent) {
		return nil
	}
	userID := scope.UserID()
	return &userID
}

// MessageFilter narrows GetMessages. Limit 0 means no limit.
type MessageFilter struct {
	Limit           int
	Offset          int
	IncludeInternal bool
	Role            Role
}
