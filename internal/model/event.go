package model

import (
	"time"
)

// EventKind is the type of a conversation change notification.
type EventKind string

const (
	EventMessageAdded        EventKind = "message"
	EventAgentStateSaved     EventKind = "agent_state"
	EventContextUpdated      EventKind = "context"
	EventParticipantChanged  EventKind = "participant"
	EventConversationCreated EventKind = "created"
	EventConversationStatus  EventKind = "status"
)

// ConversationEvent notifies downstream consumers that a conversation changed.
type ConversationEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ConversationID int64     `json:"conversation_id"`
	Kind           EventKind `json:"kind"`
	ActorUserID    string    `json:"actor_user_id,omitempty"`
	Payload        Payload   `json:"payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
