package model

import "time"

// ParticipantRole is the role a user holds in a conversation.
type ParticipantRole string

const (
	ParticipantOwner        ParticipantRole = "owner"
	ParticipantAdmin        ParticipantRole = "admin"
	ParticipantMember       ParticipantRole = "participant"
	ParticipantObserver     ParticipantRole = "observer"
	ParticipantCollaborator ParticipantRole = "collaborator"
)

// Valid reports whether r is a known role.
func (r ParticipantRole) Valid() bool {
	switch r {
	case ParticipantOwner, ParticipantAdmin, ParticipantMember, ParticipantObserver, ParticipantCollaborator:
		return true
	}
	return false
}

// Participant grants a user access to a conversation. There is at most one
// row per (conversation, user).
type Participant struct {
	ID                      int64           `json:"id"`
	OrganizationID          string          `json:"organization_id"`
	ConversationID          int64           `json:"conversation_id"`
	UserID                  string          `json:"user_id"`
	Role                    ParticipantRole `json:"role"`
	Permissions             []string        `json:"permissions,omitempty"`
	IsActive                bool            `json:"is_active"`
	JoinedAt                time.Time       `json:"joined_at"`
	LastSeenAt              *time.Time      `json:"last_seen_at,omitempty"`
	NotificationPreferences Payload         `json:"notification_preferences,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	out := *p
	out.Permissions = append([]string(nil), p.Permissions...)
	out.LastSeenAt = clonePtr(p.LastSeenAt)
	out.NotificationPreferences = p.NotificationPreferences.Clone()
	return &out
}
