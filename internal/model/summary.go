package model

import "time"

// AgentStats summarizes the interactions of one agent instance.
type AgentStats struct {
	AgentType              string  `json:"agent_type"`
	AgentID                string  `json:"agent_id"`
	TotalInteractions      int     `json:"total_interactions"`
	SuccessfulInteractions int     `json:"successful_interactions"`
	ErrorCount             int     `json:"error_count"`
	SuccessRate            float64 `json:"success_rate"`
	StateVersion           int     `json:"state_version"`
}

// ConversationSummary aggregates activity of a conversation. The zero value
// is returned for inaccessible conversations.
type ConversationSummary struct {
	ConversationID     int64              `json:"conversation_id,omitempty"`
	Title              string             `json:"title,omitempty"`
	Status             ConversationStatus `json:"status,omitempty"`
	TotalMessages      int                `json:"total_messages"`
	MessagesByRole     map[Role]int       `json:"messages_by_role,omitempty"`
	ActiveParticipants int                `json:"active_participants"`
	Agents             []AgentStats       `json:"agents,omitempty"`
	LastActivityAt     *time.Time         `json:"last_activity_at,omitempty"`
}

// IsEmpty reports whether s describes no conversation.
func (s *ConversationSummary) IsEmpty() bool {
	return s == nil || s.ConversationID == 0
}
