package model

import "time"

// StateSchemaVersion tags the layout of AgentState payloads written by
// this package.
const StateSchemaVersion = 1

// AgentStateKey is the upsert identity of an agent state record.
type AgentStateKey struct {
	ConversationID int64  `json:"conversation_id"`
	AgentType      string `json:"agent_type"`
	AgentID        string `json:"agent_id"`
}

// AgentState is the versioned working memory of one agent instance within
// one conversation. It is unique per AgentStateKey.
type AgentState struct {
	ID             int64   `json:"id"`
	OrganizationID string  `json:"organization_id"`
	ConversationID int64   `json:"conversation_id"`
	UserID         string  `json:"user_id"`
	AgentType      string  `json:"agent_type"`
	AgentID        string  `json:"agent_id"`
	AgentVersion   *string `json:"agent_version,omitempty"`

	SchemaVersion  int     `json:"schema_version"`
	StateData      Payload `json:"state_data"`
	CheckpointData Payload `json:"checkpoint_data,omitempty"`
	StateVersion   int     `json:"state_version"`
	IsActive       bool    `json:"is_active"`

	TotalInteractions      int `json:"total_interactions"`
	SuccessfulInteractions int `json:"successful_interactions"`
	ErrorCount             int `json:"error_count"`

	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastCheckpointAt *time.Time `json:"last_checkpoint_at,omitempty"`
}

// Key returns the upsert identity of s.
func (s *AgentState) Key() AgentStateKey {
	return AgentStateKey{ConversationID: s.ConversationID, AgentType: s.AgentType, AgentID: s.AgentID}
}

// Clone returns a deep copy of s.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s
	out.AgentVersion = clonePtr(s.AgentVersion)
	out.StateData = s.StateData.Clone()
	out.CheckpointData = s.CheckpointData.Clone()
	out.LastCheckpointAt = clonePtr(s.LastCheckpointAt)
	return &out
}

// SaveAgentStateParams holds input for the agent state upsert.
// An empty AgentID selects the process-local default instance of AgentType.
type SaveAgentStateParams struct {
	AgentType      string
	AgentID        string
	AgentVersion   *string
	StateData      Payload
	CheckpointData Payload
}

// Interaction is the terminal outcome of one agent communication.
type Interaction int

const (
	InteractionSuccess Interaction = iota
	InteractionError
)
