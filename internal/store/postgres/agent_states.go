package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

const agentStateColumns = `
    id, organization_id, conversation_id, user_id, agent_type, agent_id, agent_version,
    schema_version, state_data, checkpoint_data, state_version, is_active,
    total_interactions, successful_interactions, error_count,
    created_at, updated_at, last_checkpoint_at`

func scanAgentState(row pgx.Row) (*model.AgentState, error) {
	var (
		st         model.AgentState
		state      []byte
		checkpoint []byte
	)
	err := row.Scan(
		&st.ID,
		&st.OrganizationID,
		&st.ConversationID,
		&st.UserID,
		&st.AgentType,
		&st.AgentID,
		&st.AgentVersion,
		&st.SchemaVersion,
		&state,
		&checkpoint,
		&st.StateVersion,
		&st.IsActive,
		&st.TotalInteractions,
		&st.SuccessfulInteractions,
		&st.ErrorCount,
		&st.CreatedAt,
		&st.UpdatedAt,
		&st.LastCheckpointAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(state, &st.StateData); err != nil {
		return nil, fmt.Errorf("decode state_data: %w", err)
	}
	if err := decodeJSON(checkpoint, &st.CheckpointData); err != nil {
		return nil, fmt.Errorf("decode checkpoint_data: %w", err)
	}
	return &st, nil
}

// GetAgentState implements store.Repository.
func (s *Store) GetAgentState(ctx context.Context, organizationID string, key model.AgentStateKey) (*model.AgentState, error) {
	st, err := scanAgentState(s.db.QueryRow(ctx, `
SELECT`+agentStateColumns+`
FROM agent_states
WHERE organization_id = $1 AND conversation_id = $2 AND agent_type = $3 AND agent_id = $4`,
		organizationID, key.ConversationID, key.AgentType, key.AgentID,
	))
	if err != nil {
		return nil, s.classify("get agent state", err)
	}
	return st, nil
}

// UpsertAgentState implements store.Repository. The version increment
// happens inside the ON CONFLICT clause so concurrent updaters of the same
// key never observe the same version.
func (s *Store) UpsertAgentState(ctx context.Context, state *model.AgentState) (*model.AgentState, error) {
	data := state.StateData
	if data == nil {
		data = model.Payload{}
	}
	stateJSON, err := jsonParam(data)
	if err != nil {
		return nil, err
	}
	checkpointJSON, err := jsonParam(state.CheckpointData)
	if err != nil {
		return nil, err
	}

	st, err := scanAgentState(s.db.QueryRow(ctx, `
INSERT INTO agent_states (
    organization_id, conversation_id, user_id, agent_type, agent_id, agent_version,
    schema_version, state_data, checkpoint_data, state_version, is_active,
    created_at, updated_at, last_checkpoint_at
)
SELECT $1::TEXT, c.id, $3::TEXT, $4::TEXT, $5::TEXT, $6::TEXT, $7::INT, $8::JSONB, $9::JSONB, 1, TRUE,
       $10::TIMESTAMPTZ, $10::TIMESTAMPTZ,
       CASE WHEN $9::JSONB IS NULL THEN NULL ELSE $10::TIMESTAMPTZ END
FROM conversations c
WHERE c.id = $2 AND c.organization_id = $1
ON CONFLICT (conversation_id, agent_type, agent_id) DO UPDATE SET
    state_data = EXCLUDED.state_data,
    schema_version = EXCLUDED.schema_version,
    agent_version = COALESCE(EXCLUDED.agent_version, agent_states.agent_version),
    checkpoint_data = COALESCE(EXCLUDED.checkpoint_data, agent_states.checkpoint_data),
    last_checkpoint_at = CASE WHEN EXCLUDED.checkpoint_data IS NULL
                              THEN agent_states.last_checkpoint_at
                              ELSE EXCLUDED.updated_at END,
    state_version = agent_states.state_version + 1,
    is_active = TRUE,
    updated_at = EXCLUDED.updated_at
WHERE agent_states.organization_id = EXCLUDED.organization_id
RETURNING`+agentStateColumns,
		state.OrganizationID,
		state.ConversationID,
		state.UserID,
		state.AgentType,
		state.AgentID,
		state.AgentVersion,
		state.SchemaVersion,
		stateJSON,
		checkpointJSON,
		state.UpdatedAt,
	))
	if err != nil {
		return nil, s.classify("upsert agent state", err)
	}
	return st, nil
}

// RecordInteraction implements store.Repository.
func (s *Store) RecordInteraction(ctx context.Context, organizationID, userID string, key model.AgentStateKey, outcome model.Interaction) (*model.AgentState, error) {
	success, failure := 0, 0
	if outcome == model.InteractionSuccess {
		success = 1
	} else {
		failure = 1
	}

	st, err := scanAgentState(s.db.QueryRow(ctx, `
INSERT INTO agent_states (
    organization_id, conversation_id, user_id, agent_type, agent_id,
    schema_version, state_data, state_version, is_active,
    total_interactions, successful_interactions, error_count, created_at, updated_at
)
SELECT $1::TEXT, c.id, $3::TEXT, $4::TEXT, $5::TEXT, $6::INT, '{}'::JSONB, 1, TRUE, 1, $7::INT, $8::INT, now(), now()
FROM conversations c
WHERE c.id = $2 AND c.organization_id = $1
ON CONFLICT (conversation_id, agent_type, agent_id) DO UPDATE SET
    total_interactions = agent_states.total_interactions + 1,
    successful_interactions = agent_states.successful_interactions + EXCLUDED.successful_interactions,
    error_count = agent_states.error_count + EXCLUDED.error_count,
    updated_at = EXCLUDED.updated_at
WHERE agent_states.organization_id = EXCLUDED.organization_id
RETURNING`+agentStateColumns,
		organizationID,
		key.ConversationID,
		userID,
		key.AgentType,
		key.AgentID,
		model.StateSchemaVersion,
		success,
		failure,
	))
	if err != nil {
		return nil, s.classify("record interaction", err)
	}
	return st, nil
}

// ListAgentStates implements store.Repository.
func (s *Store) ListAgentStates(ctx context.Context, organizationID string, conversationID int64) ([]model.AgentState, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+agentStateColumns+`
FROM agent_states
WHERE organization_id = $1 AND conversation_id = $2
ORDER BY id`,
		organizationID, conversationID,
	)
	if err != nil {
		return nil, s.classify("list agent states", err)
	}
	defer rows.Close()

	states := []model.AgentState{}
	for rows.Next() {
		st, err := scanAgentState(rows)
		if err != nil {
			return nil, s.classify("scan agent state", err)
		}
		states = append(states, *st)
	}
	return states, s.classify("list agent states", rows.Err())
}
