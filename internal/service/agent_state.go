package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

// DefaultAgentID returns the instance id used for agentType when a caller
// does not name one. It is stable for the lifetime of the store.
func (s *ConversationStore) DefaultAgentID(agentType string) string {
	if id, ok := s.agentIDs.Load(agentType); ok {
		return id.(string)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	id, _ := s.agentIDs.LoadOrStore(agentType, agentType+"_"+token)
	return id.(string)
}

// AgentKey resolves the upsert identity for an agent, applying the default
// instance id when agentID is empty.
func (s *ConversationStore) AgentKey(conversationID int64, agentType, agentID string) model.AgentStateKey {
	if agentID == "" {
		agentID = s.DefaultAgentID(agentType)
	}
	return model.AgentStateKey{ConversationID: conversationID, AgentType: agentType, AgentID: agentID}
}

// SaveAgentState upserts the state of one agent instance. A new key starts
// at version 1; every later save increments the version by one.
func (s *ConversationStore) SaveAgentState(ctx context.Context, scope model.Scope, conversationID int64, params model.SaveAgentStateParams) (*model.AgentState, error) {
	if strings.TrimSpace(params.AgentType) == "" {
		return nil, fmt.Errorf("%w: agent type is required", model.ErrValidation)
	}
	if _, err := s.writable(ctx, scope, conversationID); err != nil {
		return nil, err
	}

	key := s.AgentKey(conversationID, params.AgentType, params.AgentID)
	data := params.StateData.Clone()
	if data == nil {
		data = model.Payload{}
	}
	now := s.clock()

	state, err := s.repo.UpsertAgentState(ctx, &model.AgentState{
		OrganizationID: scope.OrganizationID(),
		ConversationID: conversationID,
		UserID:         scope.UserID(),
		AgentType:      key.AgentType,
		AgentID:        key.AgentID,
		AgentVersion:   params.AgentVersion,
		SchemaVersion:  model.StateSchemaVersion,
		StateData:      data,
		CheckpointData: params.CheckpointData.Clone(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	metrics.AgentStateVersionsTotal.WithLabelValues(state.AgentType).Inc()
	s.logger.WithAgent(state.AgentType, state.AgentID).Debug("agent state saved",
		zap.String("organization_id", scope.OrganizationID()),
		zap.Int64("conversation_id", conversationID),
		zap.Int("state_version", state.StateVersion),
		zap.Bool("checkpoint", params.CheckpointData != nil),
	)
	s.publish(ctx, scope, conversationID, model.EventAgentStateSaved, model.Payload{
		"agent_type":    state.AgentType,
		"agent_id":      state.AgentID,
		"state_version": state.StateVersion,
	})
	return state, nil
}

// GetAgentState returns the stored state of one agent instance, or nil
// when the conversation is not accessible or nothing was saved yet.
func (s *ConversationStore) GetAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) (*model.AgentState, error) {
	conv, err := s.readable(ctx, scope, conversationID)
	if err != nil || conv == nil {
		return nil, err
	}
	state, err := s.repo.GetAgentState(ctx, scope.OrganizationID(), s.AgentKey(conversationID, agentType, agentID))
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return state, err
}

// GetOtherAgentState returns the state of another agent in the same
// conversation. With an empty agentID the most recently updated instance
// of agentType is returned.
func (s *ConversationStore) GetOtherAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) (*model.AgentState, error) {
	conv, err := s.readable(ctx, scope, conversationID)
	if err != nil || conv == nil {
		return nil, err
	}
	if agentID != "" {
		state, err := s.repo.GetAgentState(ctx, scope.OrganizationID(), model.AgentStateKey{
			ConversationID: conversationID,
			AgentType:      agentType,
			AgentID:        agentID,
		})
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return state, err
	}

	states, err := s.repo.ListAgentStates(ctx, scope.OrganizationID(), conversationID)
	if err != nil {
		return nil, err
	}
	var matches []model.AgentState
	for _, st := range states {
		if st.AgentType == agentType {
			matches = append(matches, st)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	return &matches[0], nil
}

// RecordInteraction counts one terminal outcome for an agent instance,
// creating a zeroed state row when none exists.
func (s *ConversationStore) RecordInteraction(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string, outcome model.Interaction) (*model.AgentState, error) {
	if strings.TrimSpace(agentType) == "" {
		return nil, fmt.Errorf("%w: agent type is required", model.ErrValidation)
	}
	if _, err := s.writable(ctx, scope, conversationID); err != nil {
		return nil, err
	}
	state, err := s.repo.RecordInteraction(ctx, scope.OrganizationID(), scope.UserID(), s.AgentKey(conversationID, agentType, agentID), outcome)
	if err != nil {
		return nil, err
	}
	metrics.RecordInteraction(agentType, outcome == model.InteractionSuccess)
	return state, nil
}
