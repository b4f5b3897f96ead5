package service

import (
	"context"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// GetConversationSummary aggregates message, participant and agent
// statistics. An inaccessible conversation yields an empty summary.
func (s *ConversationStore) GetConversationSummary(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationSummary, error) {
	conv, err := s.readable(ctx, scope, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &model.ConversationSummary{}, nil
	}
	org := scope.OrganizationID()

	byRole, err := s.repo.CountMessagesByRole(ctx, org, conversationID)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountActiveParticipants(ctx, org, conversationID)
	if err != nil {
		return nil, err
	}
	states, err := s.repo.ListAgentStates(ctx, org, conversationID)
	if err != nil {
		return nil, err
	}

	summary := &model.ConversationSummary{
		ConversationID:     conv.ID,
		Title:              conv.Title,
		Status:             conv.Status,
		MessagesByRole:     byRole,
		ActiveParticipants: active,
		Agents:             make([]model.AgentStats, 0, len(states)),
	}
	lastActivity := conv.LastActivityAt
	summary.LastActivityAt = &lastActivity
	for _, n := range byRole {
		summary.TotalMessages += n
	}
	for _, st := range states {
		stats := model.AgentStats{
			AgentType:              st.AgentType,
			AgentID:                st.AgentID,
			TotalInteractions:      st.TotalInteractions,
			SuccessfulInteractions: st.SuccessfulInteractions,
			ErrorCount:             st.ErrorCount,
			StateVersion:           st.StateVersion,
		}
		if st.TotalInteractions > 0 {
			stats.SuccessRate = float64(st.SuccessfulInteractions) / float64(st.TotalInteractions)
		}
		summary.Agents = append(summary.Agents, stats)
	}
	return summary, nil
}
