package service

import (
	"context"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// UpdateConversationContext merges u into the conversation context.
// Knowledge fields are shallow-merged; the communication style is
// replaced. The context version always increases by one.
func (s *ConversationStore) UpdateConversationContext(ctx context.Context, scope model.Scope, conversationID int64, u model.ContextUpdate) (*model.ConversationContext, error) {
	if _, err := s.writable(ctx, scope, conversationID); err != nil {
		return nil, err
	}

	now := s.clock()
	cc, err := s.repo.UpdateContext(ctx, scope.OrganizationID(), conversationID, func(c *model.ConversationContext) error {
		c.Apply(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := make([]any, 0, len(u.Knowledge))
	for f := range u.Knowledge {
		fields = append(fields, string(f))
	}
	s.publish(ctx, scope, conversationID, model.EventContextUpdated, model.Payload{
		"context_version": cc.ContextVersion,
		"fields":          fields,
	})
	return cc, nil
}

// GetConversationContext returns the conversation context, or nil when the
// conversation is not accessible.
func (s *ConversationStore) GetConversationContext(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationContext, error) {
	conv, err := s.readable(ctx, scope, conversationID)
	if err != nil || conv == nil {
		return nil, err
	}
	return s.repo.GetContext(ctx, scope.OrganizationID(), conversationID)
}

// MarkContextSummarized records that the context was just summarized.
func (s *ConversationStore) MarkContextSummarized(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationContext, error) {
	if _, err := s.writable(ctx, scope, conversationID); err != nil {
		return nil, err
	}
	now := s.clock()
	return s.repo.UpdateContext(ctx, scope.OrganizationID(), conversationID, func(c *model.ConversationContext) error {
		c.LastSummaryAt = &now
		c.UpdatedAt = now
		return nil
	})
}
