package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

// AddMessage appends a message to an accessible conversation. User
// messages that are not internal also feed the conversation context.
func (s *ConversationStore) AddMessage(ctx context.Context, scope model.Scope, conversationID int64, params model.AddMessageParams) (*model.Message, error) {
	if !params.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrValidation, params.Role)
	}
	if strings.TrimSpace(params.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", model.ErrValidation)
	}
	if _, err := s.writable(ctx, scope, conversationID); err != nil {
		return nil, err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = model.DefaultContentType
	}
	metadata := params.Metadata.Clone()
	if metadata == nil {
		metadata = model.Payload{}
	}

	msg, err := s.repo.InsertMessage(ctx, &model.Message{
		UUID:            uuid.Must(uuid.NewV7()),
		OrganizationID:  scope.OrganizationID(),
		ConversationID:  conversationID,
		UserID:          params.Author(scope),
		Role:            params.Role,
		Content:         params.Content,
		ContentType:     contentType,
		AgentType:       params.AgentType,
		AgentID:         params.AgentID,
		ParentMessageID: params.ParentMessageID,
		LatencyMs:       params.LatencyMs,
		TokenCount:      params.TokenCount,
		IsInternal:      params.IsInternal,
		IsError:         params.IsError,
		RequiresAction:  params.RequiresAction,
		Metadata:        metadata,
		CreatedAt:       s.clock(),
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(scope.OrganizationID(), string(msg.Role)).Inc()
	s.publish(ctx, scope, conversationID, model.EventMessageAdded, model.Payload{
		"message_id":  msg.ID,
		"role":        string(msg.Role),
		"is_internal": msg.IsInternal,
	})

	if msg.Role == model.RoleUser && !msg.IsInternal {
		s.extractContext(ctx, scope, conversationID, msg.Content)
	}
	return msg, nil
}

// extractContext merges knowledge found in a user message into the
// conversation context. Failures never reach the caller.
func (s *ConversationStore) extractContext(ctx context.Context, scope model.Scope, conversationID int64, text string) {
	if s.extractor == nil {
		return
	}
	ex := s.extractor.Extract(ctx, text)
	if ex == nil {
		return
	}
	now := s.clock()
	update := ex.ContextUpdate(now)
	if update.IsEmpty() {
		return
	}

	log := s.logger.WithConversation(scope.OrganizationID(), scope.UserID(), conversationID)
	cc, err := s.repo.UpdateContext(ctx, scope.OrganizationID(), conversationID, func(c *model.ConversationContext) error {
		c.Apply(update, now)
		return nil
	})
	if err != nil {
		log.Warn("failed to merge extracted context", zap.Error(err))
		return
	}
	log.Debug("context updated from message",
		zap.String("stage", string(ex.Stage)),
		zap.Int("context_version", cc.ContextVersion),
	)
	s.publish(ctx, scope, conversationID, model.EventContextUpdated, model.Payload{
		"context_version": cc.ContextVersion,
		"source":          "message_extraction",
	})
}

// GetMessages returns the conversation's messages in ascending time order,
// or an empty slice when the conversation is not accessible.
func (s *ConversationStore) GetMessages(ctx context.Context, scope model.Scope, conversationID int64, filter model.MessageFilter) ([]model.Message, error) {
	conv, err := s.readable(ctx, scope, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []model.Message{}, nil
	}
	msgs, err := s.repo.ListMessages(ctx, scope.OrganizationID(), conversationID, filter)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}
