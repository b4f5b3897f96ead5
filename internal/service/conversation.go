package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GetOptions selects the related records loaded with a conversation.
type GetOptions struct {
	IncludeMessages bool
	IncludeInternal bool
	IncludeContext  bool
}

// CreateConversation creates a conversation owned by the scope's user,
// together with its empty context and owner participant row.
func (s *ConversationStore) CreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) (*model.Conversation, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: organization and user are required", model.ErrValidation)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}

	org, user := scope.OrganizationID(), scope.UserID()
	ok, err := s.repo.UserInOrganization(ctx, org, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s in organization %s: %w", user, org, model.ErrNotFound)
	}
	if params.EventID != nil {
		ok, err := s.repo.EventInOrganization(ctx, org, *params.EventID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("event %d in organization %s: %w", *params.EventID, org, model.ErrNotFound)
		}
	}

	convType := params.Type
	if convType == "" {
		convType = model.DefaultConversationType
	}
	agentContext := params.AgentContext.Clone()
	if agentContext == nil {
		agentContext = model.Payload{}
	}

	now := s.clock()
	conv, err := s.repo.CreateConversation(ctx, store.NewConversation{
		Conversation: &model.Conversation{
			UUID:             uuid.Must(uuid.NewV7()),
			OrganizationID:   org,
			UserID:           user,
			EventID:          params.EventID,
			Title:            title,
			Description:      params.Description,
			Type:             convType,
			Status:           model.ConversationActive,
			PrimaryAgentType: params.PrimaryAgentType,
			AgentContext:     agentContext,
			CreatedAt:        now,
			UpdatedAt:        now,
			LastActivityAt:   now,
		},
		Context: model.NewConversationContext(org, 0, now),
		Owner: &model.Participant{
			OrganizationID: org,
			UserID:         user,
			Role:           model.ParticipantOwner,
			IsActive:       true,
			JoinedAt:       now,
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.WithLabelValues(org).Inc()
	s.logger.WithConversation(org, user, conv.ID).Info("conversation created",
		zap.String("type", conv.Type),
	)
	s.publish(ctx, scope, conv.ID, model.EventConversationCreated, model.Payload{
		"title": conv.Title,
		"type":  conv.Type,
	})
	return conv, nil
}

// GetOrCreateConversation returns the scope's conversation when it is
// accessible and creates a new one otherwise. The boolean reports whether a
// conversation was created.
func (s *ConversationStore) GetOrCreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) (*model.Conversation, bool, error) {
	if id := scope.ConversationID(); id > 0 {
		conv, err := s.GetConversation(ctx, scope, id, GetOptions{})
		if err != nil {
			return nil, false, err
		}
		if conv != nil {
			return conv, false, nil
		}
	}
	conv, err := s.CreateConversation(ctx, scope, params)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// GetConversation returns the conversation, or nil when it is absent or
// not accessible to the caller.
func (s *ConversationStore) GetConversation(ctx context.Context, scope model.Scope, id int64, opts GetOptions) (*model.Conversation, error) {
	conv, err := s.readable(ctx, scope, id)
	if err != nil || conv == nil {
		return nil, err
	}

	if opts.IncludeMessages {
		msgs, err := s.repo.ListMessages(ctx, scope.OrganizationID(), id, model.MessageFilter{IncludeInternal: opts.IncludeInternal})
		if err != nil {
			return nil, err
		}
		conv.Messages = msgs
	}
	if opts.IncludeContext {
		cc, err := s.repo.GetContext(ctx, scope.OrganizationID(), id)
		if err != nil {
			return nil, err
		}
		conv.Context = cc
	}
	return conv, nil
}

// ListConversations returns the conversations the caller owns or actively
// participates in, most recently active first.
func (s *ConversationStore) ListConversations(ctx context.Context, scope model.Scope, filter model.ConversationFilter, limit, offset int) (*model.ConversationList, error) {
	if scope.IsZero() {
		return &model.ConversationList{Conversations: []model.Conversation{}}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	convs, total, err := s.repo.ListConversations(ctx, scope.OrganizationID(), scope.UserID(), filter, limit, offset)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &model.ConversationList{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// UpdateConversationStatus moves a conversation through its soft lifecycle.
func (s *ConversationStore) UpdateConversationStatus(ctx context.Context, scope model.Scope, id int64, status model.ConversationStatus) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, status)
	}
	if _, err := s.writable(ctx, scope, id); err != nil {
		return nil, err
	}

	now := s.clock()
	conv, err := s.repo.UpdateConversation(ctx, scope.OrganizationID(), id, func(c *model.Conversation) error {
		c.Status = status
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, scope, id, model.EventConversationStatus, model.Payload{"status": string(status)})
	return conv, nil
}

// UpdateConversationProgress sets the current phase and completion
// percentage. Nil fields are left unchanged.
func (s *ConversationStore) UpdateConversationProgress(ctx context.Context, scope model.Scope, id int64, progress model.ConversationProgress) (*model.Conversation, error) {
	if p := progress.CompletionPercentage; p != nil && (*p < 0 || *p > 100) {
		return nil, fmt.Errorf("%w: completion percentage must be between 0 and 100", model.ErrValidation)
	}
	if _, err := s.writable(ctx, scope, id); err != nil {
		return nil, err
	}

	now := s.clock()
	return s.repo.UpdateConversation(ctx, scope.OrganizationID(), id, func(c *model.Conversation) error {
		if progress.CurrentPhase != nil {
			phase := *progress.CurrentPhase
			c.CurrentPhase = &phase
		}
		if progress.CompletionPercentage != nil {
			c.CompletionPercentage = *progress.CompletionPercentage
		}
		c.UpdatedAt = now
		return nil
	})
}
