package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// AddParticipant grants userID access to the conversation. Adding a user
// who already has a row updates that row in place.
func (s *ConversationStore) AddParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string, role model.ParticipantRole, permissions []string) (*model.Participant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: participant user id is required", model.ErrValidation)
	}
	if role != "" && !role.Valid() {
		return nil, fmt.Errorf("%w: unknown participant role %q", model.ErrValidation, role)
	}

	conv, err := s.writable(ctx, scope, conversationID)
	if err != nil {
		return nil, err
	}
	isOwner := userID == conv.UserID
	if role == "" {
		role = model.ParticipantMember
		if isOwner {
			role = model.ParticipantOwner
		}
	}
	switch {
	case role == model.ParticipantOwner && !isOwner:
		return nil, fmt.Errorf("%w: only the conversation owner can hold the owner role", model.ErrValidation)
	case role != model.ParticipantOwner && isOwner:
		return nil, fmt.Errorf("%w: the conversation owner keeps the owner role", model.ErrValidation)
	}

	ok, err := s.repo.UserInOrganization(ctx, scope.OrganizationID(), userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s in organization %s: %w", userID, scope.OrganizationID(), model.ErrNotFound)
	}

	now := s.clock()
	p, err := s.repo.UpsertParticipant(ctx, &model.Participant{
		OrganizationID: scope.OrganizationID(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Permissions:    append([]string(nil), permissions...),
		IsActive:       true,
		JoinedAt:       now,
		LastSeenAt:     &now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithConversation(scope.OrganizationID(), scope.UserID(), conversationID).Info("participant added",
		zap.String("participant_user_id", userID),
		zap.String("role", string(role)),
	)
	s.publish(ctx, scope, conversationID, model.EventParticipantChanged, model.Payload{
		"user_id":   userID,
		"role":      string(role),
		"is_active": true,
	})
	return p, nil
}

// DeactivateParticipant revokes userID's access. The row is kept; the
// owner cannot be deactivated.
func (s *ConversationStore) DeactivateParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string) error {
	conv, err := s.writable(ctx, scope, conversationID)
	if err != nil {
		return err
	}
	if userID == conv.UserID {
		return fmt.Errorf("%w: the conversation owner cannot be removed", model.ErrValidation)
	}
	if err := s.repo.SetParticipantActive(ctx, scope.OrganizationID(), conversationID, userID, false); err != nil {
		return err
	}
	s.publish(ctx, scope, conversationID, model.EventParticipantChanged, model.Payload{
		"user_id":   userID,
		"is_active": false,
	})
	return nil
}
