// Package access decides whether a caller may see or change a conversation.
package access

import (
	"context"
	"errors"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// ParticipantLookup is the slice of the repository the controller needs.
type ParticipantLookup interface {
	GetParticipant(ctx context.Context, organizationID string, conversationID int64, userID string) (*model.Participant, error)
}

// Controller applies the conversation access rule: the caller must be in
// the conversation's organization and must either own it or hold an
// active participant row.
type Controller struct {
	participants ParticipantLookup
}

// NewController creates a Controller.
func NewController(participants ParticipantLookup) *Controller {
	return &Controller{participants: participants}
}

// CanAccess reports whether scope may access conv. Lookup failures other
// than a missing participant row are returned so transient storage errors
// are not mistaken for a denial.
func (c *Controller) CanAccess(ctx context.Context, scope model.Scope, conv *model.Conversation) (bool, error) {
	if conv == nil || scope.IsZero() {
		return false, nil
	}
	if conv.OrganizationID != scope.OrganizationID() {
		return false, nil
	}
	if conv.UserID == scope.UserID() {
		return true, nil
	}

	p, err := c.participants.GetParticipant(ctx, scope.OrganizationID(), conv.ID, scope.UserID())
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsActive && p.OrganizationID == conv.OrganizationID, nil
}

// IsOwner reports whether scope is the conversation's owning user.
func IsOwner(scope model.Scope, conv *model.Conversation) bool {
	return conv != nil &&
		conv.OrganizationID == scope.OrganizationID() &&
		conv.UserID == scope.UserID()
}
