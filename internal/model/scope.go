// Package model defines the tenant-scoped records of the conversation core.
package model

import (
	"fmt"
	"strings"
)

// Scope identifies the caller of an operation: the organization (tenant),
// the authenticated user, and optionally the conversation being addressed.
// A Scope is immutable; use NewScope and WithConversation to build one.
type Scope struct {
	organizationID string
	userID         string
	conversationID int64
}

// NewScope builds a Scope. Organization and user are both required.
func NewScope(organizationID, userID string, conversationID int64) (Scope, error) {
	organizationID = strings.TrimSpace(organizationID)
	userID = strings.TrimSpace(userID)
	if organizationID == "" {
		return Scope{}, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	if userID == "" {
		return Scope{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if conversationID < 0 {
		return Scope{}, fmt.Errorf("%w: conversation id must not be negative", ErrValidation)
	}
	return Scope{
		organizationID: organizationID,
		userID:         userID,
		conversationID: conversationID,
	}, nil
}

// MustScope is NewScope for fixed inputs; it panics on invalid input.
func MustScope(organizationID, userID string, conversationID int64) Scope {
	s, err := NewScope(organizationID, userID, conversationID)
	if err != nil {
		panic(err)
	}
	return s
}

// OrganizationID returns the tenant the caller acts in.
func (s Scope) OrganizationID() string { return s.organizationID }

// UserID returns the calling user.
func (s Scope) UserID() string { return s.userID }

// ConversationID returns the addressed conversation, or 0 when none.
func (s Scope) ConversationID() int64 { return s.conversationID }

// IsZero reports whether the scope was never constructed.
func (s Scope) IsZero() bool { return s.organizationID == "" || s.userID == "" }

// WithConversation returns a copy of the scope addressing conversationID.
func (s Scope) WithConversation(conversationID int64) Scope {
	s.conversationID = conversationID
	return s
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return fmt.Sprintf("org=%s user=%s conversation=%d", s.organizationID, s.userID, s.conversationID)
}
