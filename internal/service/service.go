// Package service implements the tenant-scoped conversation store: the
// operations that read and write conversations, messages, participants,
// agent state and conversation context under the access rules.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/access"
	"github.com/capitalize-ai/agent-conversations/internal/extract"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// EventPublisher receives a notification after every persisted change.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
}

// ContextExtractor turns user message text into structured knowledge.
type ContextExtractor interface {
	Extract(ctx context.Context, text string) *extract.Extraction
}

// ConversationStore is the tenant-scoped conversation service.
type ConversationStore struct {
	repo      store.Repository
	access    *access.Controller
	extractor ContextExtractor
	publisher EventPublisher
	logger    *logger.Logger
	now       func() time.Time

	// agentIDs holds the default instance id per agent type.
	agentIDs sync.Map
}

// Option configures a ConversationStore.
type Option func(*ConversationStore)

// WithExtractor enables context extraction for user messages.
func WithExtractor(e ContextExtractor) Option {
	return func(s *ConversationStore) { s.extractor = e }
}

// WithPublisher enables change notifications.
func WithPublisher(p EventPublisher) Option {
	return func(s *ConversationStore) { s.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ConversationStore) { s.now = now }
}

// New creates a ConversationStore backed by repo.
func New(repo store.Repository, log *logger.Logger, opts ...Option) *ConversationStore {
	s := &ConversationStore{
		repo:   repo,
		access: access.NewController(repo),
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConversationStore) clock() time.Time {
	return s.now().UTC()
}

// Ping checks the backing repository.
func (s *ConversationStore) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// readable loads a conversation for a read path. It returns nil without
// error when the conversation is absent, belongs to another organization
// or is not accessible to the caller, and touches the caller's participant
// row on success.
func (s *ConversationStore) readable(ctx context.Context, scope model.Scope, id int64) (*model.Conversation, error) {
	if scope.IsZero() || id <= 0 {
		return nil, nil
	}
	conv, err := s.repo.GetConversation(ctx, scope.OrganizationID(), id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.access.CanAccess(ctx, scope, conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if err := s.repo.TouchParticipant(ctx, scope.OrganizationID(), id, scope.UserID(), s.clock()); err != nil && !errors.Is(err, model.ErrNotFound) {
		s.logger.Debug("touch participant failed",
			zap.String("organization_id", scope.OrganizationID()),
			zap.Int64("conversation_id", id),
			zap.Error(err),
		)
	}
	return conv, nil
}

// writable loads a conversation for a write path. Absent or cross-tenant
// conversations yield ErrNotFound; visible but inaccessible ones yield
// ErrAccessDenied.
func (s *ConversationStore) writable(ctx context.Context, scope model.Scope, id int64) (*model.Conversation, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: organization and user are required", model.ErrValidation)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: conversation id is required", model.ErrValidation)
	}
	conv, err := s.repo.GetConversation(ctx, scope.OrganizationID(), id)
	if err != nil {
		return nil, fmt.Errorf("conversation %d: %w", id, err)
	}
	ok, err := s.access.CanAccess(ctx, scope, conv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", id, model.ErrAccessDenied)
	}
	return conv, nil
}

// publish sends a change notification. Failures are logged only.
func (s *ConversationStore) publish(ctx context.Context, scope model.Scope, conversationID int64, kind model.EventKind, payload model.Payload) {
	if s.publisher == nil {
		return
	}
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: scope.OrganizationID(),
		ConversationID: conversationID,
		Kind:           kind,
		ActorUserID:    scope.UserID(),
		Payload:        payload,
		CreatedAt:      s.clock(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("organization_id", scope.OrganizationID()),
			zap.Int64("conversation_id", conversationID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
