// Package memory provides an in-process Repository used in development
// mode and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
)

// Compile-time check to ensure Store implements store.Repository.
var _ store.Repository = (*Store)(nil)

type participantKey struct {
	conversationID int64
	userID         string
}

type eventKey struct {
	organizationID string
	eventID        int64
}

// Store keeps every entity in maps guarded by one RWMutex. All reads
// return deep copies so callers cannot mutate stored rows.
type Store struct {
	mu sync.RWMutex

	openDirectory bool
	users         map[string]map[string]bool // organization -> user set
	events        map[eventKey]bool

	conversations map[int64]*model.Conversation
	contexts      map[int64]*model.ConversationContext
	messages      map[int64][]*model.Message
	participants  map[participantKey]*model.Participant
	agentStates   map[model.AgentStateKey]*model.AgentState

	nextID int64
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithOpenDirectory makes every user and event a member of every
// organization. Used when no directory service is available.
func WithOpenDirectory() Option {
	return func(s *Store) { s.openDirectory = true }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		users:         make(map[string]map[string]bool),
		events:        make(map[eventKey]bool),
		conversations: make(map[int64]*model.Conversation),
		contexts:      make(map[int64]*model.ConversationContext),
		messages:      make(map[int64][]*model.Message),
		participants:  make(map[participantKey]*model.Participant),
		agentStates:   make(map[model.AgentStateKey]*model.AgentState),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers userID as a member of organizationID.
func (s *Store) AddUser(organizationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[organizationID] == nil {
		s.users[organizationID] = make(map[string]bool)
	}
	s.users[organizationID][userID] = true
}

// AddEvent registers eventID as belonging to organizationID.
func (s *Store) AddEvent(organizationID string, eventID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventKey{organizationID, eventID}] = true
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Ping implements store.Repository.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// UserInOrganization implements store.Repository.
func (s *Store) UserInOrganization(ctx context.Context, organizationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.openDirectory {
		return true, nil
	}
	return s.users[organizationID][userID], nil
}

// EventInOrganization implements store.Repository.
func (s *Store) EventInOrganization(ctx context.Context, organizationID string, eventID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.openDirectory {
		return true, nil
	}
	return s.events[eventKey{organizationID, eventID}], nil
}

// CreateConversation implements store.Repository.
func (s *Store) CreateConversation(ctx context.Context, nc store.NewConversation) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := nc.Conversation.Clone()
	conv.ID = s.id()
	conv.Messages = nil
	conv.Context = nil
	s.conversations[conv.ID] = conv

	cc := nc.Context.Clone()
	cc.ID = s.id()
	cc.ConversationID = conv.ID
	s.contexts[conv.ID] = cc

	owner := nc.Owner.Clone()
	owner.ID = s.id()
	owner.ConversationID = conv.ID
	s.participants[participantKey{conv.ID, owner.UserID}] = owner

	return conv.Clone(), nil
}

func (s *Store) conversation(organizationID string, id int64) (*model.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok || conv.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// GetConversation implements store.Repository.
func (s *Store) GetConversation(ctx context.Context, organizationID string, id int64) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.conversation(organizationID, id)
	if err != nil {
		return nil, err
	}
	return conv.Clone(), nil
}

// ListConversations implements store.Repository.
func (s *Store) ListConversations(ctx context.Context, organizationID, userID string, filter model.ConversationFilter, limit, offset int) ([]model.Conversation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.OrganizationID != organizationID {
			continue
		}
		if conv.UserID != userID {
			p, ok := s.participants[participantKey{conv.ID, userID}]
			if !ok || !p.IsActive {
				continue
			}
		}
		if filter.Type != "" && conv.Type != filter.Type {
			continue
		}
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		if filter.EventID != nil && (conv.EventID == nil || *conv.EventID != *filter.EventID) {
			continue
		}
		convs = append(convs, *conv.Clone())
	}

	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].LastActivityAt.Equal(convs[j].LastActivityAt) {
			return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
		}
		return convs[i].ID > convs[j].ID
	})

	return page(convs, limit, offset), len(convs), nil
}

// UpdateConversation implements store.Repository.
func (s *Store) UpdateConversation(ctx context.Context, organizationID string, id int64, fn func(*model.Conversation) error) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.conversation(organizationID, id)
	if err != nil {
		return nil, err
	}
	updated := conv.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	// Organization and identity are immutable.
	updated.ID = conv.ID
	updated.UUID = conv.UUID
	updated.OrganizationID = conv.OrganizationID
	updated.UserID = conv.UserID
	s.conversations[id] = updated
	return updated.Clone(), nil
}

// InsertMessage implements store.Repository.
func (s *Store) InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.conversation(msg.OrganizationID, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	stored := msg.Clone()
	stored.ID = s.id()
	s.messages[conv.ID] = append(s.messages[conv.ID], stored)
	conv.UpdatedAt = stored.CreatedAt
	conv.LastActivityAt = stored.CreatedAt
	return stored.Clone(), nil
}

// ListMessages implements store.Repository.
func (s *Store) ListMessages(ctx context.Context, organizationID string, conversationID int64, filter model.MessageFilter) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.conversation(organizationID, conversationID); err != nil {
		return nil, err
	}

	var out []model.Message
	for _, m := range s.messages[conversationID] {
		if !filter.IncludeInternal && m.IsInternal {
			continue
		}
		if filter.Role != "" && m.Role != filter.Role {
			continue
		}
		out = append(out, *m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// CountMessagesByRole implements store.Repository.
func (s *Store) CountMessagesByRole(ctx context.Context, organizationID string, conversationID int64) (map[model.Role]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.conversation(organizationID, conversationID); err != nil {
		return nil, err
	}
	counts := make(map[model.Role]int)
	for _, m := range s.messages[conversationID] {
		counts[m.Role]++
	}
	return counts, nil
}

// GetParticipant implements store.Repository.
func (s *Store) GetParticipant(ctx context.Context, organizationID string, conversationID int64, userID string) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{conversationID, userID}]
	if !ok || p.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

// UpsertParticipant implements store.Repository.
func (s *Store) UpsertParticipant(ctx context.Context, p *model.Participant) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conversation(p.OrganizationID, p.ConversationID); err != nil {
		return nil, err
	}
	key := participantKey{p.ConversationID, p.UserID}
	if existing, ok := s.participants[key]; ok {
		existing.Role = p.Role
		existing.Permissions = append([]string(nil), p.Permissions...)
		existing.IsActive = p.IsActive
		existing.LastSeenAt = p.LastSeenAt
		if p.NotificationPreferences != nil {
			existing.NotificationPreferences = p.NotificationPreferences.Clone()
		}
		return existing.Clone(), nil
	}
	stored := p.Clone()
	stored.ID = s.id()
	s.participants[key] = stored
	return stored.Clone(), nil
}

// SetParticipantActive implements store.Repository.
func (s *Store) SetParticipantActive(ctx context.Context, organizationID string, conversationID int64, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{conversationID, userID}]
	if !ok || p.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	p.IsActive = active
	return nil
}

// TouchParticipant implements store.Repository.
func (s *Store) TouchParticipant(ctx context.Context, organizationID string, conversationID int64, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{conversationID, userID}]
	if !ok || p.OrganizationID != organizationID {
		return store.ErrNotFound
	}
	p.LastSeenAt = &at
	return nil
}

// CountActiveParticipants implements store.Repository.
func (s *Store) CountActiveParticipants(ctx context.Context, organizationID string, conversationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key, p := range s.participants {
		if key.conversationID == conversationID && p.OrganizationID == organizationID && p.IsActive {
			n++
		}
	}
	return n, nil
}

// GetAgentState implements store.Repository.
func (s *Store) GetAgentState(ctx context.Context, organizationID string, key model.AgentStateKey) (*model.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.agentStates[key]
	if !ok || st.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return st.Clone(), nil
}

// UpsertAgentState implements store.Repository.
func (s *Store) UpsertAgentState(ctx context.Context, state *model.AgentState) (*model.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conversation(state.OrganizationID, state.ConversationID); err != nil {
		return nil, err
	}
	key := state.Key()
	existing, ok := s.agentStates[key]
	if !ok {
		stored := state.Clone()
		stored.ID = s.id()
		stored.StateVersion = 1
		stored.IsActive = true
		if stored.CheckpointData != nil {
			at := stored.UpdatedAt
			stored.LastCheckpointAt = &at
		}
		s.agentStates[key] = stored
		return stored.Clone(), nil
	}

	existing.StateData = state.StateData.Clone()
	existing.SchemaVersion = state.SchemaVersion
	if state.AgentVersion != nil {
		v := *state.AgentVersion
		existing.AgentVersion = &v
	}
	if state.CheckpointData != nil {
		existing.CheckpointData = state.CheckpointData.Clone()
		at := state.UpdatedAt
		existing.LastCheckpointAt = &at
	}
	existing.StateVersion++
	existing.IsActive = true
	existing.UpdatedAt = state.UpdatedAt
	return existing.Clone(), nil
}

// RecordInteraction implements store.Repository.
func (s *Store) RecordInteraction(ctx context.Context, organizationID, userID string, key model.AgentStateKey, outcome model.Interaction) (*model.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conversation(organizationID, key.ConversationID); err != nil {
		return nil, err
	}
	now := s.now()
	st, ok := s.agentStates[key]
	if !ok {
		st = &model.AgentState{
			ID:             s.id(),
			OrganizationID: organizationID,
			ConversationID: key.ConversationID,
			UserID:         userID,
			AgentType:      key.AgentType,
			AgentID:        key.AgentID,
			SchemaVersion:  model.StateSchemaVersion,
			StateData:      model.Payload{},
			StateVersion:   1,
			IsActive:       true,
			CreatedAt:      now,
		}
		s.agentStates[key] = st
	}
	st.TotalInteractions++
	switch outcome {
	case model.InteractionSuccess:
		st.SuccessfulInteractions++
	case model.InteractionError:
		st.ErrorCount++
	}
	st.UpdatedAt = now
	return st.Clone(), nil
}

// ListAgentStates implements store.Repository.
func (s *Store) ListAgentStates(ctx context.Context, organizationID string, conversationID int64) ([]model.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AgentState
	for key, st := range s.agentStates {
		if key.ConversationID == conversationID && st.OrganizationID == organizationID {
			out = append(out, *st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetContext implements store.Repository.
func (s *Store) GetContext(ctx context.Context, organizationID string, conversationID int64) (*model.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.contexts[conversationID]
	if !ok || cc.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	return cc.Clone(), nil
}

// UpdateContext implements store.Repository.
func (s *Store) UpdateContext(ctx context.Context, organizationID string, conversationID int64, fn func(*model.ConversationContext) error) (*model.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.contexts[conversationID]
	if !ok || cc.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	updated := cc.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = cc.ID
	updated.OrganizationID = cc.OrganizationID
	updated.ConversationID = cc.ConversationID
	s.contexts[conversationID] = updated
	return updated.Clone(), nil
}

func page[T any](items []T, limit, offset int) []T {
	total := len(items)
	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	return items[start:end]
}
