package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, org, user string) *model.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), store.NewConversation{
		Conversation: &model.Conversation{
			OrganizationID: org,
			UserID:         user,
			Title:          "Board dinner",
			Type:           model.DefaultConversationType,
			Status:         model.ConversationActive,
			CreatedAt:      t0,
			UpdatedAt:      t0,
			LastActivityAt: t0,
		},
		Context: model.NewConversationContext(org, 0, t0),
		Owner: &model.Participant{
			OrganizationID: org,
			UserID:         user,
			Role:           model.ParticipantOwner,
			IsActive:       true,
			JoinedAt:       t0,
		},
	})
	require.NoError(t, err)
	return conv
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddUser("org-a", "alice")
	s.AddEvent("org-a", 9)

	ok, err := s.UserInOrganization(ctx, "org-a", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.UserInOrganization(ctx, "org-b", "alice")
	assert.False(t, ok)
	ok, _ = s.EventInOrganization(ctx, "org-b", 9)
	assert.False(t, ok)

	open := New(WithOpenDirectory())
	ok, _ = open.UserInOrganization(ctx, "anything", "anyone")
	assert.True(t, ok)
}

func TestCreateConversationSeedsContextAndOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	cc, err := s.GetContext(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, cc.ConversationID)
	assert.Equal(t, 1, cc.ContextVersion)

	p, err := s.GetParticipant(ctx, "org-a", conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantOwner, p.Role)
	assert.Equal(t, conv.ID, p.ConversationID)
}

func TestOrganizationIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	_, err := s.GetConversation(ctx, "org-b", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.GetContext(ctx, "org-b", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.InsertMessage(ctx, &model.Message{OrganizationID: "org-b", ConversationID: conv.ID, Role: model.RoleUser, Content: "hi", CreatedAt: t0})
	assert.ErrorIs(t, err, store.ErrNotFound)

	convs, total, err := s.ListConversations(ctx, "org-b", "alice", model.ConversationFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Zero(t, total)
}

func TestUpdateConversationKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	updated, err := s.UpdateConversation(ctx, "org-a", conv.ID, func(c *model.Conversation) error {
		c.OrganizationID = "org-b"
		c.Status = model.ConversationPaused
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "org-a", updated.OrganizationID)
	assert.Equal(t, model.ConversationPaused, updated.Status)

	boom := errors.New("boom")
	_, err = s.UpdateConversation(ctx, "org-a", conv.ID, func(c *model.Conversation) error {
		c.Status = model.ConversationArchived
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetConversation(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationPaused, got.Status)
}

func TestMessagesOrderingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	insert := func(role model.Role, content string, at time.Time, internal bool) {
		_, err := s.InsertMessage(ctx, &model.Message{
			OrganizationID: "org-a",
			ConversationID: conv.ID,
			Role:           role,
			Content:        content,
			IsInternal:     internal,
			CreatedAt:      at,
		})
		require.NoError(t, err)
	}
	insert(model.RoleAssistant, "second", t0.Add(2*time.Minute), false)
	insert(model.RoleUser, "first", t0.Add(time.Minute), false)
	insert(model.RoleAgent, "hidden", t0.Add(3*time.Minute), true)

	msgs, err := s.ListMessages(ctx, "org-a", conv.ID, model.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	msgs, err = s.ListMessages(ctx, "org-a", conv.ID, model.MessageFilter{IncludeInternal: true, Role: model.RoleAgent})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hidden", msgs[0].Content)

	got, err := s.GetConversation(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Minute), got.LastActivityAt)

	counts, err := s.CountMessagesByRole(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.Role]int{model.RoleUser: 1, model.RoleAssistant: 1, model.RoleAgent: 1}, counts)
}

func TestUpsertAgentStateVersions(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	state := &model.AgentState{
		OrganizationID: "org-a",
		ConversationID: conv.ID,
		UserID:         "alice",
		AgentType:      "venue",
		AgentID:        "venue-1",
		StateData:      model.Payload{"step": 1},
		UpdatedAt:      t0,
	}
	first, err := s.UpsertAgentState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, 1, first.StateVersion)
	assert.Nil(t, first.LastCheckpointAt)

	state.StateData = model.Payload{"step": 2}
	state.CheckpointData = model.Payload{"shortlist": []any{"hall"}}
	state.UpdatedAt = t0.Add(time.Minute)
	second, err := s.UpsertAgentState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, 2, second.StateVersion)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.Payload{"step": 2}, second.StateData)
	require.NotNil(t, second.LastCheckpointAt)
	assert.Equal(t, t0.Add(time.Minute), *second.LastCheckpointAt)

	second.StateData["step"] = 99
	got, err := s.GetAgentState(ctx, "org-a", state.Key())
	require.NoError(t, err)
	assert.Equal(t, 2, got.StateData["step"])

	_, err = s.GetAgentState(ctx, "org-b", state.Key())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordInteractionCreatesAndCounts(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(func() time.Time { return t0 }))
	conv := seed(t, s, "org-a", "alice")
	key := model.AgentStateKey{ConversationID: conv.ID, AgentType: "budget", AgentID: "budget-1"}

	_, err := s.RecordInteraction(ctx, "org-a", "alice", key, model.InteractionSuccess)
	require.NoError(t, err)
	st, err := s.RecordInteraction(ctx, "org-a", "alice", key, model.InteractionError)
	require.NoError(t, err)

	assert.Equal(t, 2, st.TotalInteractions)
	assert.Equal(t, 1, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, 1, st.StateVersion)
	assert.Equal(t, model.Payload{}, st.StateData)

	_, err = s.RecordInteraction(ctx, "org-b", "mallory", key, model.InteractionSuccess)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParticipants(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	_, err := s.UpsertParticipant(ctx, &model.Participant{
		OrganizationID: "org-a",
		ConversationID: conv.ID,
		UserID:         "bob",
		Role:           model.ParticipantMember,
		IsActive:       true,
		JoinedAt:       t0,
	})
	require.NoError(t, err)

	n, err := s.CountActiveParticipants(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	convs, _, err := s.ListConversations(ctx, "org-a", "bob", model.ConversationFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	require.NoError(t, s.SetParticipantActive(ctx, "org-a", conv.ID, "bob", false))
	n, _ = s.CountActiveParticipants(ctx, "org-a", conv.ID)
	assert.Equal(t, 1, n)

	convs, _, err = s.ListConversations(ctx, "org-a", "bob", model.ConversationFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)

	seen := t0.Add(time.Hour)
	require.NoError(t, s.TouchParticipant(ctx, "org-a", conv.ID, "alice", seen))
	p, err := s.GetParticipant(ctx, "org-a", conv.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, p.LastSeenAt)
	assert.Equal(t, seen, *p.LastSeenAt)

	assert.ErrorIs(t, s.TouchParticipant(ctx, "org-b", conv.ID, "alice", seen), store.ErrNotFound)
}

func TestUpdateContextDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	conv := seed(t, s, "org-a", "alice")

	_, err := s.UpdateContext(ctx, "org-a", conv.ID, func(c *model.ConversationContext) error {
		c.BudgetConstraints["total"] = 1000
		return model.ErrValidation
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	cc, err := s.GetContext(ctx, "org-a", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, cc.BudgetConstraints)
}
