package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/internal/service"
	"github.com/capitalize-ai/agent-conversations/internal/store"
	"github.com/capitalize-ai/agent-conversations/internal/store/memory"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// downRepo fails message inserts, and context updates when contextsDown
// is set, with a transient error.
type downRepo struct {
	store.Repository
	down         bool
	contextsDown bool
}

func (d *downRepo) InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if d.down {
		return nil, store.Transient("insert message", errors.New("connection reset"))
	}
	return d.Repository.InsertMessage(ctx, msg)
}

func (d *downRepo) UpdateContext(ctx context.Context, org string, conversationID int64, fn func(*model.ConversationContext) error) (*model.ConversationContext, error) {
	if d.contextsDown {
		return nil, store.Transient("update context", errors.New("connection reset"))
	}
	return d.Repository.UpdateContext(ctx, org, conversationID, fn)
}

type fixture struct {
	repo    *downRepo
	svc     *service.ConversationStore
	adapter *resilience.Adapter
	scope   model.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	mem.AddUser("org-a", "alice")
	repo := &downRepo{Repository: mem}
	svc := service.New(repo, logger.NewNop())

	owner := model.MustScope("org-a", "alice", 0)
	conv, err := svc.CreateConversation(context.Background(), owner, model.CreateConversationParams{Title: "Spring gala"})
	require.NoError(t, err)

	cache, err := resilience.NewMemoryCache(50)
	require.NoError(t, err)
	return &fixture{
		repo:    repo,
		svc:     svc,
		adapter: resilience.NewAdapter(svc, resilience.Policy{Attempts: 2}, cache, logger.NewNop()),
		scope:   owner.WithConversation(conv.ID),
	}
}

func (f *fixture) communicator(t *testing.T, agentType string, opts ...Option) *Communicator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c, err := New(f.adapter, f.scope, agentType, opts...)
	require.NoError(t, err)
	return c
}

func (f *fixture) messages(t *testing.T) []model.Message {
	t.Helper()
	msgs, err := f.svc.GetMessages(context.Background(), f.scope, f.scope.ConversationID(), model.MessageFilter{IncludeInternal: true})
	require.NoError(t, err)
	return msgs
}

func (f *fixture) state(t *testing.T, c *Communicator) *model.AgentState {
	t.Helper()
	st, err := f.svc.GetAgentState(context.Background(), f.scope, f.scope.ConversationID(), c.AgentType(), c.AgentID())
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.adapter, model.MustScope("org-a", "alice", 0), "venue")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = New(f.adapter, f.scope, "  ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNew_DefaultAgentIDIsStable(t *testing.T) {
	f := newFixture(t)

	a := f.communicator(t, "venue")
	b := f.communicator(t, "venue")
	pinned := f.communicator(t, "venue", WithAgentID("venue_custom"))

	assert.Equal(t, a.AgentID(), b.AgentID())
	assert.Contains(t, a.AgentID(), "venue_")
	assert.Equal(t, "venue_custom", pinned.AgentID())
}

func TestSendMessageToUser(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")

	out := c.SendMessageToUser(context.Background(), "I found three venues.", "", true, model.Payload{"venue_count": 3})

	require.True(t, out.IsStored(), "status %s: %v", out.Status, out.Err)
	msg := out.Value
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.False(t, msg.IsInternal)
	assert.True(t, msg.RequiresAction)
	assert.Equal(t, "venue", *msg.AgentType)
	assert.Equal(t, c.AgentID(), *msg.AgentID)
	assert.Nil(t, msg.UserID)
	assert.Equal(t, "venue", msg.Metadata["agent_type"])
	assert.Equal(t, c.AgentID(), msg.Metadata["agent_id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", msg.Metadata["timestamp"])
	assert.Equal(t, 3, msg.Metadata["venue_count"])

	st := f.state(t, c)
	assert.Equal(t, 1, st.TotalInteractions)
	assert.Equal(t, 1, st.SuccessfulInteractions)
	assert.Equal(t, 0, st.ErrorCount)
}

func TestSendMessageToUser_DegradedCountsAsError(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")
	f.repo.down = true

	out := c.SendMessageToUser(context.Background(), "Are you still there?", "", false, nil)

	require.True(t, out.IsDegraded())
	assert.True(t, resilience.IsDegradedID(out.Value.ID))

	st := f.state(t, c)
	assert.Equal(t, 1, st.TotalInteractions)
	assert.Equal(t, 0, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestSendInternalMessage(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")

	out := c.SendInternalMessage(context.Background(), "catering", "Venue holds 200.", MessageCommunication, nil)

	require.True(t, out.IsStored())
	msg := out.Value
	assert.Equal(t, model.RoleAgent, msg.Role)
	assert.True(t, msg.IsInternal)
	assert.False(t, msg.IsError)
	assert.Equal(t, "venue", msg.Metadata["source_agent_type"])
	assert.Equal(t, c.AgentID(), msg.Metadata["source_agent_id"])
	assert.Equal(t, "catering", msg.Metadata["target_agent_type"])
	assert.Equal(t, "communication", msg.Metadata["message_type"])

	bad := c.SendInternalMessage(context.Background(), "catering", "?", MessageType("gossip"), nil)
	assert.Equal(t, resilience.StatusFailed, bad.Status)
	assert.ErrorIs(t, bad.Err, model.ErrValidation)

	st := f.state(t, c)
	assert.Equal(t, 2, st.TotalInteractions)
	assert.Equal(t, 1, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestDelegateTask(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "coordinator")
	deadline := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)

	out := c.DelegateTask(context.Background(), "catering", Task{Description: "Quote a buffet for 150", Deadline: &deadline})

	require.True(t, out.IsStored())
	assert.Equal(t, "Task delegation: Quote a buffet for 150", out.Value.Content)
	assert.Equal(t, "delegation", out.Value.Metadata["message_type"])
	task, ok := out.Value.Metadata["task"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "medium", task["priority"])
	assert.Equal(t, "2026-03-05T17:00:00Z", task["deadline"])
}

func TestRequestInformation(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "catering")

	out := c.RequestInformation(context.Background(), "venue", InformationRequest{
		InformationType: "kitchen_facilities",
		Query:           model.Payload{"venue_id": 7},
	})

	require.True(t, out.IsStored())
	assert.Equal(t, "information_request", out.Value.Metadata["message_type"])
	req, ok := out.Value.Metadata["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kitchen_facilities", req["information_type"])
	assert.Equal(t, "normal", req["urgency"])
	assert.Equal(t, map[string]any{"venue_id": 7}, req["query"])
}

func TestProvideStatusUpdate(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")

	out := c.ProvideStatusUpdate(context.Background(), StatusUpdate{
		Status:    "shortlisting",
		Progress:  40,
		NextSteps: []string{"check availability"},
	})

	require.True(t, out.IsStored())
	assert.Equal(t, "Status update: shortlisting (40% complete)", out.Value.Content)
	assert.Equal(t, "status_update", out.Value.ContentType)

	var user, internal int
	for _, m := range f.messages(t) {
		if m.IsInternal {
			internal++
			assert.Equal(t, DefaultCoordinator, m.Metadata["target_agent_type"])
			assert.Equal(t, "status_update", m.Metadata["message_type"])
		} else {
			user++
		}
	}
	assert.Equal(t, 1, user)
	assert.Equal(t, 1, internal)

	st := f.state(t, c)
	assert.Equal(t, 1, st.TotalInteractions)
}

func TestProvideStatusUpdate_CoordinatorDoesNotNotifyItself(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, DefaultCoordinator)

	out := c.ProvideStatusUpdate(context.Background(), StatusUpdate{Status: "planning", Progress: 10})

	require.True(t, out.IsStored())
	assert.Len(t, f.messages(t), 1)
}

func TestProvideStatusUpdate_InvalidProgress(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")

	out := c.ProvideStatusUpdate(context.Background(), StatusUpdate{Status: "done", Progress: 101})

	assert.ErrorIs(t, out.Err, model.ErrValidation)
	assert.Empty(t, f.messages(t))
	assert.Equal(t, 1, f.state(t, c).ErrorCount)
}

func TestTrackUserPreference(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")
	ctx := context.Background()

	out := c.TrackUserPreference(ctx, "venue_style", "outdoor", 0.8)
	require.True(t, out.IsStored(), "status %s: %v", out.Status, out.Err)
	cc := out.Value

	pref, ok := cc.UserPreferences["venue_style"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "outdoor", pref["value"])
	assert.Equal(t, 0.8, pref["confidence"])
	assert.Equal(t, "venue", pref["discovered_by"])
	assert.Equal(t, "2026-03-01T10:00:00Z", pref["discovered_at"])

	bad := c.TrackUserPreference(ctx, "", "x", 1)
	assert.Equal(t, resilience.StatusFailed, bad.Status)
	assert.ErrorIs(t, bad.Err, model.ErrValidation)

	st := f.state(t, c)
	assert.Equal(t, 2, st.TotalInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestTrackDecision(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")

	out := c.TrackDecision(context.Background(), "Book the garden venue", "fits 150 guests outdoors", model.Payload{"venue_id": 7})
	require.True(t, out.IsStored(), "status %s: %v", out.Status, out.Err)
	cc := out.Value

	entry, ok := cc.DecisionHistory["2026-03-01T10:00:00Z_venue"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Book the garden venue", entry["decision"])
	assert.Equal(t, "fits 150 guests outdoors", entry["rationale"])
	assert.Equal(t, "venue", entry["decided_by"])
	assert.Equal(t, map[string]any{"venue_id": 7}, entry["data"])

	again := c.GetConversationContext(context.Background())
	require.True(t, again.IsStored())
	assert.Equal(t, cc.ContextVersion, again.Value.ContextVersion)
}

func TestTrackUserPreference_DegradedAppliesToLastKnownContext(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "venue")
	ctx := context.Background()

	known := c.TrackUserPreference(ctx, "venue_style", "outdoor", 0.8)
	require.True(t, known.IsStored())

	f.repo.contextsDown = true
	out := c.TrackUserPreference(ctx, "cuisine", "thai", 0.6)

	require.True(t, out.IsDegraded())
	assert.NoError(t, out.Err)
	assert.NotEmpty(t, out.Reason)
	assert.Contains(t, out.Value.UserPreferences, "venue_style")
	pref, ok := out.Value.UserPreferences["cuisine"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "thai", pref["value"])

	stored := c.GetConversationContext(ctx)
	require.True(t, stored.IsStored())
	assert.NotContains(t, stored.Value.UserPreferences, "cuisine")

	st := f.state(t, c)
	assert.Equal(t, 2, st.TotalInteractions)
	assert.Equal(t, 1, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestTrackDecision_DegradedWithoutKnownContext(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "budget")
	f.repo.contextsDown = true

	out := c.TrackDecision(context.Background(), "Cap catering at $40 a head", "", nil)

	require.True(t, out.IsDegraded())
	assert.True(t, resilience.IsDegradedID(out.Value.ID))
	assert.Contains(t, out.Value.DecisionHistory, "2026-03-01T10:00:00Z_budget")

	st := f.state(t, c)
	assert.Equal(t, 1, st.TotalInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestLogError(t *testing.T) {
	f := newFixture(t)
	c := f.communicator(t, "catering")

	out := c.LogError(context.Background(), "supplier API timed out", "timeout", model.Payload{"supplier": "acme"})

	require.True(t, out.IsStored())
	assert.True(t, out.Value.IsInternal)
	assert.True(t, out.Value.IsError)
	assert.Equal(t, DefaultCoordinator, out.Value.Metadata["target_agent_type"])
	assert.Equal(t, "error", out.Value.Metadata["message_type"])

	st := f.state(t, c)
	assert.Equal(t, 1, st.TotalInteractions)
	assert.Equal(t, 0, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestSaveAndLoadState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	venue := f.communicator(t, "venue")
	catering := f.communicator(t, "catering")

	first := venue.SaveState(ctx, model.Payload{"shortlist": []any{"garden", "loft"}}, nil)
	require.True(t, first.IsStored())
	second := venue.SaveState(ctx, model.Payload{"shortlist": []any{"garden"}}, model.Payload{"step": 2})
	require.True(t, second.IsStored())
	assert.Equal(t, first.Value.StateVersion+1, second.Value.StateVersion)
	assert.NotNil(t, second.Value.LastCheckpointAt)

	own := venue.GetAgentState(ctx)
	require.True(t, own.IsStored())
	assert.Equal(t, []any{"garden"}, own.Value.StateData["shortlist"])

	other := catering.GetOtherAgentState(ctx, "venue", "")
	require.True(t, other.IsStored())
	require.NotNil(t, other.Value)
	assert.Equal(t, venue.AgentID(), other.Value.AgentID)

	missing := catering.GetOtherAgentState(ctx, "budget", "")
	require.True(t, missing.IsStored())
	assert.Nil(t, missing.Value)
}
