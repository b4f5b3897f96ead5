package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

func TestSaveAgentState_Versions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	params := model.SaveAgentStateParams{AgentType: "venue", AgentID: "venue_1", StateData: model.Payload{"step": 1}}
	first, err := f.svc.SaveAgentState(ctx, alice, conv.ID, params)
	require.NoError(t, err)
	assert.Equal(t, 1, first.StateVersion)
	assert.Nil(t, first.LastCheckpointAt)
	assert.Equal(t, "org-a", first.OrganizationID)

	for want := 2; want <= 4; want++ {
		params.StateData = model.Payload{"step": want}
		st, err := f.svc.SaveAgentState(ctx, alice, conv.ID, params)
		require.NoError(t, err)
		assert.Equal(t, want, st.StateVersion)
		assert.Equal(t, want, st.StateData["step"])
	}

	got, err := f.svc.GetAgentState(ctx, alice, conv.ID, "venue", "venue_1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.StateVersion)
	assert.Nil(t, got.LastCheckpointAt)
}

func TestSaveAgentState_Checkpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	_, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "budget", AgentID: "b1"})
	require.NoError(t, err)

	st, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{
		AgentType:      "budget",
		AgentID:        "b1",
		StateData:      model.Payload{"phase": "estimate"},
		CheckpointData: model.Payload{"resume_at": "estimate"},
	})
	require.NoError(t, err)
	require.NotNil(t, st.LastCheckpointAt)
	assert.Equal(t, st.UpdatedAt, *st.LastCheckpointAt)
	checkpointAt := *st.LastCheckpointAt

	// A save without checkpoint keeps the previous checkpoint time.
	st, err = f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "budget", AgentID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 3, st.StateVersion)
	assert.Equal(t, checkpointAt, *st.LastCheckpointAt)
	assert.Equal(t, "estimate", st.CheckpointData["resume_at"])
}

func TestSaveAgentState_DefaultAgentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	first, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "catering"})
	require.NoError(t, err)
	second, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "catering"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.AgentID, "catering_"))
	assert.Equal(t, first.AgentID, second.AgentID)
	assert.Equal(t, 2, second.StateVersion)
	assert.NotEqual(t, f.svc.DefaultAgentID("catering"), f.svc.DefaultAgentID("venue"))

	got, err := f.svc.GetAgentState(ctx, alice, conv.ID, "catering", "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.StateVersion)
}

func TestSaveAgentState_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	_, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.SaveAgentState(ctx, carol, conv.ID, model.SaveAgentStateParams{AgentType: "venue"})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	got, err := f.svc.GetAgentState(ctx, mallory, conv.ID, "venue", "")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetOtherAgentState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	_, err := f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "venue", AgentID: "v1", StateData: model.Payload{"n": 1}})
	require.NoError(t, err)
	_, err = f.svc.SaveAgentState(ctx, alice, conv.ID, model.SaveAgentStateParams{AgentType: "venue", AgentID: "v2", StateData: model.Payload{"n": 2}})
	require.NoError(t, err)

	latest, err := f.svc.GetOtherAgentState(ctx, alice, conv.ID, "venue", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.AgentID)

	named, err := f.svc.GetOtherAgentState(ctx, alice, conv.ID, "venue", "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, named.StateData["n"])

	none, err := f.svc.GetOtherAgentState(ctx, alice, conv.ID, "catering", "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRecordInteraction_CreatesZeroedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, alice, "Offsite")

	st, err := f.svc.RecordInteraction(ctx, alice, conv.ID, "venue", "v1", model.InteractionError)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StateVersion)
	assert.Equal(t, 1, st.TotalInteractions)
	assert.Equal(t, 0, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Empty(t, st.StateData)

	st, err = f.svc.RecordInteraction(ctx, alice, conv.ID, "venue", "v1", model.InteractionSuccess)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalInteractions)
	assert.Equal(t, 1, st.SuccessfulInteractions)
	assert.Equal(t, 1, st.StateVersion)
}
