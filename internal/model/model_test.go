package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScope(t *testing.T) {
	tests := []struct {
		name    string
		org     string
		user    string
		conv    int64
		wantErr bool
	}{
		{name: "valid", org: "org-a", user: "alice", conv: 7},
		{name: "no conversation", org: "org-a", user: "alice"},
		{name: "trims", org: "  org-a ", user: " alice"},
		{name: "missing org", org: " ", user: "alice", wantErr: true},
		{name: "missing user", org: "org-a", user: "", wantErr: true},
		{name: "negative conversation", org: "org-a", user: "alice", conv: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScope(tt.org, tt.user, tt.conv)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				assert.True(t, s.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "org-a", s.OrganizationID())
			assert.Equal(t, "alice", s.UserID())
			assert.Equal(t, tt.conv, s.ConversationID())
		})
	}
}

func TestScopeWithConversation(t *testing.T) {
	base := MustScope("org-a", "alice", 0)
	addressed := base.WithConversation(42)

	assert.Equal(t, int64(0), base.ConversationID())
	assert.Equal(t, int64(42), addressed.ConversationID())
	assert.Equal(t, "org=org-a user=alice conversation=42", addressed.String())
	assert.True(t, Scope{}.IsZero())
}

func TestMustScopePanics(t *testing.T) {
	assert.Panics(t, func() { MustScope("", "alice", 0) })
}

func TestKnowledgeMerge(t *testing.T) {
	k := Knowledge{"venue": "hall", "guests": 80}
	merged := k.Merge(Knowledge{"guests": 120, "catering": "buffet"})

	assert.Equal(t, Knowledge{"venue": "hall", "guests": 120, "catering": "buffet"}, merged)

	var empty Knowledge
	got := empty.Merge(Knowledge{"a": 1})
	assert.Equal(t, Knowledge{"a": 1}, got)
}

func TestKnowledgeMergeCopiesNestedValues(t *testing.T) {
	nested := map[string]any{"min": 10}
	k := Knowledge{}.Merge(Knowledge{"range": nested})

	nested["min"] = 99
	assert.Equal(t, 10, k["range"].(map[string]any)["min"])
}

func TestContextApply(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	c := NewConversationContext("org-a", 1, created)
	c.BudgetConstraints = Knowledge{"total": 5000}

	style := "formal"
	var u ContextUpdate
	u.Set(FieldBudgetConstraints, Knowledge{"currency": "EUR"})
	u.Set(FieldEventRequirements, Knowledge{"guest_count": 120})
	u.CommunicationStyle = &style
	u.Extra = Payload{"locale": "de"}

	c.Apply(u, now)

	assert.Equal(t, Knowledge{"total": 5000, "currency": "EUR"}, c.BudgetConstraints)
	assert.Equal(t, Knowledge{"guest_count": 120}, c.EventRequirements)
	require.NotNil(t, c.CommunicationStyle)
	assert.Equal(t, "formal", *c.CommunicationStyle)
	assert.Equal(t, Payload{"locale": "de"}, c.Extra)
	assert.Equal(t, 2, c.ContextVersion)
	assert.Equal(t, now, c.UpdatedAt)
	assert.Equal(t, created, c.CreatedAt)

	style = "casual"
	assert.Equal(t, "formal", *c.CommunicationStyle)
}

func TestContextUpdateSetIgnoresNonKnowledge(t *testing.T) {
	var u ContextUpdate
	u.Set(FieldCommunicationStyle, Knowledge{"x": 1})
	u.Set(FieldUserPreferences, nil)

	assert.True(t, u.IsEmpty())
	assert.False(t, FieldCommunicationStyle.IsKnowledge())
	assert.True(t, FieldDecisionHistory.IsKnowledge())
}

func TestContextUpdateFromMap(t *testing.T) {
	u, err := ContextUpdateFromMap(map[string]any{
		"user_preferences":    map[string]any{"theme": "garden"},
		"communication_style": "brief",
		"mood_board":          []any{"green", "gold"},
	})
	require.NoError(t, err)

	assert.Equal(t, Knowledge{"theme": "garden"}, u.Knowledge[FieldUserPreferences])
	require.NotNil(t, u.CommunicationStyle)
	assert.Equal(t, "brief", *u.CommunicationStyle)
	assert.Equal(t, Payload{"mood_board": []any{"green", "gold"}}, u.Extra)
	assert.False(t, u.IsEmpty())
}

func TestContextUpdateFromMapRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		field string
	}{
		{name: "knowledge not an object", input: map[string]any{"budget_constraints": 5000}, field: "budget_constraints"},
		{name: "style not a string", input: map[string]any{"communication_style": 3}, field: "communication_style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ContextUpdateFromMap(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestContextClone(t *testing.T) {
	c := NewConversationContext("org-a", 1, time.Now())
	c.UserPreferences["colors"] = []any{"blue"}
	style := "warm"
	c.CommunicationStyle = &style

	cp := c.Clone()
	cp.UserPreferences["colors"].([]any)[0] = "red"
	*cp.CommunicationStyle = "cold"

	assert.Equal(t, []any{"blue"}, c.UserPreferences["colors"])
	assert.Equal(t, "warm", *c.CommunicationStyle)
	assert.Nil(t, (*ConversationContext)(nil).Clone())
}

func TestPayloadClone(t *testing.T) {
	p := Payload{
		"step":  3,
		"tags":  []string{"a"},
		"inner": map[string]any{"list": []any{map[string]any{"k": "v"}}},
	}
	cp := p.Clone()

	cp["tags"].([]string)[0] = "b"
	cp["inner"].(map[string]any)["list"].([]any)[0].(map[string]any)["k"] = "changed"
	cp["step"] = 4

	assert.Equal(t, []string{"a"}, p["tags"])
	assert.Equal(t, "v", p["inner"].(map[string]any)["list"].([]any)[0].(map[string]any)["k"])
	assert.Equal(t, 3, p["step"])
	assert.Nil(t, Payload(nil).Clone())
}
