package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/agent-conversations/internal/llm"
	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

type fakeLLM struct {
	content string
	err     error
	calls   int
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

const planningMessage = "We expect about 150 guests and our budget is $10,000, leaning toward an outdoor venue in October."

func TestDeterministic_GuestsAndBudget(t *testing.T) {
	ex := Deterministic(planningMessage)

	assert.Equal(t, StagePatterns, ex.Stage)
	assert.Equal(t, []string{"Attendee count: 150"}, ex.Requirements)
	assert.Equal(t, "$10,000", ex.Preferences["budget"])
	assert.Equal(t, SentimentNeutral, ex.Sentiment)

	// A bare month name is not recognized as a date.
	assert.Empty(t, ex.Entities.Dates)
	assert.NotContains(t, ex.Preferences, "date")
}

func TestDeterministic_Dates(t *testing.T) {
	ex := Deterministic("The gala is on March 15, 2025 or 4/12/2025, maybe next Friday.")

	assert.Equal(t, []string{"March 15, 2025", "4/12/2025", "next Friday"}, ex.Entities.Dates)
	assert.Equal(t, "March 15, 2025", ex.Preferences["date"])
}

func TestDeterministic_Currency(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"we can spend $5k on catering", "$5k"},
		{"about $2500 total", "$2500"},
		{"no more than $1,250,000.00", "$1,250,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Deterministic(tt.text).Preferences["budget"])
		})
	}

	assert.NotContains(t, Deterministic("no budget yet").Preferences, "budget")
}

func TestDeterministic_AttendeesWithSeparator(t *testing.T) {
	ex := Deterministic("Expecting 1,200 attendees and 40 participants on stage")
	assert.Equal(t, []string{"Attendee count: 1200", "Attendee count: 40"}, ex.Requirements)
}

func TestKeywordSentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Sentiment
	}{
		{"positive", "This looks great, thanks!", SentimentPositive},
		{"negative", "The quote is too expensive and I'm worried", SentimentNegative},
		{"tie", "I love the venue but hate the catering", SentimentNeutral},
		{"none", "Send me the floor plan", SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keywordSentiment(tt.text))
		})
	}
}

func TestExtract_ModelStage(t *testing.T) {
	client := &fakeLLM{content: "Here you go:\n```json\n" +
		`{"preferences":{"venue_type":"outdoor","budget":"$10,000","food":null,"location":""},` +
		`"decisions":[],"entities":{"dates":["October"],"people":[]},` +
		`"requirements":["Attendee count: 150"],"sentiment":"positive"}` +
		"\n```"}
	e := New(client, Config{}, logger.NewNop())

	ex := e.Extract(context.Background(), planningMessage)

	require.NotNil(t, ex)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, StageModel, ex.Stage)
	assert.Equal(t, map[string]any{"venue_type": "outdoor", "budget": "$10,000"}, ex.Preferences)
	assert.Empty(t, ex.Decisions)
	assert.Equal(t, []string{"October"}, ex.Entities.Dates)
	assert.Empty(t, ex.Entities.People)
	assert.Equal(t, []string{"Attendee count: 150"}, ex.Requirements)
	assert.Equal(t, SentimentPositive, ex.Sentiment)
}

func TestExtract_UnknownSentimentIsNeutral(t *testing.T) {
	client := &fakeLLM{content: `{"sentiment":"ecstatic","decisions":["book the rooftop"]}`}
	ex := New(client, Config{}, logger.NewNop()).Extract(context.Background(), "let's book the rooftop")

	assert.Equal(t, StageModel, ex.Stage)
	assert.Equal(t, SentimentNeutral, ex.Sentiment)
	assert.Equal(t, []string{"book the rooftop"}, ex.Decisions)
}

func TestExtract_FallsBackToPatterns(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
	}{
		{"no client", nil},
		{"provider error", &fakeLLM{err: errors.New("rate limited")}},
		{"no json", &fakeLLM{content: "Sorry, I can't help with that."}},
		{"malformed json", &fakeLLM{content: `{"preferences": {"budget": }`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := New(tt.client, Config{Timeout: time.Second}, logger.NewNop()).Extract(context.Background(), planningMessage)

			assert.Equal(t, StagePatterns, ex.Stage)
			assert.Equal(t, []string{"Attendee count: 150"}, ex.Requirements)
			assert.Equal(t, "$10,000", ex.Preferences["budget"])
		})
	}
}

func TestClean(t *testing.T) {
	in := map[string]any{
		"keep":  "value",
		"blank": "  ",
		"nil":   nil,
		"zero":  0,
		"nested": map[string]any{
			"empty": map[string]any{"x": nil},
			"list":  []any{"", nil, "a"},
		},
		"gone":  []any{nil, ""},
		"names": []string{"", "Ada"},
	}

	got := Clean(in)

	assert.Equal(t, map[string]any{
		"keep":   "value",
		"zero":   0,
		"nested": map[string]any{"list": []any{"a"}},
		"names":  []string{"Ada"},
	}, got)
	assert.Nil(t, Clean(map[string]any{"a": nil}))
}

func TestExtraction_ContextUpdate(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	u := Deterministic(planningMessage).ContextUpdate(now)

	assert.Equal(t, model.Knowledge{"budget": "$10,000"}, u.Knowledge[model.FieldUserPreferences])
	assert.Equal(t, model.Knowledge{"attendee_count": "150"}, u.Knowledge[model.FieldEventRequirements])
	assert.Equal(t, model.Knowledge{"stated_budget": "$10,000"}, u.Knowledge[model.FieldBudgetConstraints])
	assert.Equal(t, model.Knowledge{"last_sentiment": "neutral"}, u.Knowledge[model.FieldConversationMemory])
	assert.NotContains(t, u.Knowledge, model.FieldTimelineConstraints)
	assert.NotContains(t, u.Knowledge, model.FieldDecisionHistory)
}

func TestExtraction_ContextUpdateKeepsExistingKnowledge(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cc := model.NewConversationContext("org-1", 1, now)
	cc.SetKnowledge(model.FieldUserPreferences, model.Knowledge{"food": "vegetarian", "budget": "$5,000"})

	ex := &Extraction{
		Preferences:  map[string]any{"budget": "$10,000"},
		Decisions:    []string{"outdoor venue"},
		Requirements: []string{"wheelchair access"},
		Sentiment:    SentimentPositive,
	}
	cc.Apply(ex.ContextUpdate(now), now)

	assert.Equal(t, model.Knowledge{"food": "vegetarian", "budget": "$10,000"}, cc.Knowledge(model.FieldUserPreferences))
	assert.Equal(t, model.Knowledge{"wheelchair_access": "wheelchair access"}, cc.Knowledge(model.FieldEventRequirements))
	assert.Contains(t, cc.Knowledge(model.FieldDecisionHistory), now.Format(time.RFC3339Nano))
	assert.Equal(t, 2, cc.ContextVersion)
}
