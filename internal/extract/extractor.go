// Package extract turns freeform message text into structured context.
//
// Extraction runs as two explicit stages: a structured request to a
// language model, and a deterministic pattern matcher used whenever the
// first stage is unavailable or yields no well-formed structure.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/llm"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
)

// Sentiment is a coarse tone label.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

func (s Sentiment) valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentMixed:
		return true
	}
	return false
}

// Stage names the extraction stage that produced a result.
type Stage string

const (
	StageModel    Stage = "model"
	StagePatterns Stage = "patterns"
)

// Entities are named things mentioned in a message.
type Entities struct {
	Dates     []string `json:"dates,omitempty"`
	Locations []string `json:"locations,omitempty"`
	People    []string `json:"people,omitempty"`
	Vendors   []string `json:"vendors,omitempty"`
}

// IsEmpty reports whether no entity was found.
func (e Entities) IsEmpty() bool {
	return len(e.Dates) == 0 && len(e.Locations) == 0 && len(e.People) == 0 && len(e.Vendors) == 0
}

// Extraction is the structured knowledge found in one message.
type Extraction struct {
	// Preferences uses the keys venue_type, location, budget, date, food
	// and atmosphere; values are whatever the stage produced.
	Preferences  map[string]any `json:"preferences,omitempty"`
	Decisions    []string       `json:"decisions,omitempty"`
	Entities     Entities       `json:"entities"`
	Requirements []string       `json:"requirements,omitempty"`
	Sentiment    Sentiment      `json:"sentiment"`
	Stage        Stage          `json:"-"`
}

// Config configures an Extractor.
type Config struct {
	// Model overrides the provider's default model.
	Model string
	// Timeout bounds the model request. Zero means 15 seconds.
	Timeout time.Duration
}

// Extractor runs the two-stage pipeline. A nil LLM client disables the
// model stage.
type Extractor struct {
	llm    llm.Client
	cfg    Config
	logger *logger.Logger
}

// New creates an Extractor.
func New(client llm.Client, cfg Config, log *logger.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Extractor{llm: client, cfg: cfg, logger: log}
}

// Extract never fails: when the model stage yields nothing usable the
// deterministic stage answers.
func (e *Extractor) Extract(ctx context.Context, text string) *Extraction {
	if ex, ok := e.TryStructured(ctx, text); ok {
		metrics.ContextExtractionsTotal.WithLabelValues(string(StageModel)).Inc()
		return ex
	}
	metrics.ContextExtractionsTotal.WithLabelValues(string(StagePatterns)).Inc()
	return Deterministic(text)
}

const extractionPrompt = `You extract event-planning facts from a single user message.
Reply with one JSON object and nothing else, using exactly this schema:
{
  "preferences": {"venue_type": string, "location": string, "budget": string, "date": string, "food": string, "atmosphere": string},
  "decisions": [string],
  "entities": {"dates": [string], "locations": [string], "people": [string], "vendors": [string]},
  "requirements": [string],
  "sentiment": "positive" | "neutral" | "negative" | "mixed"
}
Use null or omit any field the message does not mention.`

// TryStructured asks the language model for a structured extraction. It
// reports false when no client is configured, the call fails, or the
// response holds no well-formed JSON object.
func (e *Extractor) TryStructured(ctx context.Context, text string) (*Extraction, bool) {
	if e.llm == nil || strings.TrimSpace(text) == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.llm.Complete(ctx, &llm.CompletionRequest{
		Model:      e.cfg.Model,
		System:     extractionPrompt,
		Messages:   []llm.ChatMessage{{Role: "user", Content: text}},
		MaxTokens:  1024,
		JSONObject: true,
	})
	if err != nil {
		e.logger.Debug("model extraction failed, using patterns",
			zap.String("provider", e.llm.Name()),
			zap.Error(err),
		)
		return nil, false
	}

	ex, ok := parseStructured(resp.Content)
	if !ok {
		e.logger.Debug("model extraction returned no structure, using patterns",
			zap.String("provider", e.llm.Name()),
		)
		return nil, false
	}
	return ex, true
}

// parseStructured finds the outermost JSON object in content, strips empty
// values and decodes it.
func parseStructured(content string) (*Extraction, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, false
	}
	cleaned, _ := Clean(raw).(map[string]any)

	b, err := json.Marshal(cleaned)
	if err != nil {
		return nil, false
	}
	var ex Extraction
	if err := json.Unmarshal(b, &ex); err != nil {
		return nil, false
	}
	if !ex.Sentiment.valid() {
		ex.Sentiment = SentimentNeutral
	}
	ex.Stage = StageModel
	return &ex, true
}
