package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// Clean recursively removes nil values, blank strings, and maps or slices
// that end up empty. It returns nil when nothing remains.
func Clean(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if c := Clean(e); c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case model.Knowledge:
		c, _ := Clean(map[string]any(t)).(map[string]any)
		if c == nil {
			return nil
		}
		return model.Knowledge(c)
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if c := Clean(e); c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if strings.TrimSpace(e) != "" {
				out = append(out, e)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// ContextUpdate maps an extraction onto the knowledge fields of a
// conversation context. Empty values are stripped first so a field the
// message says nothing about never overwrites stored knowledge.
func (ex *Extraction) ContextUpdate(now time.Time) model.ContextUpdate {
	var u model.ContextUpdate
	if ex == nil {
		return u
	}

	set := func(f model.ContextField, k model.Knowledge) {
		if c, ok := Clean(k).(model.Knowledge); ok {
			u.Set(f, c)
		}
	}

	set(model.FieldUserPreferences, model.Knowledge(ex.Preferences))

	if len(ex.Decisions) > 0 {
		set(model.FieldDecisionHistory, model.Knowledge{
			now.UTC().Format(time.RFC3339Nano): map[string]any{
				"decisions": toAny(ex.Decisions),
				"source":    "message_extraction",
			},
		})
	}

	memory := model.Knowledge{"last_sentiment": string(ex.Sentiment)}
	if !ex.Entities.IsEmpty() {
		memory["mentioned_entities"] = map[string]any{
			"dates":     toAny(ex.Entities.Dates),
			"locations": toAny(ex.Entities.Locations),
			"people":    toAny(ex.Entities.People),
			"vendors":   toAny(ex.Entities.Vendors),
		}
	}
	set(model.FieldConversationMemory, memory)

	requirements := model.Knowledge{}
	for i, r := range ex.Requirements {
		label, value, ok := strings.Cut(r, ":")
		key := slug(label)
		if !ok || key == "" {
			key = slug(r)
			value = r
		}
		if key == "" {
			key = fmt.Sprintf("requirement_%d", i+1)
		}
		requirements[key] = strings.TrimSpace(value)
	}
	set(model.FieldEventRequirements, requirements)

	if budget, ok := ex.Preferences["budget"]; ok {
		set(model.FieldBudgetConstraints, model.Knowledge{"stated_budget": budget})
	}
	if len(ex.Entities.Dates) > 0 {
		set(model.FieldTimelineConstraints, model.Knowledge{"mentioned_dates": toAny(ex.Entities.Dates)})
	}

	return u
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
