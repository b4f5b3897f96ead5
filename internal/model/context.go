package model

import "time"

// ContextSchemaVersion tags the layout of ConversationContext records
// written by this package.
const ContextSchemaVersion = 1

// ContextField names a field of ConversationContext.
type ContextField string

// Knowledge fields are merged key by key. CommunicationStyle is replaced.
const (
	FieldUserPreferences     ContextField = "user_preferences"
	FieldConversationMemory  ContextField = "conversation_memory"
	FieldDecisionHistory     ContextField = "decision_history"
	FieldTopicTransitions    ContextField = "topic_transitions"
	FieldEventRequirements   ContextField = "event_requirements"
	FieldBudgetConstraints   ContextField = "budget_constraints"
	FieldTimelineConstraints ContextField = "timeline_constraints"
	FieldStakeholderContext  ContextField = "stakeholder_context"
	FieldResponsePreferences ContextField = "response_preferences"
	FieldCommunicationStyle  ContextField = "communication_style"
)

// KnowledgeFields lists the fields whose updates are shallow-merged.
var KnowledgeFields = []ContextField{
	FieldUserPreferences,
	FieldConversationMemory,
	FieldDecisionHistory,
	FieldTopicTransitions,
	FieldEventRequirements,
	FieldBudgetConstraints,
	FieldTimelineConstraints,
	FieldStakeholderContext,
	FieldResponsePreferences,
}

// IsKnowledge reports whether updates to f are merged rather than replaced.
func (f ContextField) IsKnowledge() bool {
	for _, k := range KnowledgeFields {
		if k == f {
			return true
		}
	}
	return false
}

// Knowledge is an accumulating key/value section of a conversation context.
type Knowledge map[string]any

// Clone returns a deep copy of k.
func (k Knowledge) Clone() Knowledge {
	if k == nil {
		return nil
	}
	return Knowledge(Payload(k).Clone())
}

// Merge copies every key of update into k, overwriting existing keys and
// leaving the rest untouched. It returns the merged map, allocating one if
// k is nil.
func (k Knowledge) Merge(update Knowledge) Knowledge {
	if k == nil {
		k = make(Knowledge, len(update))
	}
	for key, v := range update {
		k[key] = cloneValue(v)
	}
	return k
}

// ConversationContext holds the structured knowledge accumulated over a
// conversation. It is one-to-one with Conversation.
type ConversationContext struct {
	ID             int64  `json:"id"`
	OrganizationID string `json:"organization_id"`
	ConversationID int64  `json:"conversation_id"`
	SchemaVersion  int    `json:"schema_version"`

	UserPreferences     Knowledge `json:"user_preferences"`
	ConversationMemory  Knowledge `json:"conversation_memory"`
	DecisionHistory     Knowledge `json:"decision_history"`
	TopicTransitions    Knowledge `json:"topic_transitions"`
	EventRequirements   Knowledge `json:"event_requirements"`
	BudgetConstraints   Knowledge `json:"budget_constraints"`
	TimelineConstraints Knowledge `json:"timeline_constraints"`
	StakeholderContext  Knowledge `json:"stakeholder_context"`
	ResponsePreferences Knowledge `json:"response_preferences"`
	CommunicationStyle  *string   `json:"communication_style,omitempty"`

	// Extra keeps fields this version does not model.
	Extra Payload `json:"extra,omitempty"`

	ContextVersion int        `json:"context_version"`
	LastSummaryAt  *time.Time `json:"last_summary_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewConversationContext returns the empty context created alongside a
// conversation.
func NewConversationContext(organizationID string, conversationID int64, now time.Time) *ConversationContext {
	c := &ConversationContext{
		OrganizationID: organizationID,
		ConversationID: conversationID,
		SchemaVersion:  ContextSchemaVersion,
		ContextVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, f := range KnowledgeFields {
		*c.knowledge(f) = Knowledge{}
	}
	return c
}

// Knowledge returns the section named f, or nil for non-knowledge fields.
func (c *ConversationContext) Knowledge(f ContextField) Knowledge {
	if p := c.knowledge(f); p != nil {
		return *p
	}
	return nil
}

// SetKnowledge replaces section f wholesale. It is meant for loading
// stored rows; updates go through Apply.
func (c *ConversationContext) SetKnowledge(f ContextField, k Knowledge) {
	if p := c.knowledge(f); p != nil {
		*p = k
	}
}

func (c *ConversationContext) knowledge(f ContextField) *Knowledge {
	switch f {
	case FieldUserPreferences:
		return &c.UserPreferences
	case FieldConversationMemory:
		return &c.ConversationMemory
	case FieldDecisionHistory:
		return &c.DecisionHistory
	case FieldTopicTransitions:
		return &c.TopicTransitions
	case FieldEventRequirements:
		return &c.EventRequirements
	case FieldBudgetConstraints:
		return &c.BudgetConstraints
	case FieldTimelineConstraints:
		return &c.TimelineConstraints
	case FieldStakeholderContext:
		return &c.StakeholderContext
	case FieldResponsePreferences:
		return &c.ResponsePreferences
	}
	return nil
}

// Apply merges u into c, bumps the context version and refreshes UpdatedAt.
func (c *ConversationContext) Apply(u ContextUpdate, now time.Time) {
	for f, k := range u.Knowledge {
		p := c.knowledge(f)
		if p == nil {
			continue
		}
		*p = p.Merge(k)
	}
	if u.CommunicationStyle != nil {
		style := *u.CommunicationStyle
		c.CommunicationStyle = &style
	}
	if len(u.Extra) > 0 {
		if c.Extra == nil {
			c.Extra = Payload{}
		}
		for k, v := range u.Extra {
			c.Extra[k] = cloneValue(v)
		}
	}
	c.ContextVersion++
	c.UpdatedAt = now
}

// Clone returns a deep copy of c.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	for _, f := range KnowledgeFields {
		*out.knowledge(f) = c.Knowledge(f).Clone()
	}
	out.CommunicationStyle = clonePtr(c.CommunicationStyle)
	out.Extra = c.Extra.Clone()
	out.LastSummaryAt = clonePtr(c.LastSummaryAt)
	return &out
}

// ContextUpdate is a typed update to a ConversationContext.
type ContextUpdate struct {
	// Knowledge holds per-field updates; each is shallow-merged.
	Knowledge map[ContextField]Knowledge
	// CommunicationStyle replaces the stored style when set.
	CommunicationStyle *string
	// Extra replaces individual keys of the forward-compatibility map.
	Extra Payload
}

// Set adds a knowledge update for f. Non-knowledge fields are ignored.
func (u *ContextUpdate) Set(f ContextField, k Knowledge) *ContextUpdate {
	if !f.IsKnowledge() || len(k) == 0 {
		return u
	}
	if u.Knowledge == nil {
		u.Knowledge = make(map[ContextField]Knowledge)
	}
	u.Knowledge[f] = u.Knowledge[f].Merge(k)
	return u
}

// IsEmpty reports whether u would change nothing but the version.
func (u ContextUpdate) IsEmpty() bool {
	for _, k := range u.Knowledge {
		if len(k) > 0 {
			return false
		}
	}
	return u.CommunicationStyle == nil && len(u.Extra) == 0
}

// ContextUpdateFromMap converts a loosely typed update, as received over
// HTTP, into a ContextUpdate. Knowledge fields must be objects; the
// communication style must be a string; unknown keys go to Extra.
func ContextUpdateFromMap(m map[string]any) (ContextUpdate, error) {
	var u ContextUpdate
	for key, v := range m {
		f := ContextField(key)
		switch {
		case f.IsKnowledge():
			obj, ok := v.(map[string]any)
			if !ok {
				return ContextUpdate{}, &FieldError{Field: key, Reason: "must be an object"}
			}
			u.Set(f, Knowledge(obj))
		case f == FieldCommunicationStyle:
			s, ok := v.(string)
			if !ok {
				return ContextUpdate{}, &FieldError{Field: key, Reason: "must be a string"}
			}
			u.CommunicationStyle = &s
		default:
			if u.Extra == nil {
				u.Extra = Payload{}
			}
			u.Extra[key] = v
		}
	}
	return u, nil
}

// FieldError describes an invalid input field. It wraps ErrValidation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return "validation error: " + e.Field + " " + e.Reason }

// Unwrap returns ErrValidation.
func (e *FieldError) Unwrap() error { return ErrValidation }
