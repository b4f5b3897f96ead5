package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

const contextColumns = `
    id, organization_id, conversation_id, schema_version,
    user_preferences, conversation_memory, decision_history, topic_transitions,
    event_requirements, budget_constraints, timeline_constraints,
    stakeholder_context, response_preferences, communication_style, extra,
    context_version, last_summary_at, created_at, updated_at`

func scanContext(row pgx.Row) (*model.ConversationContext, error) {
	var (
		c         model.ConversationContext
		knowledge = make([][]byte, len(model.KnowledgeFields))
		extra     []byte
	)
	dest := []any{&c.ID, &c.OrganizationID, &c.ConversationID, &c.SchemaVersion}
	for i := range knowledge {
		dest = append(dest, &knowledge[i])
	}
	dest = append(dest, &c.CommunicationStyle, &extra, &c.ContextVersion, &c.LastSummaryAt, &c.CreatedAt, &c.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range model.KnowledgeFields {
		k := model.Knowledge{}
		if err := decodeJSON(knowledge[i], &k); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f, err)
		}
		c.SetKnowledge(f, k)
	}
	if err := decodeJSON(extra, &c.Extra); err != nil {
		return nil, fmt.Errorf("decode extra: %w", err)
	}
	return &c, nil
}

func contextParams(c *model.ConversationContext) ([]any, error) {
	params := make([]any, 0, len(model.KnowledgeFields)+2)
	for _, f := range model.KnowledgeFields {
		k := c.Knowledge(f)
		if k == nil {
			k = model.Knowledge{}
		}
		v, err := jsonParam(k)
		if err != nil {
			return nil, err
		}
		params = append(params, v)
	}
	extra, err := jsonParam(c.Extra)
	if err != nil {
		return nil, err
	}
	return append(params, c.CommunicationStyle, extra), nil
}

func insertContext(ctx context.Context, tx pgx.Tx, c *model.ConversationContext) error {
	params, err := contextParams(c)
	if err != nil {
		return err
	}
	args := append([]any{c.OrganizationID, c.ConversationID, c.SchemaVersion}, params...)
	args = append(args, c.ContextVersion, c.LastSummaryAt, c.CreatedAt, c.UpdatedAt)
	_, err = tx.Exec(ctx, `
INSERT INTO conversation_contexts (
    organization_id, conversation_id, schema_version,
    user_preferences, conversation_memory, decision_history, topic_transitions,
    event_requirements, budget_constraints, timeline_constraints,
    stakeholder_context, response_preferences, communication_style, extra,
    context_version, last_summary_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		args...,
	)
	return err
}

// GetContext implements store.Repository.
func (s *Store) GetContext(ctx context.Context, organizationID string, conversationID int64) (*model.ConversationContext, error) {
	c, err := scanContext(s.db.QueryRow(ctx,
		`SELECT`+contextColumns+` FROM conversation_contexts WHERE organization_id = $1 AND conversation_id = $2`,
		organizationID, conversationID,
	))
	if err != nil {
		return nil, s.classify("get context", err)
	}
	return c, nil
}

// UpdateContext implements store.Repository. The row is locked for the
// duration of fn so concurrent merges do not lose keys.
func (s *Store) UpdateContext(ctx context.Context, organizationID string, conversationID int64, fn func(*model.ConversationContext) error) (*model.ConversationContext, error) {
	var updated *model.ConversationContext
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		c, err := scanContext(tx.QueryRow(ctx,
			`SELECT`+contextColumns+` FROM conversation_contexts WHERE organization_id = $1 AND conversation_id = $2 FOR UPDATE`,
			organizationID, conversationID,
		))
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		params, err := contextParams(c)
		if err != nil {
			return err
		}
		args := append([]any{c.ID}, params...)
		args = append(args, c.ContextVersion, c.LastSummaryAt, c.UpdatedAt)
		updated, err = scanContext(tx.QueryRow(ctx, `
UPDATE conversation_contexts SET
    user_preferences = $2, conversation_memory = $3, decision_history = $4,
    topic_transitions = $5, event_requirements = $6, budget_constraints = $7,
    timeline_constraints = $8, stakeholder_context = $9, response_preferences = $10,
    communication_style = $11, extra = $12, context_version = $13,
    last_summary_at = $14, updated_at = $15
WHERE id = $1
RETURNING`+contextColumns,
			args...,
		))
		return err
	})
	if err != nil {
		return nil, s.classify("update context", err)
	}
	return updated, nil
}
