package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
)

const conversationColumns = `
    id, conversation_uuid, organization_id, user_id, event_id, title, description,
    conversation_type, status, primary_agent_type, agent_context, current_phase,
    completion_percentage, created_at, updated_at, last_activity_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		c            model.Conversation
		agentContext []byte
		status       string
	)
	err := row.Scan(
		&c.ID,
		&c.UUID,
		&c.OrganizationID,
		&c.UserID,
		&c.EventID,
		&c.Title,
		&c.Description,
		&c.Type,
		&status,
		&c.PrimaryAgentType,
		&agentContext,
		&c.CurrentPhase,
		&c.CompletionPercentage,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ConversationStatus(status)
	if err := decodeJSON(agentContext, &c.AgentContext); err != nil {
		return nil, fmt.Errorf("decode agent_context: %w", err)
	}
	return &c, nil
}

const insertConversation = `
INSERT INTO conversations (
    conversation_uuid, organization_id, user_id, event_id, title, description,
    conversation_type, status, primary_agent_type, agent_context, current_phase,
    completion_percentage, created_at, updated_at, last_activity_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING` + conversationColumns

// CreateConversation implements store.Repository. The conversation, its
// context and the owner participant are written in one transaction.
func (s *Store) CreateConversation(ctx context.Context, nc store.NewConversation) (*model.Conversation, error) {
	c := nc.Conversation
	agentContext, err := jsonParam(c.AgentContext)
	if err != nil {
		return nil, err
	}

	var created *model.Conversation
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		created, err = scanConversation(tx.QueryRow(ctx, insertConversation,
			c.UUID,
			c.OrganizationID,
			c.UserID,
			c.EventID,
			c.Title,
			c.Description,
			c.Type,
			string(c.Status),
			c.PrimaryAgentType,
			agentContext,
			c.CurrentPhase,
			c.CompletionPercentage,
			c.CreatedAt,
			c.UpdatedAt,
			c.LastActivityAt,
		))
		if err != nil {
			return err
		}

		cc := nc.Context.Clone()
		cc.ConversationID = created.ID
		if err := insertContext(ctx, tx, cc); err != nil {
			return err
		}

		owner := nc.Owner.Clone()
		owner.ConversationID = created.ID
		_, err = upsertParticipant(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, s.classify("create conversation", err)
	}
	return created, nil
}

// GetConversation implements store.Repository.
func (s *Store) GetConversation(ctx context.Context, organizationID string, id int64) (*model.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx,
		`SELECT`+conversationColumns+` FROM conversations WHERE id = $1 AND organization_id = $2`,
		id, organizationID,
	))
	if err != nil {
		return nil, s.classify("get conversation", err)
	}
	return conv, nil
}

const visibleConversations = `
FROM conversations c
WHERE c.organization_id = $1
  AND (c.user_id = $2 OR EXISTS (
        SELECT 1 FROM conversation_participants p
        WHERE p.conversation_id = c.id AND p.user_id = $2 AND p.is_active))
  AND ($3 = '' OR c.conversation_type = $3)
  AND ($4 = '' OR c.status = $4)
  AND ($5::BIGINT IS NULL OR c.event_id = $5)`

// ListConversations implements store.Repository.
func (s *Store) ListConversations(ctx context.Context, organizationID, userID string, filter model.ConversationFilter, limit, offset int) ([]model.Conversation, int, error) {
	args := []any{organizationID, userID, filter.Type, string(filter.Status), filter.EventID}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) `+visibleConversations, args...).Scan(&total); err != nil {
		return nil, 0, s.classify("count conversations", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT`+prefixed("c.", conversationColumns)+visibleConversations+`
ORDER BY c.last_activity_at DESC, c.id DESC
LIMIT $6 OFFSET $7`,
		append(args, limitParam(limit), max(offset, 0))...,
	)
	if err != nil {
		return nil, 0, s.classify("list conversations", err)
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, s.classify("scan conversation", err)
		}
		convs = append(convs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, s.classify("list conversations", err)
	}
	return convs, total, nil
}

// UpdateConversation implements store.Repository.
func (s *Store) UpdateConversation(ctx context.Context, organizationID string, id int64, fn func(*model.Conversation) error) (*model.Conversation, error) {
	var updated *model.Conversation
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		conv, err := scanConversation(tx.QueryRow(ctx,
			`SELECT`+conversationColumns+` FROM conversations WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
			id, organizationID,
		))
		if err != nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}
		agentContext, err := jsonParam(conv.AgentContext)
		if err != nil {
			return err
		}
		updated, err = scanConversation(tx.QueryRow(ctx, `
UPDATE conversations SET
    title = $3, description = $4, conversation_type = $5, status = $6,
    primary_agent_type = $7, agent_context = $8, current_phase = $9,
    completion_percentage = $10, event_id = $11, updated_at = $12, last_activity_at = $13
WHERE id = $1 AND organization_id = $2
RETURNING`+conversationColumns,
			id, organizationID,
			conv.Title, conv.Description, conv.Type, string(conv.Status),
			conv.PrimaryAgentType, agentContext, conv.CurrentPhase,
			conv.CompletionPercentage, conv.EventID, conv.UpdatedAt, conv.LastActivityAt,
		))
		return err
	})
	if err != nil {
		return nil, s.classify("update conversation", err)
	}
	return updated, nil
}
