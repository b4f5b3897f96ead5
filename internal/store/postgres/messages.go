package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

const messageColumns = `
    id, message_uuid, organization_id, conversation_id, user_id, role, content,
    content_type, agent_type, agent_id, parent_message_id, latency_ms, token_count,
    is_internal, is_error, requires_action, metadata, created_at, edited_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m        model.Message
		role     string
		metadata []byte
	)
	err := row.Scan(
		&m.ID,
		&m.UUID,
		&m.OrganizationID,
		&m.ConversationID,
		&m.UserID,
		&role,
		&m.Content,
		&m.ContentType,
		&m.AgentType,
		&m.AgentID,
		&m.ParentMessageID,
		&m.LatencyMs,
		&m.TokenCount,
		&m.IsInternal,
		&m.IsError,
		&m.RequiresAction,
		&metadata,
		&m.CreatedAt,
		&m.EditedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	if err := decodeJSON(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// InsertMessage implements store.Repository.
func (s *Store) InsertMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	metadata, err := jsonParam(msg.Metadata)
	if err != nil {
		return nil, err
	}

	var stored *model.Message
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var convID int64
		if err := tx.QueryRow(ctx, `
UPDATE conversations SET updated_at = $3, last_activity_at = $3
WHERE id = $1 AND organization_id = $2
RETURNING id`,
			msg.ConversationID, msg.OrganizationID, msg.CreatedAt,
		).Scan(&convID); err != nil {
			return err
		}

		var err error
		stored, err = scanMessage(tx.QueryRow(ctx, `
INSERT INTO conversation_messages (
    message_uuid, organization_id, conversation_id, user_id, role, content,
    content_type, agent_type, agent_id, parent_message_id, latency_ms, token_count,
    is_internal, is_error, requires_action, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING`+messageColumns,
			msg.UUID,
			msg.OrganizationID,
			convID,
			msg.UserID,
			string(msg.Role),
			msg.Content,
			msg.ContentType,
			msg.AgentType,
			msg.AgentID,
			msg.ParentMessageID,
			msg.LatencyMs,
			msg.TokenCount,
			msg.IsInternal,
			msg.IsError,
			msg.RequiresAction,
			metadata,
			msg.CreatedAt,
		))
		return err
	})
	if err != nil {
		return nil, s.classify("insert message", err)
	}
	return stored, nil
}

// ListMessages implements store.Repository.
func (s *Store) ListMessages(ctx context.Context, organizationID string, conversationID int64, filter model.MessageFilter) ([]model.Message, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+messageColumns+`
FROM conversation_messages
WHERE organization_id = $1 AND conversation_id = $2
  AND ($3 OR NOT is_internal)
  AND ($4 = '' OR role = $4)
ORDER BY created_at ASC, id ASC
LIMIT $5 OFFSET $6`,
		organizationID, conversationID, filter.IncludeInternal, string(filter.Role),
		limitParam(filter.Limit), max(filter.Offset, 0),
	)
	if err != nil {
		return nil, s.classify("list messages", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, s.classify("scan message", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("list messages", err)
	}
	return messages, nil
}

// CountMessagesByRole implements store.Repository.
func (s *Store) CountMessagesByRole(ctx context.Context, organizationID string, conversationID int64) (map[model.Role]int, error) {
	rows, err := s.db.Query(ctx, `
SELECT role, COUNT(*)
FROM conversation_messages
WHERE organization_id = $1 AND conversation_id = $2
GROUP BY role`,
		organizationID, conversationID,
	)
	if err != nil {
		return nil, s.classify("count messages", err)
	}
	defer rows.Close()

	counts := make(map[model.Role]int)
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, s.classify("scan message count", err)
		}
		counts[model.Role(role)] = n
	}
	return counts, s.classify("count messages", rows.Err())
}

// prefixed qualifies every column of a column list with prefix.
func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = " " + prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
