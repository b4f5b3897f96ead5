package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
)

const participantColumns = `
    id, organization_id, conversation_id, user_id, role, permissions, is_active,
    joined_at, last_seen_at, notification_preferences`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var (
		p           model.Participant
		role        string
		permissions []byte
		prefs       []byte
	)
	err := row.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.ConversationID,
		&p.UserID,
		&role,
		&permissions,
		&p.IsActive,
		&p.JoinedAt,
		&p.LastSeenAt,
		&prefs,
	)
	if err != nil {
		return nil, err
	}
	p.Role = model.ParticipantRole(role)
	if err := decodeJSON(permissions, &p.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if err := decodeJSON(prefs, &p.NotificationPreferences); err != nil {
		return nil, fmt.Errorf("decode notification_preferences: %w", err)
	}
	return &p, nil
}

// upsertParticipant inserts p or updates the existing row for the same
// (conversation, user). The conversation must belong to p's organization.
func upsertParticipant(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, p *model.Participant) (*model.Participant, error) {
	permissions, err := json.Marshal(p.Permissions)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid permissions: %v", model.ErrValidation, err)
	}
	prefs, err := jsonParam(p.NotificationPreferences)
	if err != nil {
		return nil, err
	}
	return scanParticipant(q.QueryRow(ctx, `
INSERT INTO conversation_participants (
    organization_id, conversation_id, user_id, role, permissions, is_active,
    joined_at, last_seen_at, notification_preferences
)
SELECT $1::TEXT, c.id, $3::TEXT, $4::TEXT, $5::JSONB, $6::BOOLEAN, $7::TIMESTAMPTZ, $8::TIMESTAMPTZ, $9::JSONB
FROM conversations c
WHERE c.id = $2 AND c.organization_id = $1
ON CONFLICT (conversation_id, user_id) DO UPDATE SET
    role = EXCLUDED.role,
    permissions = EXCLUDED.permissions,
    is_active = EXCLUDED.is_active,
    last_seen_at = EXCLUDED.last_seen_at,
    notification_preferences = COALESCE(EXCLUDED.notification_preferences, conversation_participants.notification_preferences)
WHERE conversation_participants.organization_id = EXCLUDED.organization_id
RETURNING`+participantColumns,
		p.OrganizationID,
		p.ConversationID,
		p.UserID,
		string(p.Role),
		permissions,
		p.IsActive,
		p.JoinedAt,
		p.LastSeenAt,
		prefs,
	))
}

// GetParticipant implements store.Repository.
func (s *Store) GetParticipant(ctx context.Context, organizationID string, conversationID int64, userID string) (*model.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(ctx,
		`SELECT`+participantColumns+`
FROM conversation_participants
WHERE organization_id = $1 AND conversation_id = $2 AND user_id = $3`,
		organizationID, conversationID, userID,
	))
	if err != nil {
		return nil, s.classify("get participant", err)
	}
	return p, nil
}

// UpsertParticipant implements store.Repository.
func (s *Store) UpsertParticipant(ctx context.Context, p *model.Participant) (*model.Participant, error) {
	stored, err := upsertParticipant(ctx, s.db, p)
	if err != nil {
		return nil, s.classify("upsert participant", err)
	}
	return stored, nil
}

// SetParticipantActive implements store.Repository.
func (s *Store) SetParticipantActive(ctx context.Context, organizationID string, conversationID int64, userID string, active bool) error {
	tag, err := s.db.Exec(ctx, `
UPDATE conversation_participants SET is_active = $4
WHERE organization_id = $1 AND conversation_id = $2 AND user_id = $3`,
		organizationID, conversationID, userID, active,
	)
	if err != nil {
		return s.classify("set participant active", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TouchParticipant implements store.Repository.
func (s *Store) TouchParticipant(ctx context.Context, organizationID string, conversationID int64, userID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE conversation_participants SET last_seen_at = $4
WHERE organization_id = $1 AND conversation_id = $2 AND user_id = $3`,
		organizationID, conversationID, userID, at,
	)
	if err != nil {
		return s.classify("touch participant", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountActiveParticipants implements store.Repository.
func (s *Store) CountActiveParticipants(ctx context.Context, organizationID string, conversationID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT COUNT(*) FROM conversation_participants
WHERE organization_id = $1 AND conversation_id = $2 AND is_active`,
		organizationID, conversationID,
	).Scan(&n)
	return n, s.classify("count participants", err)
}
