package postgres

import (
	"context"
	"fmt"
)

// schema creates the conversation tables. users and events belong to the
// surrounding platform; they are created only when absent so the core can
// run standalone.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id              BIGINT PRIMARY KEY,
    organization_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id                    BIGSERIAL PRIMARY KEY,
    conversation_uuid     UUID NOT NULL UNIQUE,
    organization_id       TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    event_id              BIGINT,
    title                 TEXT NOT NULL,
    description           TEXT,
    conversation_type     TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'active',
    primary_agent_type    TEXT,
    agent_context         JSONB,
    current_phase         TEXT,
    completion_percentage INT NOT NULL DEFAULT 0 CHECK (completion_percentage BETWEEN 0 AND 100),
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL,
    last_activity_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_org_activity
    ON conversations (organization_id, last_activity_at DESC);

CREATE TABLE IF NOT EXISTS conversation_messages (
    id                BIGSERIAL PRIMARY KEY,
    message_uuid      UUID NOT NULL UNIQUE,
    organization_id   TEXT NOT NULL,
    conversation_id   BIGINT NOT NULL REFERENCES conversations (id),
    user_id           TEXT,
    role              TEXT NOT NULL,
    content           TEXT NOT NULL,
    content_type      TEXT NOT NULL,
    agent_type        TEXT,
    agent_id          TEXT,
    parent_message_id BIGINT REFERENCES conversation_messages (id),
    latency_ms        BIGINT,
    token_count       INT,
    is_internal       BOOLEAN NOT NULL DEFAULT FALSE,
    is_error          BOOLEAN NOT NULL DEFAULT FALSE,
    requires_action   BOOLEAN NOT NULL DEFAULT FALSE,
    metadata          JSONB,
    created_at        TIMESTAMPTZ NOT NULL,
    edited_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
    ON conversation_messages (conversation_id, created_at, id);

CREATE TABLE IF NOT EXISTS agent_states (
    id                      BIGSERIAL PRIMARY KEY,
    organization_id         TEXT NOT NULL,
    conversation_id         BIGINT NOT NULL REFERENCES conversations (id),
    user_id                 TEXT NOT NULL,
    agent_type              TEXT NOT NULL,
    agent_id                TEXT NOT NULL,
    agent_version           TEXT,
    schema_version          INT NOT NULL DEFAULT 1,
    state_data              JSONB NOT NULL DEFAULT '{}'::jsonb,
    checkpoint_data         JSONB,
    state_version           INT NOT NULL DEFAULT 1,
    is_active               BOOLEAN NOT NULL DEFAULT TRUE,
    total_interactions      INT NOT NULL DEFAULT 0,
    successful_interactions INT NOT NULL DEFAULT 0,
    error_count             INT NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL,
    last_checkpoint_at      TIMESTAMPTZ,
    UNIQUE (conversation_id, agent_type, agent_id)
);

CREATE TABLE IF NOT EXISTS conversation_contexts (
    id                   BIGSERIAL PRIMARY KEY,
    organization_id      TEXT NOT NULL,
    conversation_id      BIGINT NOT NULL UNIQUE REFERENCES conversations (id),
    schema_version       INT NOT NULL DEFAULT 1,
    user_preferences     JSONB NOT NULL DEFAULT '{}'::jsonb,
    conversation_memory  JSONB NOT NULL DEFAULT '{}'::jsonb,
    decision_history     JSONB NOT NULL DEFAULT '{}'::jsonb,
    topic_transitions    JSONB NOT NULL DEFAULT '{}'::jsonb,
    event_requirements   JSONB NOT NULL DEFAULT '{}'::jsonb,
    budget_constraints   JSONB NOT NULL DEFAULT '{}'::jsonb,
    timeline_constraints JSONB NOT NULL DEFAULT '{}'::jsonb,
    stakeholder_context  JSONB NOT NULL DEFAULT '{}'::jsonb,
    response_preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
    communication_style  TEXT,
    extra                JSONB,
    context_version      INT NOT NULL DEFAULT 1,
    last_summary_at      TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_participants (
    id                       BIGSERIAL PRIMARY KEY,
    organization_id          TEXT NOT NULL,
    conversation_id          BIGINT NOT NULL REFERENCES conversations (id),
    user_id                  TEXT NOT NULL,
    role                     TEXT NOT NULL,
    permissions              JSONB,
    is_active                BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at                TIMESTAMPTZ NOT NULL,
    last_seen_at             TIMESTAMPTZ,
    notification_preferences JSONB,
    UNIQUE (conversation_id, user_id)
);
`

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
