// Package postgres implements store.Repository on PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/store"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
)

// Compile-time check to ensure Store implements store.Repository.
var _ store.Repository = (*Store)(nil)

// Store is a store.Repository backed by a pgx connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// New creates a Store over an established pool.
func New(db *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Ping implements store.Repository.
func (s *Store) Ping(ctx context.Context) error {
	return s.classify("ping", s.db.Ping(ctx))
}

// UserInOrganization implements store.Repository.
func (s *Store) UserInOrganization(ctx context.Context, organizationID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND organization_id = $2)`,
		userID, organizationID,
	).Scan(&ok)
	return ok, s.classify("user lookup", err)
}

// EventInOrganization implements store.Repository.
func (s *Store) EventInOrganization(ctx context.Context, organizationID string, eventID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND organization_id = $2)`,
		eventID, organizationID,
	).Scan(&ok)
	return ok, s.classify("event lookup", err)
}

// classify maps driver errors onto the store error taxonomy.
func (s *Store) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrAccessDenied) {
		return err
	}
	if isTransient(err) {
		s.logger.Debug("transient database error", zap.String("op", op), zap.Error(err))
		return store.Transient(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		s.logger.Error("database error",
			zap.String("op", op),
			zap.String("code", pgErr.Code),
			zap.String("message", pgErr.Message),
			zap.String("detail", pgErr.Detail),
		)
	}
	return fmt.Errorf("database error (%s): %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"57P01", // admin_shutdown
			"57P02", // crash_shutdown
			"57P03": // cannot_connect_now
			return true
		}
		// Class 08: connection exceptions.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// jsonParam encodes v for a JSONB column; nil maps become SQL NULL.
func jsonParam[T ~map[string]any](v T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON document: %v", model.ErrValidation, err)
	}
	return b, nil
}

func decodeJSON[T any](raw []byte, dst *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func limitParam(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
