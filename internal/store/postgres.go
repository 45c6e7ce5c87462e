package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mediflow/triage-engine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresStore persists records in a single sessions table, the full
// record as JSONB alongside the columns used for lookups and the
// optimistic version guard.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Load fetches a record by session id.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*model.ConversationRecord, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record, version FROM sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load session", err)
	}

	var rec model.ConversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal session %s: %w", sessionID, err)
	}
	rec.Version = version
	return &rec, nil
}

// Create inserts a new record at version 1.
func (s *PostgresStore) Create(ctx context.Context, rec *model.ConversationRecord) error {
	rec.Version = 1
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal session %s: %w", rec.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, phase, record, version, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.SessionID, rec.UserID, rec.Phase, raw, rec.Version, rec.CreatedAt, rec.LastUpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			rec.Version = 0
			return ErrVersionConflict
		}
		rec.Version = 0
		return unavailable("create session", err)
	}
	return nil
}

// Save performs the conditional write: the row is updated only while its
// stored version still matches what the caller loaded.
func (s *PostgresStore) Save(ctx context.Context, previousVersion int64, rec *model.ConversationRecord) error {
	rec.Version = previousVersion + 1
	raw, err := json.Marshal(rec)
	if err != nil {
		rec.Version = previousVersion
		return fmt.Errorf("store: marshal session %s: %w", rec.SessionID, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
         SET user_id = $1, phase = $2, record = $3, version = $4, updated_at = $5
         WHERE session_id = $6 AND version = $7`,
		rec.UserID, rec.Phase, raw, rec.Version, rec.LastUpdatedAt, rec.SessionID, previousVersion,
	)
	if err != nil {
		rec.Version = previousVersion
		return unavailable("save session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		rec.Version = previousVersion
		return unavailable("save session", err)
	}
	if affected == 0 {
		rec.Version = previousVersion
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`,
			rec.SessionID,
		).Scan(&exists)
		if err != nil {
			return unavailable("save session", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// Ping reports database reachability for the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
