package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"enroll/internal/registration/models"
	"enroll/internal/registration/ports"
)

// PostgresStore persists sessions in PostgreSQL with a version column guarding
// every write. This store is pure I/O; all state machine logic lives in the
// service layer.
//
// Schema:
//
//	CREATE TABLE registration_sessions (
//	    key        TEXT PRIMARY KEY,
//	    session_id TEXT NOT NULL UNIQUE,
//	    record     JSONB NOT NULL,
//	    version    BIGINT NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM registration_sessions WHERE key = $1`, key)
	return scanSession(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM registration_sessions WHERE session_id = $1`, sessionID)
	return scanSession(row)
}

func (s *PostgresStore) PutIf(ctx context.Context, session *models.Session, expectedVersion int64) error {
	session.Version = expectedVersion + 1
	record, err := json.Marshal(session)
	if err != nil {
		session.Version = expectedVersion
		return fmt.Errorf("encode session: %w", err)
	}

	var result sql.Result
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO registration_sessions (key, session_id, record, version)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO NOTHING
		`, session.Key, session.SessionID, record, session.Version)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE registration_sessions
			SET session_id = $2, record = $3, version = $4
			WHERE key = $1 AND version = $5
		`, session.Key, session.SessionID, record, session.Version, expectedVersion)
	}
	if err != nil {
		session.Version = expectedVersion
		return fmt.Errorf("write session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		session.Version = expectedVersion
		return fmt.Errorf("write session: %w", err)
	}
	if affected == 0 {
		session.Version = expectedVersion
		return ports.ErrConcurrentModification
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM registration_sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var record []byte
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal(record, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
