// Package audit records one row per search invocation in Postgres.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"search-courier/internal/common/errors"
)

// Schema creates the audit table when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS search_audit (
	id              UUID PRIMARY KEY,
	index_patterns  TEXT NOT NULL,
	route           TEXT NOT NULL,
	request_count   INTEGER NOT NULL,
	failed_count    INTEGER NOT NULL,
	response_count  INTEGER NOT NULL,
	secondary_error TEXT,
	error_code      TEXT,
	duration_ms     BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
)`

// Record describes one finished search.
type Record struct {
	ID             uuid.UUID
	IndexPatterns  string
	Route          string
	RequestCount   int
	FailedCount    int
	ResponseCount  int
	SecondaryError string
	ErrorCode      string
	Duration       time.Duration
	CreatedAt      time.Time
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewAuditWriteFailedError(err)
	}
	return nil
}

// Write inserts rec, filling ID and CreatedAt when zero.
func (s *PostgresStore) Write(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_audit (
			id, index_patterns, route, request_count, failed_count,
			response_count, secondary_error, error_code, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID,
		rec.IndexPatterns,
		rec.Route,
		rec.RequestCount,
		rec.FailedCount,
		rec.ResponseCount,
		nullable(rec.SecondaryError),
		nullable(rec.ErrorCode),
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return errors.NewAuditWriteFailedError(err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
