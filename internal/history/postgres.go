package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the session journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dialogue_sessions (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			custom_data TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dialogue_sessions_site_ended ON dialogue_sessions (site_id, ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EndedAt.IsZero() {
		e.EndedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dialogue_sessions (id, site_id, session_id, reason, transcript, intent, custom_data, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID,
		e.SiteID,
		e.SessionID,
		e.Reason,
		e.Transcript,
		e.Intent,
		e.CustomData,
		e.StartedAt,
		e.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, siteID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, site_id, session_id, reason, transcript, intent, custom_data, started_at, ended_at
	          FROM dialogue_sessions WHERE ($1 = '' OR site_id = $1) ORDER BY ended_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	items := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SiteID, &e.SessionID, &e.Reason, &e.Transcript, &e.Intent, &e.CustomData, &e.StartedAt, &e.EndedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
