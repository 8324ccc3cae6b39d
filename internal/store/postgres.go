package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"answer-router/internal/history"
)

type PostgresStore struct {
	db *sql.DB
}

const (
	migrateTimeout   = 30 * time.Second
	schemaPollPeriod = 250 * time.Millisecond
)

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	return openPostgres(ctx, db)
}

// openPostgres migrates db and takes ownership of it; db is closed if migration fails.
func openPostgres(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Router and recorder may start together; only one of them creates the schema.
	const lockID = 482913577

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		return s.waitForSchema(ctx)
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			question TEXT NOT NULL,
			category TEXT NOT NULL,
			winner_source TEXT NOT NULL,
			winner_confidence DOUBLE PRECISION NOT NULL,
			winner_score DOUBLE PRECISION NOT NULL,
			answer TEXT NOT NULL,
			sources TEXT[] NOT NULL,
			results JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS decisions_created_at_idx ON decisions (created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS decisions_category_idx ON decisions (category);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// waitForSchema polls until the instance holding the migration lock has created the table.
func (s *PostgresStore) waitForSchema(ctx context.Context) error {
	ticker := time.NewTicker(schemaPollPeriod)
	defer ticker.Stop()
	for {
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT to_regclass('decisions') IS NOT NULL`).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check decisions table: %w", err)
		}
		if exists {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for decisions table: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// SaveDecision inserts rec; replaying the same record is a no-op.
func (s *PostgresStore) SaveDecision(ctx context.Context, rec history.Record) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results for decision %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions(id, created_at, question, category, winner_source, winner_confidence, winner_score, answer, sources, results)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Timestamp, rec.Question, string(rec.Category),
		rec.Winner.Result.Source, rec.Winner.Result.Confidence, rec.Winner.Score, rec.Winner.Result.Text,
		pq.Array(pqStringArray(rec.AllSources())), results)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func pqStringArray(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	return items
}
