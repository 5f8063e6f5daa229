package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	log.Println("Successfully connected to the database")
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            project TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ NOT NULL,
            error TEXT NOT NULL DEFAULT '',
            total_tokens INTEGER NOT NULL DEFAULT 0,
            tools TEXT[] DEFAULT '{}'::TEXT[]
        )`,
		`CREATE INDEX IF NOT EXISTS idx_runs_project_started ON runs(project, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS column_embeddings (
            key TEXT PRIMARY KEY,
            embedding vector NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func (s *PostgresStore) RecordRun(ctx context.Context, run RunRecord) error {
	query := `
        INSERT INTO runs (id, name, project, started_at, ended_at, error, total_tokens, tools)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            ended_at = EXCLUDED.ended_at,
            error = EXCLUDED.error,
            total_tokens = EXCLUDED.total_tokens,
            tools = EXCLUDED.tools
    `
	_, err := s.DB.ExecContext(ctx, query,
		run.ID, run.Name, run.Project, run.Start, run.End, run.Error, run.TotalTokens, pq.Array(nonNil(run.Tools)))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, project string, since time.Time) ([]RunRecord, error) {
	query := `
		SELECT id, name, project, started_at, ended_at, error, total_tokens, tools
		FROM runs
		WHERE project = $1 AND started_at >= $2
		ORDER BY started_at
	`
	rows, err := s.DB.QueryContext(ctx, query, project, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Project, &r.Start, &r.End, &r.Error, &r.TotalTokens, pq.Array(&r.Tools)); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.DB.QueryRowContext(ctx, `SELECT embedding FROM column_embeddings WHERE key = $1`, key).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

func (s *PostgresStore) PutEmbedding(ctx context.Context, key string, vec []float32) error {
	query := `
        INSERT INTO column_embeddings (key, embedding, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = NOW()
    `
	if _, err := s.DB.ExecContext(ctx, query, key, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}
