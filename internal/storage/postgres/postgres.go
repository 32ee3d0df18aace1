// Package postgres is a Postgres-backed storage.Repository using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicheradar/nicheradar/internal/storage"
)

// ensure postgresRepo implements storage.Repository
var _ storage.Repository = (*postgresRepo)(nil)

type postgresRepo struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	keywords TEXT NOT NULL,
	marketplace TEXT NOT NULL,
	markdown TEXT NOT NULL,
	model TEXT NOT NULL,
	source_count INTEGER NOT NULL,
	product_count INTEGER NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS facts (
	key TEXT PRIMARY KEY
);
`

// New creates a Postgres-backed storage.Repository.
func New(ctx context.Context, dsn string) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &postgresRepo{pool: pool}, nil
}

func (r *postgresRepo) SaveReport(ctx context.Context, report *storage.Report) error {
	query := `
	INSERT INTO reports (
		id, category, keywords, marketplace, markdown, model, source_count, product_count, generated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET markdown = EXCLUDED.markdown, model = EXCLUDED.model
	`

	_, err := r.pool.Exec(ctx, query,
		report.ID,
		report.Category,
		report.Keywords,
		report.Marketplace,
		report.Markdown,
		report.Model,
		report.SourceCount,
		report.ProductCount,
		report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (r *postgresRepo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	query := `SELECT id, category, keywords, marketplace, markdown, model, source_count, product_count, generated_at FROM reports WHERE id = $1`

	var report storage.Report
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&report.ID, &report.Category, &report.Keywords, &report.Marketplace,
		&report.Markdown, &report.Model, &report.SourceCount, &report.ProductCount,
		&report.GeneratedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

func (r *postgresRepo) MarkFact(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `INSERT INTO facts (key) VALUES ($1) ON CONFLICT DO NOTHING`, key); err != nil {
		return fmt.Errorf("mark fact: %w", err)
	}
	return nil
}

func (r *postgresRepo) CheckFact(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM facts WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check fact: %w", err)
	}
	return exists, nil
}

func (r *postgresRepo) Close() error {
	r.pool.Close()
	return nil
}
