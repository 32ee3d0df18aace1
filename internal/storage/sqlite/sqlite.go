// Package sqlite is a SQLite-backed storage.Repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nicheradar/nicheradar/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteRepo implements storage.Repository
var _ storage.Repository = (*sqliteRepo)(nil)

type sqliteRepo struct {
	db *sql.DB
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
	generated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS facts (
	key TEXT PRIMARY KEY
);
`

// New creates a SQLite-backed storage.Repository.
func New(dsn string) (storage.Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) SaveReport(ctx context.Context, report *storage.Report) error {
	query := `
	INSERT OR REPLACE INTO reports (
		id, category, keywords, marketplace, markdown, model, source_count, product_count, generated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
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

func (r *sqliteRepo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	query := `SELECT id, category, keywords, marketplace, markdown, model, source_count, product_count, generated_at FROM reports WHERE id = ?`

	var report storage.Report
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&report.ID, &report.Category, &report.Keywords, &report.Marketplace,
		&report.Markdown, &report.Model, &report.SourceCount, &report.ProductCount,
		&report.GeneratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

func (r *sqliteRepo) MarkFact(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO facts (key) VALUES (?)`, key); err != nil {
		return fmt.Errorf("mark fact: %w", err)
	}
	return nil
}

func (r *sqliteRepo) CheckFact(ctx context.Context, key string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM facts WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check fact: %w", err)
	}
	return true, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}
