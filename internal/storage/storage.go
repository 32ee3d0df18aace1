package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested report does not exist.
var ErrNotFound = errors.New("report not found")

// Report is one finished research run.
type Report struct {
	ID           string
	Category     string
	Keywords     string
	Marketplace  string
	Markdown     string
	Model        string
	SourceCount  int
	ProductCount int
	GeneratedAt  time.Time
}

// Repository persists reports and small boolean facts keyed by string (for
// example payment state per report). Implementations must be safe for
// concurrent use. Injected into the pipeline; never a package-level
// singleton.
type Repository interface {
	SaveReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	MarkFact(ctx context.Context, key string) error
	CheckFact(ctx context.Context, key string) (bool, error)
	Close() error
}
