package jsonbackend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nicheradar/nicheradar/internal/storage"
)

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "reports.ndjson"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndGetReport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := &storage.Report{
		ID:          "r1",
		Category:    "Kitchen",
		Keywords:    "espresso machine",
		Markdown:    "# Report",
		GeneratedAt: time.Now().UTC(),
	}
	if err := repo.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := repo.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Markdown != "# Report" {
		t.Errorf("unexpected report %+v", got)
	}
}

func TestGetReport_LastWriteWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_ = repo.SaveReport(ctx, &storage.Report{ID: "r1", Markdown: "v1"})
	_ = repo.SaveReport(ctx, &storage.Report{ID: "r1", Markdown: "v2"})

	got, err := repo.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Markdown != "v2" {
		t.Errorf("expected last write, got %q", got.Markdown)
	}
}

func TestGetReport_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.GetReport(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFacts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ok, _ := repo.CheckFact(ctx, "paid:r1")
	if ok {
		t.Fatal("expected unset fact")
	}
	if err := repo.MarkFact(ctx, "paid:r1"); err != nil {
		t.Fatalf("MarkFact: %v", err)
	}
	ok, err := repo.CheckFact(ctx, "paid:r1")
	if err != nil || !ok {
		t.Fatalf("expected fact set, got %v/%v", ok, err)
	}
}
