// Package jsonbackend stores reports as NDJSON, one record per line. Useful
// for exports and single-node deployments without a database.
package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nicheradar/nicheradar/internal/storage"
)

// ensure jsonRepo implements storage.Repository
var _ storage.Repository = (*jsonRepo)(nil)

type jsonRepo struct {
	mu   sync.Mutex
	file *os.File
}

// line is one NDJSON entry: either a report or a fact marker.
type line struct {
	Report *storage.Report `json:"report,omitempty"`
	Fact   string          `json:"fact,omitempty"`
}

// New creates an NDJSON-backed storage.Repository.
func New(filePath string) (storage.Repository, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	return &jsonRepo{file: f}, nil
}

func (r *jsonRepo) SaveReport(ctx context.Context, report *storage.Report) error {
	return r.appendLine(line{Report: report})
}

func (r *jsonRepo) MarkFact(ctx context.Context, key string) error {
	return r.appendLine(line{Fact: key})
}

func (r *jsonRepo) appendLine(l line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (r *jsonRepo) GetReport(ctx context.Context, id string) (*storage.Report, error) {
	var found *storage.Report
	err := r.scan(func(l line) {
		// Last write wins, matching upsert semantics of the DB backends.
		if l.Report != nil && l.Report.ID == id {
			report := *l.Report
			found = &report
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (r *jsonRepo) CheckFact(ctx context.Context, key string) (bool, error) {
	var found bool
	err := r.scan(func(l line) {
		if l.Fact == key {
			found = true
		}
	})
	return found, err
}

// scan reads every entry under the lock, restoring the write position after.
func (r *jsonRepo) scan(visit func(line)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind store file: %w", err)
	}
	defer func() {
		_, _ = r.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(r.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		visit(l)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read store file: %w", err)
	}
	return nil
}

func (r *jsonRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
