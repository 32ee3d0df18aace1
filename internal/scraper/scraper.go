// Package scraper turns discovered candidates into normalized evidence
// records. Extraction is best-effort: a candidate that cannot be scraped
// degrades to its search snippet, and a candidate with neither contributes
// nothing. Failures never propagate past this package.
package scraper

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nicheradar/nicheradar/internal/discovery"
	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/fetchkit"
)

// Fetcher is the single-URL fetch capability the scraper builds on.
type Fetcher interface {
	Fetch(ctx context.Context, target string, renderJS bool) *fetchkit.Result
}

// Config tunes scraping behavior.
type Config struct {
	// Concurrency caps parallel fetches within one batch. Default 3.
	Concurrency int
	// MinBodyLen is the smallest extracted body that counts as a success.
	MinBodyLen int
	// MinSnippetLen is the smallest snippet usable as a fallback record.
	MinSnippetLen int
}

// Scraper extracts evidence records from candidate URLs.
type Scraper struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a Scraper.
func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Scraper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.MinBodyLen <= 0 {
		cfg.MinBodyLen = 500
	}
	if cfg.MinSnippetLen <= 0 {
		cfg.MinSnippetLen = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{fetcher: fetcher, cfg: cfg, logger: logger}
}

// ScrapeUntil walks candidates in discovery order and stops once required
// successes are collected; later candidates are never attempted. A snippet
// fallback counts as a success. For required counts above the concurrency
// cap the candidates are fetched in a bounded parallel batch instead.
func (s *Scraper) ScrapeUntil(ctx context.Context, candidates []discovery.Candidate, required int) []evidence.Record {
	if required <= 0 || len(candidates) == 0 {
		return nil
	}
	if required > s.cfg.Concurrency {
		return s.scrapeBatch(ctx, candidates, required)
	}

	var records []evidence.Record
	for i, cand := range candidates {
		if len(records) >= required {
			s.logger.Debug("required sources collected, stopping", "count", required)
			break
		}
		if ctx.Err() != nil {
			break
		}

		s.logger.Debug("scraping candidate", "index", i+1, "total", len(candidates), "url", cand.URL)
		if rec, ok := s.scrapeCandidate(ctx, cand); ok {
			records = append(records, rec)
		}
	}

	s.logger.Debug("scrape finished", "records", len(records), "attempted_max", len(candidates))
	return records
}

// scrapeBatch fans out under the concurrency cap, and stops issuing new
// fetches once the success threshold is met. In-flight fetches for losing
// candidates are canceled rather than awaited.
func (s *Scraper) scrapeBatch(ctx context.Context, candidates []discovery.Candidate, required int) []evidence.Record {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var mu sync.Mutex
	var records []evidence.Record

	satisfied := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(records) >= required
	}

	for _, cand := range candidates {
		if satisfied() || gCtx.Err() != nil {
			break
		}

		g.Go(func() error {
			if satisfied() || gCtx.Err() != nil {
				return nil
			}

			rec, ok := s.scrapeCandidate(gCtx, cand)
			if !ok {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if len(records) < required {
				records = append(records, rec)
				if len(records) >= required {
					cancel()
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	return records
}

// scrapeCandidate attempts full extraction and falls back to the discovery
// snippet. The boolean reports whether the candidate contributed a record.
func (s *Scraper) scrapeCandidate(ctx context.Context, cand discovery.Candidate) (evidence.Record, bool) {
	kind := classifyURL(cand.URL)
	res := s.fetcher.Fetch(ctx, cand.URL, kind.renderJS())

	if res.OK() {
		title, body := extract(kind, res.Body)
		if len(body) > s.cfg.MinBodyLen {
			if title == "" {
				title = cand.Title
			}
			s.logger.Debug("extracted content", "url", cand.URL, "chars", len(body))
			return evidence.NewRecord(cand.URL, title, body, kind.evidenceKind()), true
		}
	} else {
		s.logger.Debug("fetch failed", "url", cand.URL, "err", res.Error, "blocked_by", res.BlockedBy)
	}

	// Last resort for this candidate: the search snippet, if non-trivial.
	if len(cand.Snippet) > s.cfg.MinSnippetLen {
		title := cand.Title
		if title == "" {
			title = "Search Result"
		}
		s.logger.Debug("using snippet fallback", "url", cand.URL)
		return evidence.NewRecord(cand.URL, title, "[SEARCH SNIPPET] "+cand.Snippet, evidence.KindSearchSnippet), true
	}

	return evidence.Record{}, false
}
