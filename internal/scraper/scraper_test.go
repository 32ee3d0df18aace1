package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nicheradar/nicheradar/internal/discovery"
	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/fetchkit"
)

// fakeFetcher serves canned results and records call/concurrency statistics.
type fakeFetcher struct {
	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	delay       time.Duration
	respond     func(url string) *fetchkit.Result
}

func (f *fakeFetcher) Fetch(ctx context.Context, target string, renderJS bool) *fetchkit.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	return f.respond(target)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okResult(url, text string) *fetchkit.Result {
	html := fmt.Sprintf("<html><head><title>Page</title></head><body><article>%s</article></body></html>", text)
	return &fetchkit.Result{URL: url, StatusCode: 200, Body: []byte(html)}
}

func failResult(url string) *fetchkit.Result {
	return &fetchkit.Result{URL: url, Error: "all 3 attempts failed"}
}

func candidates(n int) []discovery.Candidate {
	out := make([]discovery.Candidate, n)
	for i := range out {
		out[i] = discovery.Candidate{
			URL:   fmt.Sprintf("https://site%d.example.com/review", i),
			Title: fmt.Sprintf("Candidate %d", i),
			Rank:  i,
		}
	}
	return out
}

func longText() string {
	return strings.Repeat("the grinder is quiet and the espresso tastes balanced ", 20)
}

func TestScrapeUntil_StopsAtRequired(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(url string) *fetchkit.Result {
		return okResult(url, longText())
	}}
	s := New(fetcher, Config{}, nil)

	records := s.ScrapeUntil(context.Background(), candidates(10), 3)

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// Candidates 4-10 must never be attempted once the threshold is met.
	if fetcher.callCount() != 3 {
		t.Errorf("expected exactly 3 fetches, got %d", fetcher.callCount())
	}
}

func TestScrapeUntil_SnippetFallback(t *testing.T) {
	fetcher := &fakeFetcher{respond: failResult}
	s := New(fetcher, Config{}, nil)

	cands := candidates(1)
	cands[0].Snippet = strings.Repeat("s", 150)

	records := s.ScrapeUntil(context.Background(), cands, 3)

	if len(records) != 1 {
		t.Fatalf("expected snippet record, got %d records", len(records))
	}
	if records[0].Kind != evidence.KindSearchSnippet {
		t.Errorf("expected kind %q, got %q", evidence.KindSearchSnippet, records[0].Kind)
	}
	if !strings.HasPrefix(records[0].Body, "[SEARCH SNIPPET] ") {
		t.Errorf("expected snippet marker prefix, got %q", records[0].Body[:30])
	}
}

func TestScrapeUntil_ShortSnippetContributesNothing(t *testing.T) {
	fetcher := &fakeFetcher{respond: failResult}
	s := New(fetcher, Config{}, nil)

	cands := candidates(1)
	cands[0].Snippet = "too short"

	if records := s.ScrapeUntil(context.Background(), cands, 3); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestScrapeUntil_NearEmptyExtractionFallsBack(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(url string) *fetchkit.Result {
		return okResult(url, "thin") // extraction succeeds but is near-empty
	}}
	s := New(fetcher, Config{}, nil)

	cands := candidates(1)
	cands[0].Snippet = strings.Repeat("long enough snippet ", 10)

	records := s.ScrapeUntil(context.Background(), cands, 1)
	if len(records) != 1 || records[0].Kind != evidence.KindSearchSnippet {
		t.Fatalf("expected snippet fallback for near-empty body, got %+v", records)
	}
}

func TestScrapeUntil_BodyCapped(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(url string) *fetchkit.Result {
		return okResult(url, strings.Repeat("x", 3*evidence.MaxBodyLen))
	}}
	s := New(fetcher, Config{}, nil)

	records := s.ScrapeUntil(context.Background(), candidates(1), 1)
	if len(records) != 1 {
		t.Fatal("expected one record")
	}
	if len(records[0].Body) != evidence.MaxBodyLen {
		t.Errorf("expected body capped at %d, got %d", evidence.MaxBodyLen, len(records[0].Body))
	}
}

func TestScrapeBatch_ConcurrencyCap(t *testing.T) {
	fetcher := &fakeFetcher{
		delay: 20 * time.Millisecond,
		respond: func(url string) *fetchkit.Result {
			return okResult(url, longText())
		},
	}
	s := New(fetcher, Config{Concurrency: 3}, nil)

	// required > concurrency routes through the bounded batch path
	records := s.ScrapeUntil(context.Background(), candidates(20), 6)

	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}
	if fetcher.maxInFlight > 3 {
		t.Errorf("concurrency cap exceeded: saw %d in flight", fetcher.maxInFlight)
	}
	if fetcher.callCount() == 20 {
		t.Errorf("expected early stop before attempting every candidate")
	}
}

func TestScrapeBatch_AllFail(t *testing.T) {
	fetcher := &fakeFetcher{respond: failResult}
	s := New(fetcher, Config{Concurrency: 3}, nil)

	if records := s.ScrapeUntil(context.Background(), candidates(8), 5); len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestScrapeUntil_EmptyInputs(t *testing.T) {
	s := New(&fakeFetcher{respond: failResult}, Config{}, nil)

	if got := s.ScrapeUntil(context.Background(), nil, 3); got != nil {
		t.Errorf("expected nil for no candidates")
	}
	if got := s.ScrapeUntil(context.Background(), candidates(3), 0); got != nil {
		t.Errorf("expected nil for zero required count")
	}
}
