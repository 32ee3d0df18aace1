package transcript

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/fetchkit"
)

// routeFetcher maps URL substrings to canned results; anything unmatched
// fails.
type routeFetcher struct {
	mu     sync.Mutex
	routes map[string]string // substring -> body
	calls  []string
}

func (f *routeFetcher) Fetch(ctx context.Context, target string, renderJS bool) *fetchkit.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.mu.Unlock()

	for frag, body := range f.routes {
		if strings.Contains(target, frag) {
			return &fetchkit.Result{URL: target, StatusCode: 200, Body: []byte(body)}
		}
	}
	return &fetchkit.Result{URL: target, Error: "all 3 attempts failed"}
}

const (
	vidA = "aaaaaaaaaaa"
	vidB = "bbbbbbbbbbb"
	vidC = "ccccccccccc"
)

func searchHTML(ids ...string) string {
	var b strings.Builder
	for i, id := range ids {
		b.WriteString(`"title":{"runs":[{"text":"Review ` + string(rune('A'+i)) + `"}]}`)
		b.WriteString(`<a href="/watch?v=` + id + `">link</a>`)
	}
	return b.String()
}

func watchHTML(trackPath string) string {
	return `{"captionTracks":[{"baseUrl":"https://captions.example.com/` + trackPath + `?v=1&lang=en"}]}`
}

func captionXML(text string) string {
	return `<?xml version="1.0"?><transcript><text start="0.0" dur="2.1">` + text + `</text></transcript>`
}

func TestFetchUntil_StopsAtRequired(t *testing.T) {
	long := strings.Repeat("the machine pulls a consistent shot ", 10)
	f := &routeFetcher{routes: map[string]string{
		"results?search_query": searchHTML(vidA, vidB, vidC),
		"watch?v=":             watchHTML("track"),
		"captions.example.com": captionXML(long),
	}}
	c := New(f, Config{}, nil)

	records := c.FetchUntil(context.Background(), "espresso machine", 2)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].VideoID != vidA || records[1].VideoID != vidB {
		t.Errorf("unexpected ids: %s, %s", records[0].VideoID, records[1].VideoID)
	}
	if records[0].Title != "Review A" {
		t.Errorf("unexpected title %q", records[0].Title)
	}
	// vidC must not be attempted after the threshold is met.
	for _, call := range f.calls {
		if strings.Contains(call, vidC) {
			t.Error("fetched a candidate past the required count")
		}
	}
}

func TestFetchUntil_ShortCaptionsAreFailures(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{
		"results?search_query": searchHTML(vidA),
		"watch?v=":             watchHTML("track"),
		"captions.example.com": captionXML("too short"),
	}}
	c := New(f, Config{}, nil)

	if records := c.FetchUntil(context.Background(), "espresso machine", 3); len(records) != 0 {
		t.Fatalf("expected no records for sub-minimum captions, got %d", len(records))
	}
}

func TestFetchUntil_CapsTranscriptLength(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{
		"results?search_query": searchHTML(vidA),
		"watch?v=":             watchHTML("track"),
		"captions.example.com": captionXML(strings.Repeat("w ", 8000)),
	}}
	c := New(f, Config{}, nil)

	records := c.FetchUntil(context.Background(), "espresso machine", 1)
	if len(records) != 1 {
		t.Fatal("expected one record")
	}
	if len(records[0].Text) != 5000 {
		t.Errorf("expected transcript capped at 5000, got %d", len(records[0].Text))
	}
}

func TestFetchUntil_PlaceholdersOnSearchFailure(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{}} // every fetch fails
	c := New(f, Config{}, nil)

	records := c.FetchUntil(context.Background(), "espresso machine", 3)

	if len(records) != 0 {
		t.Fatalf("placeholder candidates have no captions, got %d records", len(records))
	}
	// The placeholder pool must still be walked.
	var attempted int
	for _, call := range f.calls {
		if strings.Contains(call, "watch?v=placehold") {
			attempted++
		}
	}
	if attempted != 3 {
		t.Errorf("expected 3 placeholder caption attempts, got %d", attempted)
	}
}

func TestSearchAll_DeduplicatesAcrossVariants(t *testing.T) {
	// All three variants resolve to the same results page.
	f := &routeFetcher{routes: map[string]string{
		"results?search_query": searchHTML(vidA, vidB),
	}}
	c := New(f, Config{}, nil)

	pool := c.searchAll(context.Background(), "espresso machine")

	if len(pool) != 2 {
		t.Fatalf("expected 2 unique candidates across variants, got %d", len(pool))
	}
}

func TestFetchCaptions_DescriptionFallback(t *testing.T) {
	desc := strings.Repeat("long description text ", 10)
	f := &routeFetcher{routes: map[string]string{
		"watch?v=": `{"description":{"simpleText":"` + desc + `"}}`,
	}}
	c := New(f, Config{}, nil)

	text, ok := c.fetchCaptions(context.Background(), "https://www.youtube.com/watch?v="+vidA)
	if !ok {
		t.Fatal("expected description fallback")
	}
	if !strings.Contains(text, "long description text") {
		t.Errorf("unexpected fallback text %q", text)
	}
}

func TestCleanCaptionXML(t *testing.T) {
	got := cleanCaptionXML(captionXML("hello   world"))
	if got != "hello world" {
		t.Errorf("cleanCaptionXML = %q", got)
	}
}

func TestEvidenceConversion(t *testing.T) {
	r := Record{VideoID: vidA, Title: "Review A", URL: "https://www.youtube.com/watch?v=" + vidA, Text: "captions"}
	ev := r.Evidence()
	if ev.Kind != evidence.KindVideo {
		t.Errorf("expected kind %q, got %q", evidence.KindVideo, ev.Kind)
	}
	if ev.Title != "[YouTube] Review A" {
		t.Errorf("unexpected title %q", ev.Title)
	}
}
