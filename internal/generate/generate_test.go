package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nicheradar/nicheradar/internal/evidence"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:  "k",
		BaseURL: baseURL,
		Backoff: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func completionBody(text string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + mustJSON(text) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerate_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "anthropic/claude-3.5-sonnet" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		_, _ = w.Write([]byte(completionBody("# Report\n\ntext")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	got, err := c.Generate(context.Background(), "anthropic/claude-3.5-sonnet", "write it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "# Report\n\ntext" {
		t.Errorf("unexpected completion %q", got)
	}
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	got, err := c.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls.Load() != 3 {
		t.Errorf("got %q after %d calls", got, calls.Load())
	}
}

func TestGenerate_EmptyCompletionIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	if _, err := c.Generate(context.Background(), "m", "p"); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestGenerate_ProviderErrorField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.Generate(context.Background(), "m", "p")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected provider error surfaced, got %v", err)
	}
}

func TestSelectIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("The best option is 2.")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	idx, err := c.SelectIndex(context.Background(), "m", "pick", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 2 {
		t.Errorf("expected index 2, got %d", idx)
	}
}

func TestSelectIndex_OutOfRange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("9")))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	if _, err := c.SelectIndex(context.Background(), "m", "pick", 3); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestParseIndex(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"Candidate 12 looks strongest", 12, false},
		{"none of them", 0, true},
	}
	for _, tc := range cases {
		got, err := parseIndex(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("parseIndex(%q) error = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseIndex(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestReportPrompt(t *testing.T) {
	bundle := &evidence.Bundle{}
	bundle.Add(evidence.NewRecord("https://a.example.com", "Thread", "body text", evidence.KindForum))
	bundle.Products = append(bundle.Products, evidence.Product{
		ID: "B0AAAA", Title: "ZetaBrew 900", Price: "$129.99", Rating: 4.4, ReviewCount: 1523,
		Features: []string{"15 bar pump"},
		Reviews:  []evidence.Review{{Rating: 5, Title: "Great", Excerpt: "Consistent shots."}},
	})

	got := ReportPrompt("Kitchen", "espresso machine", "US", bundle, true)

	for _, want := range []string{
		"Category: Kitchen",
		"Source 1 (forum): Thread",
		"https://a.example.com",
		"B0AAAA",
		"Feature: 15 bar pump",
		"Customer review",
		"Executive Summary",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(got, "in-depth") {
		t.Error("advanced prompt must ask for the deeper report")
	}
	if basic := ReportPrompt("Kitchen", "espresso machine", "US", bundle, false); strings.Contains(basic, "in-depth") {
		t.Error("basic prompt must not ask for the deeper report")
	}
}

func TestSelectionPrompt(t *testing.T) {
	got := SelectionPrompt("Which source is most credible?", []string{"a", "b"})
	if !strings.Contains(got, "0. a") || !strings.Contains(got, "1. b") {
		t.Errorf("candidates missing from prompt:\n%s", got)
	}
}
