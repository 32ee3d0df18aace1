// Package discovery turns a category/keyword query into an ordered list of
// candidate URLs to scrape. The primary path is an external search provider;
// when search yields nothing, a deterministic set of templated site-search
// URLs guarantees at least one candidate.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Candidate is a discovered, not-yet-scraped URL with lightweight metadata.
// Created here, consumed and discarded by the scraper; never persisted.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// SearchProvider abstracts a ranked web search. Implementations must tolerate
// zero results without error.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Discovery finds research sources for a product query.
type Discovery struct {
	provider SearchProvider
	limit    int
	logger   *slog.Logger
}

// New creates a Discovery using the given search provider.
func New(provider SearchProvider, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{provider: provider, limit: 10, logger: logger}
}

// Discover returns an ordered candidate list for the query. The search query
// is fixed as "<keywords> reviews forum blog". A failed or empty search falls
// back to templated candidates, so the result is always non-empty.
func (d *Discovery) Discover(ctx context.Context, category, keywords string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("%s reviews forum blog", keywords)
	d.logger.Debug("searching for sources", "query", query, "category", category)

	candidates, err := d.provider.Search(ctx, query, d.limit)
	if err != nil {
		d.logger.Warn("source search failed, using templated fallback", "err", err)
		return FallbackCandidates(keywords), nil
	}
	if len(candidates) == 0 {
		d.logger.Warn("source search returned nothing, using templated fallback", "query", query)
		return FallbackCandidates(keywords), nil
	}

	d.logger.Debug("found candidates", "count", len(candidates), "top", candidates[0].Title)
	return candidates, nil
}

// fallbackTemplates are durably-structured site search paths. The keyword is
// substituted as a query parameter; no network call is involved.
var fallbackTemplates = []struct {
	urlFormat string
	title     string
}{
	{"https://www.reddit.com/search/?q=%s", "Reddit discussions"},
	{"https://www.trustpilot.com/search?query=%s", "Trustpilot reviews"},
	{"https://www.theverge.com/search?q=%s", "The Verge coverage"},
	{"https://forums.tomsguide.com/search/?q=%s", "Tom's Guide forum threads"},
}

// FallbackCandidates deterministically templates candidate URLs for the
// keywords. Identical keywords always yield the identical set.
func FallbackCandidates(keywords string) []Candidate {
	escaped := url.QueryEscape(keywords)
	out := make([]Candidate, 0, len(fallbackTemplates))
	for i, tpl := range fallbackTemplates {
		out = append(out, Candidate{
			URL:   fmt.Sprintf(tpl.urlFormat, escaped),
			Title: fmt.Sprintf("%s: %s", tpl.title, keywords),
			Rank:  i,
		})
	}
	return out
}
