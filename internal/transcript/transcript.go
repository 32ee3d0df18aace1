// Package transcript finds product-review videos and pulls their caption
// text. Like the web scraper it is best-effort: candidates without usable
// captions are skipped, and a failed platform search degrades to placeholder
// candidates so callers always have a pool to walk.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/internal/fetchkit"
)

// Record is the caption text retrieved for one video.
type Record struct {
	VideoID string
	Title   string
	URL     string
	Text    string
}

// Evidence converts the record into a bundle entry.
func (r Record) Evidence() evidence.Record {
	return evidence.NewRecord(r.URL, "[YouTube] "+r.Title, r.Text, evidence.KindVideo)
}

// Fetcher is the page-fetch capability the client builds on.
type Fetcher interface {
	Fetch(ctx context.Context, target string, renderJS bool) *fetchkit.Result
}

// Config tunes transcript retrieval.
type Config struct {
	// MinTextLen is the shortest caption text that counts as a success.
	MinTextLen int
	// MaxTextLen caps stored caption text.
	MaxTextLen int
	// MaxCandidates bounds the candidate pool across all query variants.
	MaxCandidates int
}

// Client searches a video platform and extracts captions from video pages.
type Client struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
}

func New(fetcher Fetcher, cfg Config, logger *slog.Logger) *Client {
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = 100
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = 5000
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{fetcher: fetcher, cfg: cfg, logger: logger}
}

// candidate is a video discovered by search, prior to caption retrieval.
type candidate struct {
	id    string
	title string
}

var (
	videoIDPattern  = regexp.MustCompile(`/watch\?v=([a-zA-Z0-9_-]{11})`)
	titlePattern    = regexp.MustCompile(`"title":\{"runs":\[\{"text":"([^"]+)"\}\]`)
	captionsPattern = regexp.MustCompile(`"captionTracks":\[.*?"baseUrl":"([^"]+)"`)
	descPattern     = regexp.MustCompile(`"description":\{"simpleText":"([^"]+)"\}`)
	xmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
)

// queryVariants diversifies the candidate pool beyond a single phrasing.
func queryVariants(keywords string) []string {
	return []string{
		keywords,
		keywords + " review",
		"best " + keywords,
	}
}

// placeholderCandidates is the fixed pool used when platform search fails
// outright. Caption retrieval for these will normally fail too, which is
// fine: the empty-bundle guarantee lives with the caller.
func placeholderCandidates(keywords string) []candidate {
	ids := []string{"placehold01", "placehold02", "placehold03"}
	out := make([]candidate, len(ids))
	for i, id := range ids {
		out[i] = candidate{id: id, title: fmt.Sprintf("%s review", keywords)}
	}
	return out
}

// FetchUntil searches with each query variant, deduplicates candidates by
// video id, and retrieves captions until required successes are collected or
// the pool is exhausted.
func (c *Client) FetchUntil(ctx context.Context, keywords string, required int) []Record {
	if required <= 0 {
		return nil
	}

	pool := c.searchAll(ctx, keywords)
	if len(pool) == 0 {
		c.logger.Warn("video search yielded nothing, using placeholder candidates", "keywords", keywords)
		pool = placeholderCandidates(keywords)
	}

	var records []Record
	for _, cand := range pool {
		if len(records) >= required || ctx.Err() != nil {
			break
		}

		watchURL := "https://www.youtube.com/watch?v=" + cand.id
		text, ok := c.fetchCaptions(ctx, watchURL)
		if !ok || len(text) <= c.cfg.MinTextLen {
			c.logger.Debug("no usable captions", "video_id", cand.id)
			continue
		}
		if len(text) > c.cfg.MaxTextLen {
			text = text[:c.cfg.MaxTextLen]
		}

		c.logger.Debug("captions retrieved", "video_id", cand.id, "chars", len(text))
		records = append(records, Record{VideoID: cand.id, Title: cand.title, URL: watchURL, Text: text})
	}

	c.logger.Info("transcript fetch finished", "records", len(records), "required", required, "pool", len(pool))
	return records
}

// searchAll runs every query variant and merges results, deduplicating by
// video id and preserving first-seen order.
func (c *Client) searchAll(ctx context.Context, keywords string) []candidate {
	seen := make(map[string]struct{})
	var pool []candidate

	for _, query := range queryVariants(keywords) {
		if len(pool) >= c.cfg.MaxCandidates || ctx.Err() != nil {
			break
		}
		for _, cand := range c.search(ctx, query) {
			if _, dup := seen[cand.id]; dup {
				continue
			}
			seen[cand.id] = struct{}{}
			pool = append(pool, cand)
			if len(pool) >= c.cfg.MaxCandidates {
				break
			}
		}
	}
	return pool
}

// search scrapes one results page and pairs video ids with result titles by
// position. Failures return an empty slice.
func (c *Client) search(ctx context.Context, query string) []candidate {
	searchURL := "https://www.youtube.com/results?search_query=" + strings.ReplaceAll(query, " ", "+")

	res := c.fetcher.Fetch(ctx, searchURL, true)
	if !res.OK() {
		c.logger.Debug("video search failed", "query", query, "err", res.Error)
		return nil
	}

	body := string(res.Body)
	ids := videoIDPattern.FindAllStringSubmatch(body, -1)
	titles := titlePattern.FindAllStringSubmatch(body, -1)

	seen := make(map[string]struct{})
	var out []candidate
	for _, m := range ids {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		title := "Video " + id
		if len(out) < len(titles) {
			title = titles[len(out)][1]
		}
		out = append(out, candidate{id: id, title: title})
	}

	c.logger.Debug("video search complete", "query", query, "candidates", len(out))
	return out
}

// fetchCaptions scrapes the video page, locates the embedded caption track
// URL, and fetches the track. Falls back to the embedded description when no
// track exists.
func (c *Client) fetchCaptions(ctx context.Context, watchURL string) (string, bool) {
	res := c.fetcher.Fetch(ctx, watchURL, true)
	if !res.OK() {
		return "", false
	}
	body := string(res.Body)

	if m := captionsPattern.FindStringSubmatch(body); m != nil {
		// baseUrl is JSON-escaped inside the page source.
		trackURL := strings.ReplaceAll(m[1], `\u0026`, "&")
		track := c.fetcher.Fetch(ctx, trackURL, false)
		if track.OK() {
			return cleanCaptionXML(string(track.Body)), true
		}
	}

	// No caption track; the description is better than nothing.
	if m := descPattern.FindStringSubmatch(body); m != nil {
		desc := m[1]
		if len(desc) > 2000 {
			desc = desc[:2000]
		}
		return desc, true
	}

	return "", false
}

// cleanCaptionXML strips timing markup from a caption track, leaving plain
// text.
func cleanCaptionXML(raw string) string {
	text := xmlTagPattern.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(text), " ")
}
