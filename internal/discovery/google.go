package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/nicheradar/nicheradar/pkg/httpclient"
)

// excludedDomains are result hosts that are themselves search-engine result
// pages and therefore not scrapable sources.
var excludedDomains = []string{"google.com"}

// GoogleCSE queries the Google Custom Search JSON API.
type GoogleCSE struct {
	apiKey  string
	cx      string
	baseURL string
	client  *httpclient.Client
	logger  *slog.Logger
}

// NewGoogleCSE creates a Custom Search client. baseURL defaults to the public
// endpoint and is overridable for tests.
func NewGoogleCSE(apiKey, cx, baseURL string, client *httpclient.Client, logger *slog.Logger) *GoogleCSE {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleCSE{apiKey: apiKey, cx: cx, baseURL: baseURL, client: client, logger: logger}
}

type cseResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search issues one query and returns ranked candidates. Zero results is not
// an error. Results on excluded domains are dropped.
func (g *GoogleCSE) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(limit))

	resp, err := g.client.Get(ctx, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, body)
	}

	var parsed cseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	candidates := make([]Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" || isExcluded(item.Link) {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Rank:    len(candidates),
		})
	}

	g.logger.Debug("search complete", "query", query, "raw", len(parsed.Items), "kept", len(candidates))
	return candidates, nil
}

func isExcluded(link string) bool {
	for _, domain := range excludedDomains {
		if strings.Contains(link, domain) {
			return true
		}
	}
	return false
}
