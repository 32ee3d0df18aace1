// Package catalog resolves marketplace product ids into product snapshots
// through a hosted product-data API. Resolution is partial-success: ids that
// cannot be resolved are dropped, never escalated.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nicheradar/nicheradar/internal/evidence"
	"github.com/nicheradar/nicheradar/pkg/httpclient"
)

const maxReviewsPerProduct = 5

// Config holds provider credentials and quota settings.
type Config struct {
	// APIKey authenticates against the product-data API.
	APIKey string
	// Host is the API host name, sent alongside the key.
	Host string
	// BaseURL overrides the endpoint, for tests.
	BaseURL string
	// Timeout bounds each API call. Default 30s.
	Timeout time.Duration
	// RequestsPerSecond throttles calls to stay inside the provider quota.
	// Default 1.
	RequestsPerSecond float64
	// IncludeReviews adds a second call per id to sample customer reviews.
	IncludeReviews bool
}

// Client fetches product snapshots.
type Client struct {
	client  *httpclient.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

// New creates a catalog client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("catalog: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("catalog: build client: %w", err)
	}

	return &Client{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Fetch resolves each id into a product snapshot. An empty id list returns
// immediately without touching the network. Unresolvable ids are dropped.
func (c *Client) Fetch(ctx context.Context, ids []string, marketplace string) []evidence.Product {
	if len(ids) == 0 {
		return nil
	}
	country := countryCode(marketplace)

	products := make([]evidence.Product, 0, len(ids))
	for _, id := range ids {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}

		product, err := c.fetchOne(ctx, id, country)
		if err != nil {
			c.logger.Debug("product lookup failed, dropping id", "id", id, "err", err)
			continue
		}

		if c.cfg.IncludeReviews {
			product.Reviews = c.fetchReviews(ctx, id, country)
		}
		products = append(products, product)
	}

	c.logger.Info("catalog fetch finished", "requested", len(ids), "resolved", len(products))
	return products
}

type detailResponse struct {
	Status string `json:"status"`
	Data   struct {
		ASIN       string   `json:"asin"`
		Title      string   `json:"product_title"`
		Price      string   `json:"product_price"`
		StarRating string   `json:"product_star_rating"`
		NumRatings int      `json:"product_num_ratings"`
		About      []string `json:"about_product"`
	} `json:"data"`
}

func (c *Client) fetchOne(ctx context.Context, id, country string) (evidence.Product, error) {
	params := url.Values{}
	params.Set("asin", id)
	params.Set("country", country)

	var parsed detailResponse
	if err := c.getJSON(ctx, "/product-details?"+params.Encode(), &parsed); err != nil {
		return evidence.Product{}, err
	}
	if parsed.Status != "OK" || parsed.Data.Title == "" {
		return evidence.Product{}, fmt.Errorf("provider returned status %q for id %s", parsed.Status, id)
	}

	rating, _ := strconv.ParseFloat(parsed.Data.StarRating, 64)
	return evidence.Product{
		ID:          id,
		Title:       parsed.Data.Title,
		Price:       parsed.Data.Price,
		Rating:      rating,
		ReviewCount: parsed.Data.NumRatings,
		Features:    parsed.Data.About,
	}, nil
}

type reviewsResponse struct {
	Status string `json:"status"`
	Data   struct {
		Reviews []struct {
			StarRating string `json:"review_star_rating"`
			Title      string `json:"review_title"`
			Comment    string `json:"review_comment"`
		} `json:"reviews"`
	} `json:"data"`
}

// fetchReviews samples customer reviews for one product. Failures degrade to
// no reviews rather than dropping the product.
func (c *Client) fetchReviews(ctx context.Context, id, country string) []evidence.Review {
	params := url.Values{}
	params.Set("asin", id)
	params.Set("country", country)
	params.Set("page", "1")

	var parsed reviewsResponse
	if err := c.getJSON(ctx, "/product-reviews?"+params.Encode(), &parsed); err != nil {
		c.logger.Debug("review lookup failed", "id", id, "err", err)
		return nil
	}

	reviews := make([]evidence.Review, 0, maxReviewsPerProduct)
	for _, r := range parsed.Data.Reviews {
		if len(reviews) >= maxReviewsPerProduct {
			break
		}
		rating, _ := strconv.ParseFloat(r.StarRating, 64)
		excerpt := r.Comment
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}
		reviews = append(reviews, evidence.Review{Rating: rating, Title: r.Title, Excerpt: excerpt})
	}
	return reviews
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	headers := map[string]string{
		"X-RapidAPI-Key":  c.cfg.APIKey,
		"X-RapidAPI-Host": c.cfg.Host,
	}
	resp, err := c.client.Get(ctx, c.cfg.BaseURL+path, headers)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// countryCode maps a marketplace name to the provider's country parameter.
func countryCode(marketplace string) string {
	switch strings.ToUpper(marketplace) {
	case "", "US", "AMAZON.COM":
		return "US"
	case "UK", "AMAZON.CO.UK":
		return "GB"
	case "DE", "AMAZON.DE":
		return "DE"
	case "CA", "AMAZON.CA":
		return "CA"
	default:
		return strings.ToUpper(marketplace)
	}
}
