package fetchkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nicheradar/nicheradar/internal/fingerprint"
	"github.com/nicheradar/nicheradar/internal/metrics"
	"github.com/nicheradar/nicheradar/pkg/httpclient"
	"github.com/nicheradar/nicheradar/pkg/ratelimit"
	"github.com/nicheradar/nicheradar/pkg/useragent"
)

// Result captures the outcome of one fetch. A failed fetch is a value, not an
// error: Error is non-empty and Body is nil. Callers decide fallback policy.
type Result struct {
	URL        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Blocked    bool
	BlockedBy  string // e.g. "Cloudflare", "DataDome"
	Direct     bool   // true when the direct-fetch fallback produced the body
	Duration   time.Duration
	Error      string // non-empty if the fetch failed
}

// OK reports whether the fetch produced usable content.
func (r *Result) OK() bool {
	return r.Error == "" && r.StatusCode == http.StatusOK && !r.Blocked
}

// Config configures the retrying fetcher.
type Config struct {
	APIKey  string
	BaseURL string // render provider endpoint
	// Timeout bounds a single attempt. Rendered fetches are slow; default 90s.
	Timeout     time.Duration
	MaxAttempts int           // default 3
	Backoff     time.Duration // base backoff, doubled per attempt; default 1s
	CountryCode string        // default "us"
	Limiter     *ratelimit.Limiter
	Logger      *slog.Logger

	// DirectFallback enables a last-ditch direct fetch with a browser TLS
	// fingerprint when the render provider itself keeps failing.
	DirectFallback bool
	Fingerprint    fingerprint.Profile
	UAPool         *useragent.Pool
}

// Fetcher performs single URL fetches through a render provider with bounded
// retries, exponential backoff, and richness degradation on later attempts.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	direct *httpclient.Client
	logger *slog.Logger
}

// New initializes a Fetcher. A single underlying client is held across
// requests so connection pooling persists for the lifetime of the Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fetchkit: render provider base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "us"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	var direct *httpclient.Client
	if cfg.DirectFallback {
		transport, err := fingerprint.Transport(cfg.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("setup direct transport: %w", err)
		}
		direct, err = httpclient.New(httpclient.Config{
			Timeout:      30 * time.Second,
			MaxRedirects: 5,
			UseCookieJar: true,
			Transport:    transport,
		})
		if err != nil {
			return nil, fmt.Errorf("create direct client: %w", err)
		}
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		direct: direct,
		logger: cfg.Logger,
	}, nil
}

// serpFragments are URL shapes the render provider treats as search engine
// result pages and routes through its search-capable proxy tier.
var serpFragments = []string{
	"google.com/search",
	"youtube.com/results",
	"reddit.com/search",
}

func (f *Fetcher) providerURL(target string, renderJS, premium bool) string {
	params := url.Values{}
	params.Set("api_key", f.cfg.APIKey)
	params.Set("url", target)
	params.Set("render_js", fmt.Sprintf("%t", renderJS))
	params.Set("premium_proxy", fmt.Sprintf("%t", premium))
	params.Set("country_code", f.cfg.CountryCode)
	if renderJS {
		params.Set("wait", "5000")
		params.Set("wait_for", "networkidle")
	}
	for _, frag := range serpFragments {
		if strings.Contains(target, frag) {
			params.Set("custom_google", "true")
			break
		}
	}
	return f.cfg.BaseURL + "?" + params.Encode()
}

// Fetch retrieves the target URL. Retries up to the attempt ceiling with
// exponential backoff; a 4xx provider rejection short-circuits immediately
// since it will not succeed on retry. From the second attempt on, premium
// routing is disabled to raise the odds against a misbehaving endpoint.
func (f *Fetcher) Fetch(ctx context.Context, target string, renderJS bool) *Result {
	start := time.Now()
	result := &Result{URL: target}

	var lastErr string
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := f.sleep(ctx, f.cfg.Backoff<<(attempt-1)); err != nil {
				result.Error = fmt.Sprintf("canceled during backoff: %v", err)
				result.Duration = time.Since(start)
				return result
			}
		}

		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx); err != nil {
				result.Error = fmt.Sprintf("rate limiter: %v", err)
				result.Duration = time.Since(start)
				return result
			}
		}

		// Degrade richness after the first failed attempt
		premium := attempt == 0
		reqURL := f.providerURL(target, renderJS, premium)

		attemptStart := time.Now()
		status, headers, body, err := doGet(ctx, f.client, reqURL, nil)

		if err != nil {
			metrics.RecordFetch("render", 0, false, time.Since(attemptStart), 0)
			lastErr = err.Error()
			f.logger.Warn("fetch attempt failed", "url", target, "attempt", attempt+1, "err", err)
			continue
		}

		switch {
		case status == http.StatusOK:
			result.StatusCode = status
			result.Headers = headers
			result.Body = body
			result.Duration = time.Since(start)
			Classify(result)
			metrics.RecordFetch("render", status, result.Blocked, time.Since(attemptStart), len(body))
			if result.Blocked {
				f.logger.Debug("target blocked by bot protection", "url", target, "src", result.BlockedBy)
			}
			return result
		case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
			// Bad request or hard block: retrying will not help.
			metrics.RecordFetch("render", status, false, time.Since(attemptStart), len(body))
			result.StatusCode = status
			result.Error = fmt.Sprintf("provider rejected request (status %d)", status)
			result.Duration = time.Since(start)
			return result
		default:
			metrics.RecordFetch("render", status, false, time.Since(attemptStart), len(body))
			lastErr = fmt.Sprintf("provider returned status %d", status)
			f.logger.Warn("fetch attempt failed", "url", target, "attempt", attempt+1, "status", status)
		}
	}

	if f.direct != nil {
		f.logger.Debug("render provider exhausted, trying direct fetch", "url", target)
		if direct := f.directFetch(ctx, target); direct != nil {
			direct.Duration = time.Since(start)
			return direct
		}
	}

	result.Error = fmt.Sprintf("all %d attempts failed: %s", f.cfg.MaxAttempts, lastErr)
	result.Duration = time.Since(start)
	return result
}

// directFetch bypasses the render provider entirely, presenting a browser TLS
// fingerprint and a rotating User-Agent. Returns nil when it cannot do better
// than the provider did.
func (f *Fetcher) directFetch(ctx context.Context, target string) *Result {
	headers := map[string]string{
		"User-Agent":      f.cfg.UAPool.GetSequential(),
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}

	start := time.Now()
	status, respHeaders, body, err := doGet(ctx, f.direct, target, headers)
	if err != nil || status != http.StatusOK {
		metrics.RecordFetch("direct", status, false, time.Since(start), len(body))
		return nil
	}

	result := &Result{
		URL:        target,
		StatusCode: status,
		Headers:    respHeaders,
		Body:       body,
		Direct:     true,
	}
	Classify(result)
	metrics.RecordFetch("direct", status, result.Blocked, time.Since(start), len(body))
	return result
}

func doGet(ctx context.Context, client *httpclient.Client, target string, headers map[string]string) (int, map[string][]string, []byte, error) {
	resp, err := client.Get(ctx, target, headers)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
