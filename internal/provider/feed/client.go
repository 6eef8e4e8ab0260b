// Package feed reads regional deal listings from an HTTP JSON feed.
//
// The feed pages through /regions/{code}/deals?page=N and reports the next
// page in meta.next_page. Rate limiting is handled via a token bucket
// limiter.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Client is the HTTP client for the deal feed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a feed client allowing requestsPerSecond requests.
func NewClient(baseURL, apiKey string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:     logger,
		now:        time.Now,
	}
}

// pageResponse is the feed's response wrapper.
type pageResponse struct {
	Data []model.RawObservation `json:"data"`
	Meta struct {
		NextPage *int `json:"next_page"`
	} `json:"meta"`
}

func (c *Client) Name() string { return "feed" }

// Fetch reads up to pages pages of a region's discounted listings. A page
// failure after the first keeps what was read so far.
func (c *Client) Fetch(ctx context.Context, region string, pages int) ([]model.RawObservation, error) {
	if pages <= 0 {
		pages = 1
	}
	var out []model.RawObservation
	page := 1
	for fetched := 0; fetched < pages; fetched++ {
		resp, err := c.get(ctx, "/regions/"+url.PathEscape(region)+"/deals", url.Values{"page": {strconv.Itoa(page)}})
		if err != nil {
			if fetched == 0 {
				return nil, err
			}
			c.logger.Warn("Feed page failed, keeping earlier pages", "region", region, "page", page, "error", err)
			break
		}
		scrapedAt := c.now().UTC()
		for _, r := range resp.Data {
			if r.RegionCode == "" {
				r.RegionCode = region
			}
			if r.ScrapedAt.IsZero() {
				r.ScrapedAt = scrapedAt
			}
			out = append(out, r)
		}
		if resp.Meta.NextPage == nil {
			break
		}
		page = *resp.Meta.NextPage
	}
	c.logger.Debug("Feed fetched", "region", region, "observations", len(out))
	return out, nil
}

// get performs a rate-limited GET request to a feed endpoint.
func (c *Client) get(ctx context.Context, path string, params url.Values) (*pageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	var result pageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
