package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"r4r-detector/internal/errs"
	"r4r-detector/internal/models"
)

// Client handles communication with the external reputation provider.
type Client struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// Config holds reputation provider configuration.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // requests per window
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	PageSize        int           `yaml:"page_size"`
}

// RateLimiter manages API rate limiting with a refilling token bucket.
type RateLimiter struct {
	tokens chan struct{}
	ticker *time.Ticker
}

// NewRateLimiter creates a rate limiter allowing requests per window.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		tokens: make(chan struct{}, requests),
	}

	for i := 0; i < requests; i++ {
		rl.tokens <- struct{}{}
	}

	rl.ticker = time.NewTicker(window / time.Duration(requests))
	go func() {
		for range rl.ticker.C {
			select {
			case rl.tokens <- struct{}{}:
			default:
				// bucket full
			}
		}
	}()

	return rl
}

// Wait blocks until a request slot is available or the context ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reviewRecord is the provider's wire shape for a review.
type reviewRecord struct {
	ID        string `json:"id"`
	Author    string `json:"author_userkey"`
	Subject   string `json:"subject_userkey"`
	Sentiment string `json:"sentiment"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

type reviewsResponse struct {
	Data []reviewRecord `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextCursor  string `json:"next_cursor"`
	} `json:"meta"`
}

type vouchesResponse struct {
	Given struct {
		Count  int     `json:"count"`
		Amount float64 `json:"amount"`
	} `json:"given"`
	Received struct {
		Count  int     `json:"count"`
		Amount float64 `json:"amount"`
	} `json:"received"`
}

type accountAgeResponse struct {
	Days int `json:"days"`
}

// NewClient creates a new reputation provider client.
func NewClient(config Config) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 300
	}
	if config.RateLimitWindow == 0 {
		config.RateLimitWindow = 15 * time.Minute
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.PageSize == 0 {
		config.PageSize = 200
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		rateLimiter: NewRateLimiter(config.RateLimit, config.RateLimitWindow),
	}
}

// ReviewsReceived fetches and normalizes all reviews written about userkey.
func (c *Client) ReviewsReceived(ctx context.Context, userkey string) ([]models.Review, error) {
	return c.fetchReviews(ctx, userkey, "received")
}

// ReviewsGiven fetches and normalizes all reviews written by userkey.
func (c *Client) ReviewsGiven(ctx context.Context, userkey string) ([]models.Review, error) {
	return c.fetchReviews(ctx, userkey, "given")
}

func (c *Client) fetchReviews(ctx context.Context, userkey, direction string) ([]models.Review, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/reviews", c.config.BaseURL, url.PathEscape(userkey))

	var all []models.Review
	cursor := ""
	for {
		params := url.Values{}
		params.Set("direction", direction)
		params.Set("limit", fmt.Sprintf("%d", c.config.PageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page reviewsResponse
		if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), userkey, &page); err != nil {
			return nil, err
		}

		reviews, err := NormalizeReviews(page.Data)
		if err != nil {
			return nil, err
		}
		all = append(all, reviews...)

		cursor = page.Meta.NextCursor
		if cursor == "" {
			break
		}
	}

	return all, nil
}

// Vouches fetches aggregate vouch counts and amounts for userkey.
func (c *Client) Vouches(ctx context.Context, userkey string) (models.VouchStats, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/vouches", c.config.BaseURL, url.PathEscape(userkey))

	var resp vouchesResponse
	if err := c.getJSON(ctx, endpoint, userkey, &resp); err != nil {
		return models.VouchStats{}, err
	}

	return models.VouchStats{
		GivenCount:     resp.Given.Count,
		GivenAmount:    resp.Given.Amount,
		ReceivedCount:  resp.Received.Count,
		ReceivedAmount: resp.Received.Amount,
	}, nil
}

// AccountAge fetches the account age in days. The endpoint is optional on
// the provider side; when it is absent the second return is false and the
// caller falls back to the established-account tier.
func (c *Client) AccountAge(ctx context.Context, userkey string) (int, bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/account-age", c.config.BaseURL, url.PathEscape(userkey))

	var resp accountAgeResponse
	err := c.getJSON(ctx, endpoint, userkey, &resp)
	if err != nil {
		// Age is an optional signal: a missing endpoint is not a failure.
		if errors.Is(err, errs.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return resp.Days, true, nil
}

// getJSON performs an authenticated GET with one internal retry on 5xx and
// transport errors, decoding the response body into out.
func (c *Client) getJSON(ctx context.Context, fullURL, userkey string, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errs.FromContext(err, "provider request")
	}

	resp, err := c.do(ctx, fullURL)
	if errors.Is(err, errs.ErrUpstream) {
		select {
		case <-ctx.Done():
			return errs.FromContext(ctx.Err(), "provider request")
		case <-time.After(c.config.RetryBackoff):
		}
		resp, err = c.do(ctx, fullURL)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.DataFormat("decoding provider response for %q", userkey)
	}

	return nil
}

// do issues a single request and maps status codes onto the taxonomy.
// Retryable failures (transport errors, 5xx) come back as ErrUpstream;
// the caller decides whether to retry.
func (c *Client) do(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "r4r-detector/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.FromContext(ctx.Err(), "provider request")
		}
		return nil, errs.Upstream(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", fullURL, errs.ErrNotFound)
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, errs.Upstream(fmt.Errorf("provider returned status %d", resp.StatusCode))
	default:
		resp.Body.Close()
		return nil, errs.DataFormat("provider returned unexpected status %d", resp.StatusCode)
	}
}
