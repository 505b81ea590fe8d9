package overdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const defaultThunderURL = "https://thunder.api.overdrive.com"

// defaultUserAgent matches a desktop browser so the CDN serves the same
// responses the reading apps see.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrNotFound is returned when a title does not exist in the catalog.
var ErrNotFound = errors.New("title not found")

// Client talks to the vendor's public catalog API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRetries sets how many times a failed connection is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// NewClient creates a catalog client. Requests are rate limited to stay
// under the vendor's abuse thresholds.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultThunderURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		retries: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the header value the client sends, so asset downloads
// can present the same identity.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Media fetches the catalog record for a title id.
func (c *Client) Media(ctx context.Context, titleID string) (*MediaInfo, error) {
	u := fmt.Sprintf("%s/v2/media/%s?x-client-id=dewey", c.baseURL, url.PathEscape(titleID))

	var media MediaInfo
	if err := c.getJSON(ctx, u, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// getJSON performs a rate-limited GET and decodes the JSON body into v.
// Connection errors are retried; HTTP errors are not.
func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("execute request: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("catalog API error: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

// resizeEndpoint serves square recrops of any CDN-hosted cover path.
const resizeEndpoint = "https://ic.od-cdn.com/resize"

// SquareCoverURL rewrites a cover href to the CDN resize endpoint,
// producing a square crop of the given size. Returns the original href
// when it cannot be rewritten.
func SquareCoverURL(href string, size int) string {
	u, err := url.Parse(href)
	if err != nil || u.Path == "" {
		return href
	}
	q := url.Values{}
	q.Set("type", "auto")
	q.Set("width", fmt.Sprint(size))
	q.Set("height", fmt.Sprint(size))
	q.Set("force", "true")
	q.Set("quality", "80")
	q.Set("url", u.Path)
	return resizeEndpoint + "?" + q.Encode()
}
