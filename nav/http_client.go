package nav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for map fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a map download at 50 MB.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchMap behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// FetchMap downloads a recorded map and builds its route graph. Transient
// failures are retried with exponential backoff.
func FetchMap(mapURL string, opts ...FetchOption) (*RouteGraph, error) {
	return FetchMapWithContext(context.Background(), mapURL, opts...)
}

// FetchMapWithContext is like FetchMap but accepts a context for cancellation.
func FetchMapWithContext(ctx context.Context, mapURL string, opts ...FetchOption) (*RouteGraph, error) {
	if mapURL == "" {
		return nil, fmt.Errorf("fetch map: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch map: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, client, mapURL)
		var se *StatusError
		if errors.As(err, &se) && se.permanent() {
			return nil, fmt.Errorf("fetch map: %w", err)
		}
		if err != nil {
			Logf("[MAP] Fetch attempt %d/%d failed: %v", attempt+1, cfg.maxRetries, err)
			lastErr = err
			continue
		}

		g, err := ParseMapJSON(body)
		if err != nil {
			// not transient
			return nil, fmt.Errorf("fetch map: %w", err)
		}
		return g, nil
	}

	return nil, fmt.Errorf("fetch map: all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

// StatusError is a map download that got a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.URL, e.Code)
}

// permanent reports client errors that a retry cannot fix.
func (e *StatusError) permanent() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

// LoadMap loads a recorded map from a file path or an http(s) URL.
func LoadMap(ctx context.Context, source string, opts ...FetchOption) (*RouteGraph, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return FetchMapWithContext(ctx, source, opts...)
	}
	return LoadMapFile(source)
}

// doFetch performs a single HTTP GET and returns the response body.
func doFetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}
