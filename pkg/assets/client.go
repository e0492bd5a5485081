// Package assets provides a client for the binary asset service that hosts
// item images.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

// Client stores objects in the asset service.
type Client interface {
	// Put uploads data under key, replacing any object already stored there.
	Put(ctx context.Context, key, contentType string, data []byte) (*Object, error)
}

// Object describes a stored object.
type Object struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Option configures the assets client.
type Option func(*httpClient)

// WithBaseURL sets the service base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. A non-positive rps disables the
// limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.policy = p
	}
}

// WithBreaker guards uploads with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewClient creates an asset service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey: apiKey,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 2),
		policy:  resilience.Policy{MaxAttempts: 3},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy.OnRetry = resilience.LogRetries("assets.put")
	return c
}

func (c *httpClient) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	if c.baseURL == "" {
		return nil, eris.New("assets: base url not configured")
	}
	if key == "" {
		return nil, eris.New("assets: object key is required")
	}

	obj, err := resilience.Retry(ctx, c.policy, func(ctx context.Context) (*Object, error) {
		var out *Object
		call := func(ctx context.Context) error {
			var err error
			out, err = c.put(ctx, key, contentType, data)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, call)
		} else {
			err = call(ctx)
		}
		return out, err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "assets: put %s", key)
	}
	return obj, nil
}

func (c *httpClient) put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "assets: rate limit wait")
		}
	}

	reqURL := fmt.Sprintf("%s/objects/%s", c.baseURL, escapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "assets: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "assets: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "assets: read response body")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		statusErr := eris.Errorf("assets: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.RetryableStatus(resp.StatusCode) {
			re := resilience.Retryable(statusErr, resp.StatusCode)
			re.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
			return nil, re
		}
		return nil, statusErr
	}

	obj := &Object{Key: key, Size: int64(len(data))}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, obj); err != nil {
			return nil, eris.Wrap(err, "assets: unmarshal response")
		}
	}
	if obj.URL == "" {
		obj.URL = reqURL
	}
	zap.L().Debug("assets: stored object", zap.String("key", key), zap.Int64("size", obj.Size))
	return obj, nil
}

// escapeKey escapes each path segment of key, keeping the separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
