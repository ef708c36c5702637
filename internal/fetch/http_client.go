package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ClientOptions for the fetch client.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	RetryMax  int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *zap.Logger
}

// Client wraps retryablehttp with a timeout, a default User-Agent and zap logging.
type Client struct {
	inner     *retryablehttp.Client
	userAgent string
}

// NewClient creates a new Client.
func NewClient(opts ClientOptions) *Client {
	r := retryablehttp.NewClient()
	r.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		r.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		r.RetryWaitMax = opts.RetryWaitMax
	}
	r.HTTPClient.Timeout = opts.Timeout
	// Hand the last response back to the caller instead of a generic
	// "giving up" error so status codes stay visible.
	r.ErrorHandler = retryablehttp.PassthroughErrorHandler

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r.Logger = leveled{s: log.Sugar()}

	ua := opts.UserAgent
	r.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if ua != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", ua)
		}
		if attempt > 0 {
			log.Warn("Retrying request", zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
		}
	}

	return &Client{inner: r, userAgent: ua}
}

// Get issues a GET bound to ctx with optional extra headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.inner.Do(req)
}

// StandardClient exposes the retrying transport as a plain *http.Client for
// libraries that accept one (gofeed, readability).
func (c *Client) StandardClient() *http.Client {
	return c.inner.StandardClient()
}

// NewAPIClient returns a client for LLM API calls. It has no per-attempt
// timeout, so the request context bounds the whole call, and it only retries
// when the server answered 429 or 5xx. A request that failed in transit may
// already have been processed and is never re-sent.
func NewAPIClient(opts ClientOptions) *http.Client {
	opts.Timeout = 0
	c := NewClient(opts)
	c.inner.CheckRetry = retryOnStatus
	return c.StandardClient()
}

func retryOnStatus(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented:
		return true, nil
	}
	return false, nil
}

// UserAgent returns the configured default User-Agent.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// leveled adapts a zap sugared logger to retryablehttp.LeveledLogger.
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
func (l leveled) Info(msg string, keysAndValues ...interface{})  { l.s.Debugw(msg, keysAndValues...) }
func (l leveled) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l leveled) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
