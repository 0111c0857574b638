package adplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/AngelCh415/insights-sync/internal/monitoring"
	"github.com/AngelCh415/insights-sync/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type Options struct {
	BaseURL     string
	APIVersion  string
	MaxPages    int
	PageSize    int
	RatePerSec  float64
	Burst       int
	MaxInFlight int64
	MaxAttempts int
	RetryBase   time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = "https://graph.facebook.com"
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 25
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 8
	}
	if o.Burst <= 0 {
		o.Burst = int(o.RatePerSec)
		if o.Burst < 1 {
			o.Burst = 1
		}
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 6
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 250 * time.Millisecond
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return o
}

type Client struct {
	httpc   HTTPClient
	opts    Options
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	backoff utils.Backoff
	metrics *monitoring.Collector
	log     *zap.Logger
	token   string
}

func New(httpc HTTPClient, opts Options, log *zap.Logger, metrics *monitoring.Collector) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpc:   httpc,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		sem:     semaphore.NewWeighted(opts.MaxInFlight),
		backoff: utils.NewBackoff(opts.RetryBase, opts.MaxAttempts-1),
		metrics: metrics,
		log:     log,
	}
}

func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) MaxPages() int { return c.opts.MaxPages }

type PlatformError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
	Status    int    `json:"-"`
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error %d (%s, http %d): %s", e.Code, e.Type, e.Status, e.Message)
}

func (e *PlatformError) Throttled() bool {
	switch e.Code {
	case 4, 17, 32, 613, 80000, 80003, 80004:
		return true
	}
	return e.Status == http.StatusTooManyRequests
}

func (c *Client) url(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("access_token", c.token)
	}
	u := c.opts.BaseURL
	if c.opts.APIVersion != "" {
		u += "/" + c.opts.APIVersion
	}
	return u + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()
}

func (c *Client) withToken(raw string) string {
	if c.token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("access_token") != "" {
		return raw
	}
	q.Set("access_token", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, dst any) error {
	return c.backoff.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "adplatform: %s: rate limiter", endpoint)
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return eris.Wrapf(err, "adplatform: %s: acquire slot", endpoint)
		}
		defer c.sem.Release(1)

		start := time.Now()
		err := c.fetch(ctx, rawURL, dst)
		c.metrics.RemoteRequest(endpoint, err, time.Since(start))
		if err != nil && attempt > 0 {
			c.log.Debug("platform retry failed", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
}

func (c *Client) fetch(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.withToken(rawURL), nil)
	if err != nil {
		return eris.Wrap(err, "adplatform: build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return utils.Transient(eris.Wrap(err, "adplatform: request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		perr := decodePlatformError(resp.StatusCode, body)
		if perr.Throttled() || resp.StatusCode >= 500 {
			return utils.Transient(perr)
		}
		return perr
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return eris.Wrap(err, "adplatform: decode response")
	}
	return nil
}

func decodePlatformError(status int, body []byte) *PlatformError {
	var env struct {
		Error *PlatformError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		return env.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &PlatformError{Message: msg, Type: "http", Status: status}
}
