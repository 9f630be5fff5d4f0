package uw

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	drepo "FlowScan/internal/domain/repository"
	"FlowScan/internal/service/cache"
	xhttp "FlowScan/pkg/http"
	"FlowScan/pkg/logger"
)

// Quota is the admission gate every outbound request passes through.
type Quota interface {
	Acquire(ctx context.Context, cost int) error
	ReportOutcome(throttled bool)
}

type Config struct {
	APIKey      string
	BaseURL     string
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	DefaultTTL  time.Duration
}

// Client fetches market data over REST. Successful bodies are cached by
// endpoint+params, concurrent identical requests are coalesced, and every
// request clears the quota governor before it leaves the process.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	quota   Quota
	cache   cache.BytesCache
	metrics drepo.Metrics
	log     *logger.Logger
	group   singleflight.Group
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, hc *xhttp.Client, quota Quota, bc cache.BytesCache, m drepo.Metrics, log *logger.Logger) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    hc,
		quota:   quota,
		cache:   bc,
		metrics: m,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Get returns the raw JSON body for an endpoint, serving from cache when a
// fresh entry exists. ttl <= 0 uses the configured default.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	key := cache.Key(endpoint, params)

	if b, ok, err := c.cache.GetBytes(key); err == nil && ok {
		c.metrics.RecordCache(endpoint, true)
		return b, nil
	}
	c.metrics.RecordCache(endpoint, false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		b, err := c.fetch(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if cerr := c.cache.SetBytes(key, b, ttl); cerr != nil {
			c.log.Warn("response cache write failed",
				logger.String("endpoint", endpoint), logger.Error(cerr))
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error
	throttleRetried := false

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, &RequestError{Endpoint: endpoint, Class: ErrTimeout, Err: err}
			}
		}

		if err := c.quota.Acquire(ctx, 1); err != nil {
			return nil, &RequestError{Endpoint: endpoint, Class: ErrTimeout, Err: err}
		}

		body, status, err := c.send(ctx, endpoint, params)
		if err != nil {
			class := classifyTransport(err)
			c.metrics.RecordRequest(endpoint, "transport_error")
			if class == ErrTimeout {
				return nil, &RequestError{Endpoint: endpoint, Class: ErrTimeout, Err: err}
			}
			lastErr = &RequestError{Endpoint: endpoint, Class: ErrUpstream, Err: err}
			continue
		}

		switch {
		case status == http.StatusOK:
			c.quota.ReportOutcome(false)
			if !json.Valid(body) {
				c.metrics.RecordRequest(endpoint, "malformed")
				return nil, &RequestError{Endpoint: endpoint, Status: status, Class: ErrMalformed}
			}
			c.metrics.RecordRequest(endpoint, "ok")
			return body, nil

		case status == http.StatusTooManyRequests:
			c.quota.ReportOutcome(true)
			c.metrics.RecordThrottle()
			c.metrics.RecordRequest(endpoint, "throttled")
			if throttleRetried {
				return nil, &RequestError{Endpoint: endpoint, Status: status, Class: ErrRateLimited}
			}
			// One more pass through the shrunken governor, then give up.
			throttleRetried = true
			attempt--
			continue

		case status >= 500:
			c.metrics.RecordRequest(endpoint, "upstream_error")
			lastErr = &RequestError{Endpoint: endpoint, Status: status, Class: ErrUpstream}
			continue

		default:
			c.quota.ReportOutcome(false)
			c.metrics.RecordRequest(endpoint, "rejected")
			return nil, &RequestError{Endpoint: endpoint, Status: status, Class: ErrUpstream}
		}
	}
	if lastErr == nil {
		lastErr = &RequestError{Endpoint: endpoint, Class: ErrUpstream}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, endpoint string, params url.Values) ([]byte, int, error) {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + endpoint,
		Headers:     map[string]string{"Authorization": "Bearer " + c.cfg.APIKey, "Accept": "application/json"},
		QueryParams: params,
	})
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << (attempt - 1)
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
