package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/metrics"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
)

const (
	// maxBodyBytes bounds a single page response.
	maxBodyBytes   = 64 << 20
	defaultTimeout = 30 * time.Second
)

// ClientConfig configures the upstream HTTP client.
type ClientConfig struct {
	URL       string
	AppName   string
	UserAgent string
	Timeout   time.Duration
	// Limiter paces every attempt, retries included; nil means unpaced.
	Limiter Limiter
}

// Client POSTs parameter objects to the upstream search endpoint through a
// Colly collector.
type Client struct {
	endpoint      string
	userAgent     string
	baseCollector *colly.Collector
	retry         RetryPolicy
	limiter       Limiter
	sleeper       Sleeper
	logger        *zap.Logger
}

var _ Fetcher = (*Client)(nil)

// attempt captures what the collector callbacks saw for one request.
type attempt struct {
	status int
	body   []byte
	err    error
}

// NewClient validates cfg and builds a Client. A nil transport gets a pooled
// default.
func NewClient(cfg ClientConfig, transport http.RoundTripper, retry RetryPolicy, sleeper Sleeper, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &source.ConfigurationError{Reason: fmt.Sprintf("invalid source url %q", cfg.URL)}
	}
	if cfg.AppName == "" {
		return nil, &source.ConfigurationError{Reason: "source appname is required"}
	}
	q := u.Query()
	q.Set("appname", cfg.AppName)
	u.RawQuery = q.Encode()
	if transport == nil {
		transport = newHTTPTransport()
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if sleeper == nil {
		return nil, fmt.Errorf("sleeper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "reliefweb-corpus/1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBodyBytes),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(timeout)

	return &Client{
		endpoint:      u.String(),
		userAgent:     ua,
		baseCollector: c,
		retry:         retry,
		limiter:       cfg.Limiter,
		sleeper:       sleeper,
		logger:        logger,
	}, nil
}

// Fetch issues one call, retrying transient failures per the retry policy.
// Non-2xx responses become *TransientNetworkError once retries run out;
// undecodable bodies are returned as *source.MalformedResponseError at once.
func (c *Client) Fetch(ctx context.Context, params source.Params) (source.Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return source.Response{}, fmt.Errorf("encode params: %w", err)
	}
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.endpoint); err != nil {
				return source.Response{}, err
			}
		}
		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		var tErr *TransientNetworkError
		if errors.As(err, &tErr) {
			tErr.Attempts = attempt + 1
		}
		if !c.retry.ShouldRetry(err, attempt+1) {
			return source.Response{}, err
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Warn("upstream call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveRetry()
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return source.Response{}, err
		}
	}
}

// do runs one POST on a clone of the base collector so callbacks never leak
// between attempts.
func (c *Client) do(ctx context.Context, body []byte) (source.Response, error) {
	var res attempt
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.userAgent
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = maxBodyBytes

	collector.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json")

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(http.MethodPost, c.endpoint, bytes.NewReader(body), nil, hdr)
	}()

	var reqErr error
	select {
	case <-ctx.Done():
		metrics.ObserveUpstream(0, time.Since(start))
		return source.Response{}, fmt.Errorf("upstream call canceled: %w", ctx.Err())
	case reqErr = <-done:
	}
	metrics.ObserveUpstream(res.status, time.Since(start))

	if res.status == 0 {
		err := reqErr
		if err == nil {
			err = res.err
		}
		if err == nil {
			err = errors.New("no response")
		}
		return source.Response{}, &TransientNetworkError{Err: err}
	}
	if res.status < 200 || res.status > 299 {
		return source.Response{}, &TransientNetworkError{StatusCode: res.status}
	}
	if reqErr != nil {
		return source.Response{}, &TransientNetworkError{StatusCode: res.status, Err: reqErr}
	}
	return source.DecodeResponse(res.body)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
