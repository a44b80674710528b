// Package rest is the transport client for the HAL API. It issues
// requests described by a Request and returns a Response envelope with the
// status, headers and raw entity body.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/pthm/aggui/internal/hal"
	"github.com/pthm/aggui/internal/logger"
)

// Request describes one HTTP call. Entity, when set, is sent as JSON.
// Params are appended to the query string.
type Request struct {
	Method  string
	Path    string
	Entity  any
	Headers map[string]string
	Params  map[string]string
}

// Status is the response status line.
type Status struct {
	Code int
}

// Response is the envelope returned for every successful (2xx) call.
type Response struct {
	Status  Status
	Headers http.Header
	Entity  []byte
}

// ETag returns the entity tag of the response, used for If-Match.
func (r *Response) ETag() string {
	return r.Headers.Get("ETag")
}

// Location returns the Location header, set on 201 Created.
func (r *Response) Location() string {
	return r.Headers.Get("Location")
}

// Doer is implemented by Client and by test doubles.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client issues requests through resty. Idempotent reads are retried with
// exponential backoff on transport errors and 5xx responses.
type Client struct {
	http        *resty.Client
	log         *logger.Logger
	retries     uint64
	initialWait time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRetries sets how many times a failed GET is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = uint64(n)
		}
	}
}

// WithRetryWait sets the first backoff interval.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.initialWait = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		timeout := c.http.GetClient().Timeout
		c.http = resty.NewWithClient(hc).SetTimeout(timeout)
		c.http.SetHeader("Accept", hal.MediaHAL)
	}
}

// New returns a Client with retries enabled by default.
func New(opts ...Option) *Client {
	c := &Client{
		http:        resty.New().SetTimeout(10 * time.Second),
		log:         logger.Nop(),
		retries:     2,
		initialWait: 100 * time.Millisecond,
	}
	c.http.SetHeader("Accept", hal.MediaHAL)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs the request. Non-2xx responses become *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if !idempotentRead(req.Method) || c.retries == 0 {
		return c.once(ctx, req)
	}

	var resp *Response
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialWait
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	err := backoff.RetryNotify(func() error {
		r, err := c.once(ctx, req)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.log.Warn("retrying request", "method", req.Method, "path", req.Path, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	r := c.http.R().SetContext(ctx)
	if req.Entity != nil {
		r.SetHeader("Content-Type", hal.MediaJSON)
		r.SetBody(req.Entity)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Params) > 0 {
		r.SetQueryParams(req.Params)
	}

	start := time.Now()
	res, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	c.log.Debug("api request", "method", req.Method, "path", req.Path,
		"status", res.StatusCode(), "elapsed", time.Since(start))

	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.Path,
			Code:   res.StatusCode(),
			Body:   res.Body(),
		}
	}
	return &Response{
		Status:  Status{Code: res.StatusCode()},
		Headers: res.Header(),
		Entity:  res.Body(),
	}, nil
}

func idempotentRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func retryable(err error) bool {
	code := StatusCode(err)
	if code == 0 {
		return true
	}
	return code >= 500 || code == http.StatusTooManyRequests
}

// Params is a convenience for building query parameter maps.
func Params(kv ...any) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case int:
			out[key] = strconv.Itoa(v)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
