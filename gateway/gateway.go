// Package gateway is the single outbound path to the healthcare-service
// backend. Every failure is classified into an *Error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/svenskhalsovard/storefront/config"
	"github.com/svenskhalsovard/storefront/random"
)

const (
	RequestIDHeader      = "X-Request-Id"
	IdempotencyKeyHeader = "Idempotency-Key"

	maxResponseBytes = 1 << 20
)

type Client struct {
	baseURL   string
	http      *http.Client
	log       logrus.FieldLogger
	metrics   *Metrics
	breaker   *gobreaker.CircuitBreaker[struct{}]
	requestID func(ctx context.Context) string
}

type Option func(*Client)

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRequestID forwards the id returned by fn as X-Request-Id.
func WithRequestID(fn func(ctx context.Context) string) Option {
	return func(c *Client) { c.requestID = fn }
}

// WithHTTPClient replaces the underlying client. Its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(cfg config.Gateway, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}

	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, log)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(cfg config.Breaker, log logrus.FieldLogger) *gobreaker.CircuitBreaker[struct{}] {
	st := gobreaker.Settings{
		Name:        "backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Only an unreachable or failing backend trips the breaker, a
		// rejected request is the caller's problem.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			ge, ok := AsError(err)
			if !ok {
				return false
			}
			return ge.Code != CodeNetwork && ge.Status < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

// call sends in as JSON to path and decodes the response into out. endpoint
// is the route template used as the metrics label.
func (c *Client) call(ctx context.Context, method, endpoint, path string, in, out any) error {
	if c.breaker == nil {
		return c.send(ctx, method, endpoint, path, in, out)
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.send(ctx, method, endpoint, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.observe(endpoint, string(CodeCircuitOpen), 0)
		return &Error{Code: CodeCircuitOpen, Message: msgCircuitOpen, Err: err}
	}
	return err
}

func (c *Client) send(ctx context.Context, method, endpoint, path string, in, out any) (err error) {
	start := time.Now()
	status := 0

	log := c.log.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
	})

	defer func() {
		code := strconv.Itoa(status)
		if ge, ok := AsError(err); ok && status == 0 {
			code = string(ge.Code)
		}
		since := time.Since(start)
		c.metrics.observe(endpoint, code, since)

		log = log.WithFields(logrus.Fields{
			"statuscode": status,
			"since":      since.Nanoseconds(),
		})
		if err != nil {
			log.WithError(err).Warn("backend call failed")
			return
		}
		log.Debug("backend call completed")
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return requestError(fmt.Errorf("encoding request body: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return requestError(err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set(IdempotencyKeyHeader, random.Key())
	}
	if c.requestID != nil {
		if rid := c.requestID(ctx); rid != "" {
			req.Header.Set(RequestIDHeader, rid)
			log = log.WithField("req_id", rid)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(fmt.Errorf("reading response body: %w", err))
	}

	if status < 200 || status > 299 {
		return statusError(status, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := decodeData(data, out); err != nil {
		return &Error{Code: CodeUnknown, Message: msgUnknown, Status: status, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// decodeData unwraps the backend's {success, data} envelope when present.
func decodeData(data []byte, out any) error {
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Success != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(data, out)
}
