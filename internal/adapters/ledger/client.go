// Package ledger provides a resilient client for the append-only ledger
// the pipeline publishes to
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	perr "seriate/internal/platform/errors"
	"seriate/internal/platform/logger"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUA        = "seriate"
	defaultMaxRetry  = 3
	defaultRetryBase = 500 * time.Millisecond

	// queryCeiling bounds any single query response
	queryCeiling = 1000
)

// Options configures the Client
type Options struct {
	// Endpoints are tried in order; the next one takes over when an
	// endpoint exhausts its retries
	Endpoints []string

	UserAgent string

	// Timeout bounds a single attempt, not the whole call
	Timeout time.Duration

	// Retry config per endpoint
	MaxRetries int
	RetryBase  time.Duration
}

// Client talks JSON-RPC style to the ledger with failover and retries
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
	now  func() time.Time
	sleep func(time.Duration)

	// single-flight table for content fetches
	mu      sync.Mutex
	flights map[string]*flight

	// active query session; empty when idle
	searchMu  sync.Mutex
	searchTok string
}

// NewClient creates a Client with sane defaults
func NewClient(o Options) (*Client, error) {
	if len(o.Endpoints) == 0 {
		return nil, perr.InvalidArgf("ledger: at least one endpoint is required")
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:    &http.Client{},
		opts:    o,
		log:     *logger.Named("ledger"),
		now:     time.Now,
		sleep:   time.Sleep,
		flights: map[string]*flight{},
	}, nil
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call walks the endpoint list; each endpoint gets MaxRetries attempts
// with exponential backoff before the next one takes over. Permanent
// errors and not-found short-circuit the whole walk
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: params})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "ledger: encode request")
	}

	var lastErr error
	for _, ep := range c.opts.Endpoints {
		lastErr = c.callEndpoint(ctx, ep, method, body, out)
		if lastErr == nil {
			return nil
		}
		switch perr.CodeOf(lastErr) {
		case perr.ErrorCodeTransportPermanent, perr.ErrorCodeNotFound, perr.ErrorCodeCancelled, perr.ErrorCodeJSON:
			return lastErr
		}
		c.log.Warn().Err(lastErr).Str("endpoint", ep).Str("method", method).Msg("endpoint exhausted, failing over")
	}
	return lastErr
}

func (c *Client) callEndpoint(ctx context.Context, endpoint, method string, body []byte, out any) error {
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoff(attempt - 1))
		}
		if err := ctx.Err(); err != nil {
			return perr.Cancelledf("ledger: %s cancelled", method)
		}

		err := c.attempt(ctx, endpoint, method, body, out)
		if err == nil {
			return nil
		}
		switch perr.CodeOf(err) {
		case perr.ErrorCodeTransportTransient:
			c.log.Warn().Err(err).Int("attempt", attempt+1).Str("endpoint", endpoint).Msg("transient ledger error, retrying")
			continue
		default:
			return err
		}
	}
	return perr.Newf(perr.ErrorCodeTransportTransient, "ledger: %s exhausted %d attempts at %s", method, c.opts.MaxRetries, endpoint)
}

// attempt is one POST with its own timeout
func (c *Client) attempt(ctx context.Context, endpoint, method string, body []byte, out any) error {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "ledger: new request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return perr.Cancelledf("ledger: %s cancelled", method)
		}
		return perr.Wrapf(err, perr.ErrorCodeTransportTransient, "ledger: %s do failed", method)
	}
	defer func() { _ = drainAndClose(resp.Body) }()

	c.log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("latency", c.now().Sub(start)).
		Msg("ledger response")

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return perr.NotFoundf("ledger: %s not found", method)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return perr.Newf(perr.ErrorCodeTransportTransient, "ledger: %s status %d", method, resp.StatusCode)
	default:
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return perr.Newf(perr.ErrorCodeTransportPermanent, "ledger: %s status %d body %s", method, resp.StatusCode, string(tail))
	}

	var rr rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&rr); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "ledger: decode %s response", method)
	}
	if rr.Error != nil {
		return rpcToErr(method, rr.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeJSON, "ledger: decode %s result", method)
		}
	}
	return nil
}

// rpcToErr maps an application-level ledger error onto our codes
func rpcToErr(method string, e *rpcError) error {
	switch e.Code {
	case "not_found":
		return perr.NotFoundf("ledger: %s: %s", method, e.Message)
	case "rate_limited", "busy":
		return perr.Newf(perr.ErrorCodeTransportTransient, "ledger: %s: %s", method, e.Message)
	default:
		return perr.Newf(perr.ErrorCodeTransportPermanent, "ledger: %s: %s (%s)", method, e.Message, e.Code)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	ms := int64(d / time.Millisecond)
	ms = ms << uint(attempt)
	capMs := int64(30 * time.Second / time.Millisecond)
	if ms > capMs {
		ms = capMs
	}
	return time.Duration(ms) * time.Millisecond
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}
