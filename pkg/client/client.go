// Package client is the request dispatcher the UI layer talks through.
//
// It tries progressively more permissive but less capable transports until
// one succeeds: a direct request first, then, when the failure looks like
// a cross-origin read restriction, a fire-and-forget dispatch for writes
// or a script-tag (JSONP-style) GET for reads. Transient failures retry
// the direct path with growing backoff; authentication rejections never
// retry and instead invalidate the local session.
//
// Concurrent calls are independent: there is no queue and no ordering
// guarantee between them, and rapid double-submits are not deduplicated
// here; that guard belongs to the orchestration layer.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	// BaseURL is the single API endpoint, e.g. "https://host/api".
	BaseURL string

	// Timeout bounds each direct attempt. Default 8s.
	Timeout time.Duration

	// CallbackTimeout bounds the script-tag fallback independently of the
	// direct attempts. Default 10s.
	CallbackTimeout time.Duration

	// MaxAttempts is the total number of direct attempts for transient
	// failures. Default 3.
	MaxAttempts int

	// RetryInterval is the first backoff delay; it doubles per retry
	// (1s, 2s, ...). Default 1s.
	RetryInterval time.Duration

	// OnSessionInvalid fires once when the server rejects the current
	// token, so the orchestration layer can send the user back through
	// login. Setting a new token re-arms it.
	OnSessionInvalid func()

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	cfg    Config
	direct TransportStrategy
	fnf    TransportStrategy
	jsonp  *callbackStrategy

	mu        sync.Mutex
	token     string
	sessionOK bool
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}

	return &Client{
		cfg:    cfg,
		direct: &directStrategy{base: cfg.BaseURL, httpc: httpc, timeout: cfg.Timeout},
		fnf:    &fireAndForgetStrategy{base: cfg.BaseURL, httpc: httpc, timeout: cfg.Timeout},
		jsonp:  newCallbackStrategy(cfg.BaseURL, httpc, cfg.CallbackTimeout),
	}, nil
}

// SetToken stores the bearer token attached to every protected call and
// re-arms the session-invalidation callback.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.sessionOK = token != ""
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	fire := c.sessionOK
	c.sessionOK = false
	c.mu.Unlock()
	if fire && c.cfg.OnSessionInvalid != nil {
		c.cfg.OnSessionInvalid()
	}
}

// envelope is the part of every response the dispatcher itself inspects.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// rejectionKind maps a decoded response onto the failure taxonomy.
// The bool reports whether the response is a rejection at all.
func rejectionKind(status int, env envelope) (Kind, bool) {
	switch {
	case env.Error == "unauthenticated" || status == http.StatusUnauthorized:
		return KindUnauthenticated, true
	case env.Error == "forbidden" || status == http.StatusForbidden:
		return KindForbidden, true
	case env.Error == "not_found" || status == http.StatusNotFound:
		return KindNotFound, true
	case env.Error == "bad_request" || status == http.StatusBadRequest:
		return KindBadRequest, true
	case status >= 500 || (!env.Success && env.Error != ""):
		return KindTransient, true
	default:
		return 0, false
	}
}

// call runs the full transport chain for one logical action.
func (c *Client) call(ctx context.Context, action string, params url.Values, write bool) (Response, error) {
	req := Request{Write: write, Params: url.Values{}}
	for k, v := range params {
		req.Params[k] = v
	}
	req.Params.Set("action", action)
	if action != "health" {
		req.Params.Set("token", c.currentToken())
	}

	var (
		res      Response
		opaque   bool
		rejected *Error
	)

	attempt := func() error {
		r, err := c.direct.Do(ctx, req)
		if err != nil {
			if errors.Is(err, ErrOpaqueResponse) {
				opaque = true
				return backoff.Permanent(err)
			}
			return err // transient, eligible for retry
		}

		var env envelope
		if jsonErr := json.Unmarshal(r.Body, &env); jsonErr != nil {
			if r.Status >= 400 {
				// A readable rejection with a non-JSON body (plain-text
				// rate limit, proxy error page). The server definitively
				// said no; retry the direct path, never fire-and-forget.
				return fmt.Errorf("status %d with non-JSON body", r.Status)
			}
			// Got 2xx/3xx back, but not our JSON: the redirect-happy
			// endpoint behaving like a cross-origin read failure.
			opaque = true
			return backoff.Permanent(fmt.Errorf("undecodable body: %w", ErrOpaqueResponse))
		}
		if kind, bad := rejectionKind(r.Status, env); bad {
			if kind == KindTransient {
				return fmt.Errorf("server error: %s", env.Error)
			}
			if kind == KindUnauthenticated || kind == KindForbidden {
				c.invalidateSession()
			}
			rejected = &Error{Kind: kind, Op: action, Err: errors.New(env.Error)}
			return backoff.Permanent(rejected)
		}
		res = r
		return nil
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(c.retrySchedule(), uint64(c.cfg.MaxAttempts-1)), ctx)
	err := backoff.Retry(attempt, schedule)

	switch {
	case err == nil:
		return res, nil
	case rejected != nil:
		return Response{}, rejected
	case opaque && write:
		return c.fireAndForget(ctx, action, req)
	case opaque:
		return c.callbackRead(ctx, action, req)
	default:
		return Response{}, &Error{Kind: KindTransient, Op: action, Err: err}
	}
}

func (c *Client) retrySchedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// fireAndForget is attempted exactly once. Its "success" only means the
// dispatch raised no network-level error; the write may still have failed
// server-side with no way to know.
func (c *Client) fireAndForget(ctx context.Context, action string, req Request) (Response, error) {
	r, err := c.fnf.Do(ctx, req)
	if err != nil {
		return Response{}, &Error{Kind: KindTransient, Op: action, Err: err}
	}
	return r, nil
}

func (c *Client) callbackRead(ctx context.Context, action string, req Request) (Response, error) {
	r, err := c.jsonp.Do(ctx, req)
	if err != nil {
		return Response{}, &Error{Kind: KindTransient, Op: action, Err: err}
	}

	var env envelope
	if jsonErr := json.Unmarshal(r.Body, &env); jsonErr != nil {
		return Response{}, &Error{Kind: KindTransient, Op: action, Err: jsonErr}
	}
	if kind, bad := rejectionKind(r.Status, env); bad {
		if kind == KindUnauthenticated || kind == KindForbidden {
			c.invalidateSession()
		}
		return Response{}, &Error{Kind: kind, Op: action, Err: errors.New(env.Error)}
	}
	return r, nil
}

// Order and Stats mirror the wire shapes; the client is consumed by UI
// code that never sees the server's internal types.
type Order struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	OwnerEmail string    `json:"owner_email"`
	OwnerName  string    `json:"owner_name"`
	Category   string    `json:"category"`
	Amount     int64     `json:"amount"`
	Note       string    `json:"note"`
}

type Stats struct {
	TodayCount   int   `json:"todayCount"`
	TodayRevenue int64 `json:"todayRevenue"`
	MonthRevenue int64 `json:"monthRevenue"`
	TotalOrders  int   `json:"totalOrders"`
}

// WriteAck reports the outcome of a write. Order is nil and Probable true
// when the fire-and-forget path ran: the server most likely acted, but the
// response was unobservable.
type WriteAck struct {
	Order    *Order
	Probable bool
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.call(ctx, "health", nil, false)
	return err
}

func (c *Client) ListOrders(ctx context.Context, date string, limit int) ([]Order, error) {
	params := url.Values{}
	if date != "" {
		params.Set("date", date)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	res, err := c.call(ctx, "orders", params, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Orders []Order `json:"orders"`
		Total  int     `json:"total"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, &Error{Kind: KindTransient, Op: "orders", Err: err}
	}
	if payload.Orders == nil {
		payload.Orders = []Order{}
	}
	return payload.Orders, nil
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	res, err := c.call(ctx, "stats", nil, false)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	if err := json.Unmarshal(res.Body, &st); err != nil {
		return Stats{}, &Error{Kind: KindTransient, Op: "stats", Err: err}
	}
	return st, nil
}

func (c *Client) CreateOrder(ctx context.Context, category string, amount int64, note string) (WriteAck, error) {
	params := url.Values{
		"category": {category},
		"amount":   {strconv.FormatInt(amount, 10)},
		"note":     {note},
	}

	res, err := c.call(ctx, "create", params, true)
	if err != nil {
		return WriteAck{}, err
	}
	if res.Probable {
		return WriteAck{Probable: true}, nil
	}

	var payload struct {
		Order *Order `json:"order"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return WriteAck{}, &Error{Kind: KindTransient, Op: "create", Err: err}
	}
	return WriteAck{Order: payload.Order}, nil
}

// DeleteOrder removes one of the caller's orders. A KindNotFound error
// means the row is already gone; callers should treat that as a benign
// terminal state, not a failure.
func (c *Client) DeleteOrder(ctx context.Context, id string) (WriteAck, error) {
	res, err := c.call(ctx, "delete", url.Values{"id": {id}}, true)
	if err != nil {
		return WriteAck{}, err
	}
	return WriteAck{Probable: res.Probable}, nil
}
