package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordedCall captures one request the fake transport saw.
type recordedCall struct {
	method string
	params url.Values
}

// scriptedTransport answers requests via respond and records every call.
type scriptedTransport struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(call int, params url.Values) (*http.Response, error)
}

func (s *scriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	params := r.URL.Query()
	if r.Method == http.MethodPost && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		params, err = url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, recordedCall{method: r.Method, params: params})
	respond := s.respond
	s.mu.Unlock()

	return respond(n, params)
}

func (s *scriptedTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedTransport) call(i int) recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// brokenBody fails on read, like a response whose body the environment
// refuses to expose.
type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("read blocked") }
func (brokenBody) Close() error             { return nil }

func opaqueResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: brokenBody{}}
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, tr *scriptedTransport, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:       "http://salon.test/api",
		Timeout:       time.Second,
		MaxAttempts:   3,
		RetryInterval: 5 * time.Millisecond,
		HTTPClient:    &http.Client{Transport: tr},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	c.SetToken("tok")
	return c
}

func TestDirectSuccess(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return jsonResponse(200, `{"success":true,"orders":[{"id":"a1","amount":100000}],"total":1}`), nil
	}}
	c := newTestClient(t, tr, nil)

	orders, err := c.ListOrders(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "a1", orders[0].ID)

	require.Equal(t, 1, tr.callCount())
	got := tr.call(0)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "tok", got.params.Get("token"), "token rides as a parameter, not a header")
	assert.Equal(t, "orders", got.params.Get("action"))
}

func TestRetryOnTransientThenSuccess(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call < 2 {
			return nil, errors.New("connection reset")
		}
		return jsonResponse(200, `{"success":true,"todayCount":0,"todayRevenue":0,"monthRevenue":0,"totalOrders":0}`), nil
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, tr.callCount())
}

func TestRetriesExhaustedSurfaceTyped(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(t, tr, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := c.Stats(context.Background())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindTransient, cerr.Kind)
	assert.Equal(t, 2, tr.callCount())
}

func TestWriteFallsBackToFireAndForgetExactlyOnce(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call == 0 {
			return opaqueResponse(), nil // direct write: body unreadable
		}
		return jsonResponse(200, `ignored`), nil // fire-and-forget never reads this
	}}
	c := newTestClient(t, tr, nil)

	ack, err := c.CreateOrder(context.Background(), "Cắt tóc", 100000, "")
	require.NoError(t, err)
	assert.True(t, ack.Probable, "fire-and-forget success is only probable")
	assert.Nil(t, ack.Order)

	require.Equal(t, 2, tr.callCount(), "direct once, fire-and-forget once, nothing else")
	for i := 0; i < tr.callCount(); i++ {
		assert.Empty(t, tr.call(i).params.Get("callback"), "writes must never use the script-tag path")
	}
}

func TestWriteRateLimitedPlainBodyRetriesDirect(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call == 0 {
			return textResponse(http.StatusTooManyRequests, "Too Many Requests. Please try again later.\n"), nil
		}
		return jsonResponse(200, `{"success":true,"order":{"id":"a1","amount":100000}}`), nil
	}}
	c := newTestClient(t, tr, nil)

	ack, err := c.CreateOrder(context.Background(), "Cắt tóc", 100000, "")
	require.NoError(t, err)
	assert.False(t, ack.Probable, "a readable rejection must not look like fire-and-forget success")
	require.NotNil(t, ack.Order, "the retried direct response is read in full")
	assert.Equal(t, "a1", ack.Order.ID)
	assert.Equal(t, 2, tr.callCount())
}

func TestWriteRateLimitedPlainBodyExhaustsToTransient(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return textResponse(http.StatusTooManyRequests, "Too Many Requests. Please try again later.\n"), nil
	}}
	c := newTestClient(t, tr, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := c.CreateOrder(context.Background(), "Gội đầu", 50000, "")
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindTransient, cerr.Kind)
	require.Equal(t, 2, tr.callCount())
	for i := 0; i < tr.callCount(); i++ {
		assert.Empty(t, tr.call(i).params.Get("callback"))
	}
}

func TestFireAndForgetNetworkErrorIsTransient(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call == 0 {
			return opaqueResponse(), nil
		}
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.CreateOrder(context.Background(), "Gội đầu", 50000, "")
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindTransient, cerr.Kind)
	assert.Equal(t, 2, tr.callCount(), "fire-and-forget is attempted exactly once")
}

func TestReadFallsBackToCallbackInjection(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, params url.Values) (*http.Response, error) {
		if call == 0 {
			// The endpoint redirected to an HTML interstitial.
			return jsonResponse(200, "<!doctype html><html></html>"), nil
		}
		cb := params.Get("callback")
		return jsonResponse(200, fmt.Sprintf(`%s({"success":true,"orders":[],"total":0})`, cb)), nil
	}}
	c := newTestClient(t, tr, nil)

	orders, err := c.ListOrders(context.Background(), "2025-03-09", 10)
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.Equal(t, 2, tr.callCount())
	fallback := tr.call(1)
	assert.Equal(t, http.MethodGet, fallback.method)
	assert.NotEmpty(t, fallback.params.Get("callback"))
	assert.Equal(t, 0, c.jsonp.pendingCount(), "callback registration released after success")
}

func TestCallbackReadBadRequestIsTyped(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, params url.Values) (*http.Response, error) {
		if call == 0 {
			return jsonResponse(200, "<!doctype html>"), nil
		}
		// Script-tag delivery always arrives with HTTP 200; the rejection
		// only lives in the wrapped JSON.
		cb := params.Get("callback")
		return jsonResponse(200, fmt.Sprintf(`%s({"success":false,"error":"bad_request"})`, cb)), nil
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.ListOrders(context.Background(), "31-12-2025", 0)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindBadRequest, cerr.Kind)
}

func TestCallbackCleanupOnFailure(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call == 0 {
			return jsonResponse(200, "<!doctype html>"), nil
		}
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.ListOrders(context.Background(), "", 0)
	require.Error(t, err)
	assert.Equal(t, 0, c.jsonp.pendingCount(), "callback registration released after failure too")
}

func TestUnauthenticatedShortCircuits(t *testing.T) {
	invalidations := 0
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return jsonResponse(401, `{"success":false,"error":"unauthenticated"}`), nil
	}}
	c := newTestClient(t, tr, func(cfg *Config) {
		cfg.OnSessionInvalid = func() { invalidations++ }
	})

	_, err := c.Stats(context.Background())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnauthenticated, cerr.Kind)
	assert.Equal(t, 1, tr.callCount(), "no retries against invalid credentials")
	assert.Equal(t, 1, invalidations)

	// A second call with the same dead session must not re-notify.
	_, err = c.Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, invalidations, "session invalidation fires exactly once")

	// A fresh token re-arms the callback.
	c.SetToken("tok2")
	_, _ = c.Stats(context.Background())
	assert.Equal(t, 2, invalidations)
}

func TestForbiddenIsDistinctFromUnauthenticated(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return jsonResponse(403, `{"success":false,"error":"forbidden"}`), nil
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.Stats(context.Background())
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindForbidden, cerr.Kind)
	assert.Equal(t, 1, tr.callCount())
}

func TestDeleteNotFoundIsTyped(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return jsonResponse(404, `{"success":false,"error":"not_found"}`), nil
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.DeleteOrder(context.Background(), "gone-id")
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindNotFound, cerr.Kind, "already-gone surfaces as NotFound for the caller to ignore")
	assert.Equal(t, 1, tr.callCount(), "NotFound never retries")
}

func TestServerErrorRetries(t *testing.T) {
	tr := &scriptedTransport{respond: func(call int, _ url.Values) (*http.Response, error) {
		if call < 1 {
			return jsonResponse(500, `{"success":false,"error":"internal"}`), nil
		}
		return jsonResponse(200, `{"success":true}`), nil
	}}
	c := newTestClient(t, tr, nil)

	_, err := c.DeleteOrder(context.Background(), "some-id")
	require.NoError(t, err)
	assert.Equal(t, 2, tr.callCount())
}

func TestHealthSendsNoToken(t *testing.T) {
	tr := &scriptedTransport{respond: func(int, url.Values) (*http.Response, error) {
		return jsonResponse(200, `{"success":true,"status":"ok"}`), nil
	}}
	c := newTestClient(t, tr, nil)

	require.NoError(t, c.Health(context.Background()))
	assert.Empty(t, tr.call(0).params.Get("token"))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
