package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Request is one logical call to the endpoint, transport-agnostic.
type Request struct {
	Params url.Values
	Write  bool
}

// Response is what a strategy managed to bring back. A fire-and-forget
// dispatch has no readable body; it reports Probable instead.
type Response struct {
	Status   int
	Body     []byte
	Probable bool
}

// TransportStrategy is one specific way of getting a request to the
// endpoint. Keeping the variants behind this interface keeps the retry
// and fallback ordering testable without a browser.
type TransportStrategy interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// directStrategy is the normal path: a full request with a per-attempt
// timeout, response read and returned.
type directStrategy struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
}

func (s *directStrategy) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var hr *http.Request
	var err error
	if req.Write {
		hr, err = http.NewRequestWithContext(ctx, http.MethodPost, s.base, strings.NewReader(req.Params.Encode()))
		if err == nil {
			hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		hr, err = http.NewRequestWithContext(ctx, http.MethodGet, s.base+"?"+req.Params.Encode(), nil)
	}
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpc.Do(hr)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", ErrOpaqueResponse)
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}

// fireAndForgetStrategy dispatches a write whose response is never read.
// No transport-level error is treated as probable success: the endpoint is
// assumed to have acted even though the outcome is unobservable. Callers
// must treat that success as weaker than the direct path's.
type fireAndForgetStrategy struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
}

func (s *fireAndForgetStrategy) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base, strings.NewReader(req.Params.Encode()))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(hr)
	if err != nil {
		return Response{}, err
	}
	// Deliberately unread; once dispatched this cannot be cancelled, only
	// abandoned.
	resp.Body.Close()
	return Response{Probable: true}, nil
}

// callbackStrategy is the script-tag read fallback: a GET whose response
// arrives wrapped as <callbackName>(<json>). Each call registers a unique
// callback name and releases it on every exit path, so repeated calls
// never leak registrations.
type callbackStrategy struct {
	base    string
	httpc   *http.Client
	timeout time.Duration

	seq     atomic.Int64
	mu      sync.Mutex
	pending map[string]struct{}
}

func newCallbackStrategy(base string, httpc *http.Client, timeout time.Duration) *callbackStrategy {
	return &callbackStrategy{
		base:    base,
		httpc:   httpc,
		timeout: timeout,
		pending: make(map[string]struct{}),
	}
}

func (s *callbackStrategy) Do(ctx context.Context, req Request) (Response, error) {
	name := fmt.Sprintf("cb_%d_%d", time.Now().UnixMilli(), s.seq.Add(1))
	s.register(name)
	defer s.release(name)

	// Independent timeout: this path is often tried after the direct
	// attempt has already burned its own budget.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := url.Values{}
	for k, v := range req.Params {
		params[k] = v
	}
	params.Set("callback", name)

	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"?"+params.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.httpc.Do(hr)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}

	text := strings.TrimSpace(string(body))
	prefix := name + "("
	if !strings.HasPrefix(text, prefix) || !strings.HasSuffix(text, ")") {
		return Response{}, fmt.Errorf("response not wrapped for %s: %w", name, ErrOpaqueResponse)
	}
	inner := text[len(prefix) : len(text)-1]
	return Response{Status: resp.StatusCode, Body: []byte(inner)}, nil
}

func (s *callbackStrategy) register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = struct{}{}
}

func (s *callbackStrategy) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, name)
}

func (s *callbackStrategy) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
