package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call so orchestration code can pick the right
// user-visible message: "log in again", "log in as someone else", "already
// gone", or "try again later".
type Kind int

const (
	KindTransient Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	default:
		return "transient"
	}
}

// Error is the only error type calls return; retries have already been
// exhausted (or deliberately skipped) by the time a caller sees one.
type Error struct {
	Kind Kind
	Op   string // the logical action, e.g. "create"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrOpaqueResponse marks a failure where the request plausibly reached
// the endpoint but the response could not be read: the browser's
// cross-origin read restriction, a proxy that swallows bodies, a redirect
// chain ending in something that is not the API's JSON.
var ErrOpaqueResponse = errors.New("response unreadable")
