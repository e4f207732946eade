// Package auth decides, per request, whether the caller is who they claim
// to be (token introspection) and whether they may use the system at all
// (identity directory).
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated covers every verification failure: missing token,
	// unreachable introspection service, audience mismatch, unverified
	// email. They collapse into one error so the response cannot reveal
	// which check rejected the token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the token verified fine but the identity is not
	// enabled in the directory. Kept distinct so the client can tell "log
	// in again" apart from "log in as someone else".
	ErrForbidden = errors.New("forbidden")
)

// Claims is the subset of the introspection response the gate checks.
type Claims struct {
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type Introspector interface {
	Introspect(ctx context.Context, token string) (Claims, error)
}

type AllowList interface {
	IsEnabled(ctx context.Context, email string) (bool, error)
}

// TokenInfoClient verifies tokens against an external introspection
// endpoint (Google's tokeninfo style: token as a query parameter, claims
// as a JSON body).
type TokenInfoClient struct {
	URL    string
	Client *http.Client
}

func NewTokenInfoClient(endpoint string) *TokenInfoClient {
	return &TokenInfoClient{
		URL:    endpoint,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *TokenInfoClient) Introspect(ctx context.Context, token string) (Claims, error) {
	var claims Claims

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return claims, fmt.Errorf("build introspection request: %w", err)
	}
	req.URL.RawQuery = url.Values{"access_token": {token}}.Encode()

	resp, err := c.Client.Do(req)
	if err != nil {
		return claims, fmt.Errorf("call introspection service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return claims, fmt.Errorf("introspection service returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return claims, fmt.Errorf("decode introspection response: %w", err)
	}
	return claims, nil
}

// Gate runs the per-request decision chain:
// token present → introspection → audience → email verified → allow-list.
type Gate struct {
	Introspector Introspector
	AllowList    AllowList
	Audience     string
}

// Authenticate verifies the bearer token and returns the caller identity
// (lowercased email). The identity is never taken from any other request
// field. Every failure yields ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}

	claims, err := g.Introspector.Introspect(ctx, token)
	if err != nil {
		slog.Warn("token introspection failed", "error", err)
		return "", ErrUnauthenticated
	}
	if claims.Audience != g.Audience {
		slog.Warn("token audience mismatch", "aud", claims.Audience)
		return "", ErrUnauthenticated
	}
	if claims.Email == "" || !claims.EmailVerified {
		slog.Warn("token email missing or unverified")
		return "", ErrUnauthenticated
	}

	return strings.ToLower(claims.Email), nil
}

// Authorize checks the verified identity against the directory. The
// directory is consulted fresh on every call so operator edits apply
// immediately.
func (g *Gate) Authorize(ctx context.Context, identity string) error {
	enabled, err := g.AllowList.IsEnabled(ctx, identity)
	if err != nil {
		return fmt.Errorf("allow list lookup: %w", err)
	}
	if !enabled {
		slog.Warn("identity not enabled in directory", "identity", identity)
		return ErrForbidden
	}
	return nil
}
