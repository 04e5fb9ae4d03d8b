// Package credentials owns the bearer credential used to authorize API
// requests. The Holder is the only component that reads or writes the
// stored token; everything else asks it.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ispcompare/tariff-agent/internal/agent"
)

// storageKey is the durable-store entry holding the raw bearer token.
const storageKey = "access_token"

// Holder caches the credential in memory and writes every change through
// to the durable store, so a read scheduled after a write always sees it.
type Holder struct {
	store agent.KVStore

	mu     sync.RWMutex
	loaded bool
	token  string
}

// New constructs a Holder over the given store.
func New(store agent.KVStore) *Holder {
	return &Holder{store: store}
}

// Token returns the current credential, or "" when none is stored.
func (h *Holder) Token(ctx context.Context) (string, error) {
	h.mu.RLock()
	if h.loaded {
		token := h.token
		h.mu.RUnlock()
		return token, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.token, nil
	}
	value, err := h.store.Get(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	h.token = string(value)
	h.loaded = true
	return h.token, nil
}

// Set replaces the credential and persists it.
func (h *Holder) Set(ctx context.Context, token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Set(ctx, storageKey, []byte(token)); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	h.token = token
	h.loaded = true
	return nil
}

// Clear deletes the credential from memory and the durable store.
func (h *Holder) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	h.token = ""
	h.loaded = true
	return nil
}

// ExpiresAt reports the credential's exp claim without verifying the
// signature (the agent never holds the signing key). Returns the zero
// time when no credential is stored or the token carries no expiry.
func (h *Holder) ExpiresAt(ctx context.Context) (time.Time, error) {
	token, err := h.Token(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if token == "" {
		return time.Time{}, nil
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse credential claims: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the credential's exp claim is in the past
// relative to now. Tokens without an expiry never report expired.
func (h *Holder) Expired(ctx context.Context, now time.Time) (bool, error) {
	exp, err := h.ExpiresAt(ctx)
	if err != nil {
		return false, err
	}
	if exp.IsZero() {
		return false, nil
	}
	return exp.Before(now), nil
}
