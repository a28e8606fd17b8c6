package cache

import (
	"context"
	"encoding/json"
	"time"
)

// StoredResponse is what a finished request leaves behind for its retries.
// Done is false while the first attempt is still running. Fingerprint
// identifies the request body the key was first used with.
type StoredResponse struct {
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Done        bool            `json:"done"`
}

// IdempotencyCache remembers responses to requests that carried an
// Idempotency-Key so a retried submission is not applied twice.
type IdempotencyCache interface {
	// Claim reserves key for the caller and records the request fingerprint.
	// It reports false when another request already holds or completed the key.
	Claim(ctx context.Context, key string, fingerprint string, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, key string) (*StoredResponse, bool, error)
	Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	// Release drops a claim whose request failed so it can be retried.
	Release(ctx context.Context, key string) error
}

// NoopIdempotencyCache never remembers anything; every request is handled.
type NoopIdempotencyCache struct{}

func (NoopIdempotencyCache) Claim(_ context.Context, _ string, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (NoopIdempotencyCache) Lookup(_ context.Context, _ string) (*StoredResponse, bool, error) {
	return nil, false, nil
}

func (NoopIdempotencyCache) Save(_ context.Context, _ string, _ StoredResponse, _ time.Duration) error {
	return nil
}

func (NoopIdempotencyCache) Release(_ context.Context, _ string) error {
	return nil
}
