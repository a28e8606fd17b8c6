package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisIdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c, mr
}

func TestClaimIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	first, err := c.Claim(ctx, "pay-1", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.Claim(ctx, "pay-1", "fp", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	pending, ok, err := c.Lookup(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, pending.Done)
	assert.Equal(t, "fp", pending.Fingerprint)
}

func TestSaveThenLookup(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "pay-2", "fp", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, "pay-2", StoredResponse{Status: 201, Body: json.RawMessage(`{"ok":true}`), Fingerprint: "fp"}, time.Minute))

	got, ok, err := c.Lookup(ctx, "pay-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Done)
	assert.Equal(t, 201, got.Status)
	assert.Equal(t, "fp", got.Fingerprint)
	assert.JSONEq(t, `{"ok":true}`, string(got.Body))
}

func TestReleaseAllowsRetry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "pay-3", "fp", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "pay-3"))

	again, err := c.Claim(ctx, "pay-3", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestClaimExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "pay-4", "fp", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Lookup(ctx, "pay-4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopCacheAlwaysClaims(t *testing.T) {
	var c IdempotencyCache = NoopIdempotencyCache{}
	ok, err := c.Claim(context.Background(), "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err := c.Lookup(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}
