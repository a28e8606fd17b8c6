package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"modalku/backend/internal/cache"
	"modalku/backend/internal/config"
	"modalku/backend/internal/store/memory"
	"modalku/backend/internal/store/sqlite"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", LedgerTimeoutSeconds: 15})
	assert.Error(t, err)
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", LedgerTimeoutSeconds: 15})
	assert.NoError(t, err)
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, closers)
	assert.IsType(t, &memory.Store{}, repo)
}

func TestOpenRepositoryUsesSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, closers, err := openRepository(context.Background(), config.Config{SQLitePath: path}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, closers, 1)
	t.Cleanup(func() { _ = closers[0]() })

	assert.IsType(t, &sqlite.Store{}, repo)
	_, err = repo.GetStore(context.Background(), "main-store")
	assert.NoError(t, err)
}

func TestOpenIdempotencyCache(t *testing.T) {
	idem, closers := openIdempotencyCache(context.Background(), config.Config{}, zap.NewNop())
	assert.IsType(t, cache.NoopIdempotencyCache{}, idem)
	assert.Empty(t, closers)

	mr := miniredis.RunT(t)
	idem, closers = openIdempotencyCache(context.Background(), config.Config{RedisAddr: mr.Addr()}, zap.NewNop())
	require.Len(t, closers, 1)
	t.Cleanup(func() { _ = closers[0]() })
	assert.IsType(t, &cache.RedisIdempotencyCache{}, idem)
}
