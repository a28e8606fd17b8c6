package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger/ledgertest"
	"modalku/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestLedgerScenariosOnSQLite(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) store.Repository {
		return openTestStore(t)
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	_, err = first.CreateStore(context.Background(), domain.Store{ID: "toko-a", Name: "Toko A"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	stores, err := second.ListStores(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(stores))
	for _, s := range stores {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{"main-store", "toko-a"}, ids)
}

func TestConstraintErrorsMapToStoreErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateStore(ctx, domain.Store{ID: "main-store", Name: "Dup"})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateProduct(ctx, domain.Product{StoreID: "nowhere", Name: "Kopi", PayableMode: domain.PayableModeCash})
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.WithinTx(ctx, func(tx store.LedgerTx) error {
		return tx.SetPaymentRemaining(ctx, "pay-missing", 10)
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProductCostRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cost := int64(2500)

	withCost, err := s.CreateProduct(ctx, domain.Product{StoreID: "main-store", Name: "Gula", PayableMode: domain.PayableModeCredit, CostPrice: &cost})
	require.NoError(t, err)
	noCost, err := s.CreateProduct(ctx, domain.Product{StoreID: "main-store", Name: "Roti", PayableMode: domain.PayableModeCredit})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, withCost.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CostPrice)
	assert.Equal(t, int64(2500), *got.CostPrice)

	got, err = s.GetProduct(ctx, noCost.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CostPrice)
}
