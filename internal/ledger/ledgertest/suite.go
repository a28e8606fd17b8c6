// Package ledgertest runs the allocation scenarios against any store.Repository
// so the memory, SQLite and Postgres stores are held to the same behavior.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

type Factory func(t *testing.T) store.Repository

// Clock returns a strictly increasing time source, one second per call, so
// rows created in sequence have distinct created_at values.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start.UTC().Truncate(time.Second)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

// Fixture is one freshly created store with a credit-mode product.
type Fixture struct {
	Repo      store.Repository
	Engine    *ledger.Engine
	Calc      *ledger.Calculator
	StoreID   string
	ProductID string
}

func NewFixture(t *testing.T, repo store.Repository) *Fixture {
	t.Helper()
	ctx := context.Background()

	shop, err := repo.CreateStore(ctx, domain.Store{ID: xid.New("str"), Name: "Toko Uji"})
	require.NoError(t, err)
	cost := int64(1000)
	product, err := repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prd"),
		StoreID:     shop.ID,
		Name:        "Kopi",
		PayableMode: domain.PayableModeCredit,
		CostPrice:   &cost,
	})
	require.NoError(t, err)

	return &Fixture{
		Repo:      repo,
		Engine:    ledger.NewEngine(repo, ledger.WithClock(Clock(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)))),
		Calc:      ledger.NewCalculator(repo, nil),
		StoreID:   shop.ID,
		ProductID: product.ID,
	}
}

// Debt records a sale of amount units (qty 1) and its payable entry.
func (f *Fixture) Debt(t *testing.T, amount int64) domain.DebtResult {
	t.Helper()
	result, err := f.recordDebt(context.Background(), amount)
	require.NoError(t, err)
	return result
}

func (f *Fixture) recordDebt(ctx context.Context, amount int64) (domain.DebtResult, error) {
	sale, err := f.Repo.CreateTransaction(ctx, domain.Transaction{
		ID:        xid.New("trx"),
		StoreID:   f.StoreID,
		ProductID: f.ProductID,
		Qty:       1,
		UnitPrice: amount,
		Kind:      domain.TxKindStockOut,
	})
	if err != nil {
		return domain.DebtResult{}, err
	}
	return f.Engine.RecordDebt(ctx, ledger.DebtInput{
		TransactionID: sale.ID,
		ProductID:     f.ProductID,
		Item:          "Kopi",
		Qty:           1,
		CostPrice:     amount,
		Amount:        amount,
		StoreID:       f.StoreID,
	})
}

func (f *Fixture) Pay(t *testing.T, amount int64) domain.PaymentResult {
	t.Helper()
	result, err := f.Engine.ApplyPayment(context.Background(), ledger.PaymentInput{StoreID: f.StoreID, Amount: amount})
	require.NoError(t, err)
	return result
}

func (f *Fixture) RequireConsistent(t *testing.T) {
	t.Helper()
	report, err := f.Calc.Verify(context.Background(), f.StoreID)
	require.NoError(t, err, "violations: %+v", report.Violations)
}

func (f *Fixture) Entry(t *testing.T, entryID string) domain.Entry {
	t.Helper()
	entries, err := f.Repo.ListEntries(context.Background(), f.StoreID, false)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.ID == entryID {
			return entry
		}
	}
	t.Fatalf("entry %s not found", entryID)
	return domain.Entry{}
}

func (f *Fixture) Payment(t *testing.T, paymentID string) domain.Payment {
	t.Helper()
	payments, err := f.Repo.ListPayments(context.Background(), f.StoreID, false)
	require.NoError(t, err)
	for _, payment := range payments {
		if payment.ID == paymentID {
			return payment
		}
	}
	t.Fatalf("payment %s not found", paymentID)
	return domain.Payment{}
}

// Run executes every scenario with a repository from newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("PaymentSettlesSingleEntry", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		debt := f.Debt(t, 10000)

		result := f.Pay(t, 10000)

		assert.Equal(t, int64(0), result.Remaining)
		require.Len(t, result.Allocations, 1)
		assert.Equal(t, debt.EntryID, result.Allocations[0].EntryID)
		assert.Equal(t, int64(10000), result.Allocations[0].Amount)
		assert.Equal(t, int64(10000), f.Entry(t, debt.EntryID).AmountPaid)
		assert.Equal(t, int64(0), f.Payment(t, result.PaymentID).RemainingAmount)
		f.RequireConsistent(t)
	})

	t.Run("PaymentSettlesOldestEntryFirst", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		first := f.Debt(t, 6000)
		second := f.Debt(t, 5000)

		result := f.Pay(t, 8000)

		assert.Equal(t, int64(0), result.Remaining)
		require.Len(t, result.Allocations, 2)
		assert.Equal(t, first.EntryID, result.Allocations[0].EntryID)
		assert.Equal(t, int64(6000), result.Allocations[0].Amount)
		assert.Equal(t, int64(0), result.Allocations[0].Left)
		assert.Equal(t, second.EntryID, result.Allocations[1].EntryID)
		assert.Equal(t, int64(2000), result.Allocations[1].Amount)
		assert.Equal(t, int64(3000), result.Allocations[1].Left)
		assert.Equal(t, int64(6000), f.Entry(t, first.EntryID).AmountPaid)
		assert.Equal(t, int64(2000), f.Entry(t, second.EntryID).AmountPaid)

		balance, err := f.Calc.GetBalance(context.Background(), f.StoreID)
		require.NoError(t, err)
		assert.Equal(t, int64(11000), balance.TotalPayable)
		assert.Equal(t, int64(8000), balance.TotalPaid)
		assert.Equal(t, int64(-3000), balance.Balance)
		assert.Equal(t, int64(3000), balance.Outstanding)
		assert.Equal(t, int64(0), balance.AvailableCredit)
		f.RequireConsistent(t)
	})

	t.Run("DebtConsumesExistingCredit", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		credit := f.Pay(t, 3000)
		assert.Empty(t, credit.Allocations)
		assert.Equal(t, int64(3000), credit.Remaining)

		debt := f.Debt(t, 7000)

		assert.Equal(t, int64(4000), debt.Remaining)
		require.Len(t, debt.Allocations, 1)
		assert.Equal(t, credit.PaymentID, debt.Allocations[0].PaymentID)
		assert.Equal(t, int64(3000), debt.Allocations[0].Amount)
		assert.Equal(t, int64(3000), f.Entry(t, debt.EntryID).AmountPaid)
		assert.Equal(t, int64(0), f.Payment(t, credit.PaymentID).RemainingAmount)
		f.RequireConsistent(t)
	})

	t.Run("DebtDrainsPaymentsInOrder", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		older := f.Pay(t, 2000)
		newer := f.Pay(t, 5000)

		debt := f.Debt(t, 4000)

		assert.Equal(t, int64(0), debt.Remaining)
		require.Len(t, debt.Allocations, 2)
		assert.Equal(t, older.PaymentID, debt.Allocations[0].PaymentID)
		assert.Equal(t, int64(2000), debt.Allocations[0].Amount)
		assert.Equal(t, newer.PaymentID, debt.Allocations[1].PaymentID)
		assert.Equal(t, int64(2000), debt.Allocations[1].Amount)
		assert.Equal(t, int64(3000), f.Payment(t, newer.PaymentID).RemainingAmount)
		f.RequireConsistent(t)
	})

	t.Run("RejectsNonPositivePayment", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		for _, amount := range []int64{0, -500} {
			_, err := f.Engine.ApplyPayment(context.Background(), ledger.PaymentInput{StoreID: f.StoreID, Amount: amount})
			require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		}
		payments, err := f.Repo.ListPayments(context.Background(), f.StoreID, false)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("RejectsUnknownStore", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		_, err := f.Engine.ApplyPayment(context.Background(), ledger.PaymentInput{StoreID: "missing-store", Amount: 1000})
		require.ErrorIs(t, err, ledger.ErrStoreNotFound)
	})

	t.Run("ConcurrentPaymentsNeverOverpay", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		debt := f.Debt(t, 8000)

		results := make([]domain.PaymentResult, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.Engine.ApplyPayment(context.Background(), ledger.PaymentInput{StoreID: f.StoreID, Amount: 5000})
			}(i)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.ElementsMatch(t, []int64{0, 2000}, []int64{results[0].Remaining, results[1].Remaining})
		assert.Equal(t, int64(8000), f.Entry(t, debt.EntryID).AmountPaid)
		f.RequireConsistent(t)
	})

	t.Run("ConcurrentPaymentsAndDebtsSeeEachOther", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		ctx := context.Background()

		const workers = 12
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					_, errs[i] = f.Engine.ApplyPayment(ctx, ledger.PaymentInput{StoreID: f.StoreID, Amount: 3000})
				} else {
					_, errs[i] = f.recordDebt(ctx, 2000)
				}
				if errs[i] != nil {
					return
				}
				balance, err := f.Calc.GetBalance(ctx, f.StoreID)
				if assert.NoError(t, err) {
					assert.False(t, balance.Outstanding > 0 && balance.AvailableCredit > 0,
						"debt and credit open together: %+v", balance)
				}
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "worker %d", i)
		}
		f.RequireConsistent(t)
		balance, err := f.Calc.GetBalance(ctx, f.StoreID)
		require.NoError(t, err)
		assert.Equal(t, int64(18000), balance.TotalPaid)
		assert.Equal(t, int64(12000), balance.TotalPayable)
		assert.Equal(t, int64(0), balance.Outstanding)
		assert.Equal(t, int64(6000), balance.AvailableCredit)
	})

	t.Run("StoresDoNotShareCredit", func(t *testing.T) {
		repo := newRepo(t)
		a := NewFixture(t, repo)
		b := NewFixture(t, repo)
		a.Pay(t, 5000)

		debt := b.Debt(t, 3000)

		assert.Empty(t, debt.Allocations)
		assert.Equal(t, int64(3000), debt.Remaining)
		balance, err := a.Calc.GetBalance(context.Background(), a.StoreID)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), balance.AvailableCredit)
		a.RequireConsistent(t)
		b.RequireConsistent(t)
	})

	t.Run("BalanceReadIsStable", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		f.Debt(t, 4000)
		f.Pay(t, 1500)

		first, err := f.Calc.GetBalance(context.Background(), f.StoreID)
		require.NoError(t, err)
		second, err := f.Calc.GetBalance(context.Background(), f.StoreID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("VoidReleasesCredit", func(t *testing.T) {
		f := NewFixture(t, newRepo(t))
		payment := f.Pay(t, 10000)
		debt := f.Debt(t, 4000)
		require.Equal(t, int64(6000), f.Payment(t, payment.PaymentID).RemainingAmount)

		entry := f.Entry(t, debt.EntryID)
		result, err := f.Engine.VoidSale(context.Background(), entry.TransactionID)
		require.NoError(t, err)

		assert.Equal(t, 1, result.EntriesRemoved)
		assert.Equal(t, int64(4000), result.CreditReleased)
		assert.Equal(t, 1, result.PaymentsTouched)
		assert.Equal(t, int64(10000), f.Payment(t, payment.PaymentID).RemainingAmount)
		entries, err := f.Repo.ListEntries(context.Background(), f.StoreID, false)
		require.NoError(t, err)
		assert.Empty(t, entries)
		allocations, err := f.Calc.ListAllocations(context.Background(), store.AllocationFilter{StoreID: f.StoreID})
		require.NoError(t, err)
		assert.Empty(t, allocations)
		f.RequireConsistent(t)
	})
}
