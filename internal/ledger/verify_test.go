package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/ledger/ledgertest"
	"modalku/backend/internal/store/memory"
)

func TestVerifyCleanLedger(t *testing.T) {
	repo := memory.New()
	f := ledgertest.NewFixture(t, repo)
	f.Debt(t, 6000)
	f.Debt(t, 5000)
	f.Pay(t, 8000)

	report, err := f.Calc.Verify(context.Background(), f.StoreID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Entries)
	assert.Equal(t, 1, report.Payments)
	assert.Empty(t, report.Violations)
}

func TestVerifyReportsDrift(t *testing.T) {
	repo := memory.New()
	f := ledgertest.NewFixture(t, repo)
	debt := f.Debt(t, 6000)
	payment := f.Pay(t, 8000)

	repo.Corrupt(func(entries map[string]domain.Entry, payments map[string]domain.Payment, _ *[]domain.Allocation) {
		entry := entries[debt.EntryID]
		entry.AmountPaid = 7000
		entries[debt.EntryID] = entry
		p := payments[payment.PaymentID]
		p.RemainingAmount = 2500
		payments[payment.PaymentID] = p
	})

	report, err := f.Calc.Verify(context.Background(), f.StoreID)
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)

	kinds := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		kinds = append(kinds, v.Kind)
	}
	assert.ElementsMatch(t, []string{
		domain.ViolationEntryPaidRange,
		domain.ViolationEntryPaidSum,
		domain.ViolationPaymentRemSum,
	}, kinds)
}

func TestGetBalanceWarnsWhenTotalsDrift(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := memory.New()
	f := ledgertest.NewFixture(t, repo)
	calc := ledger.NewCalculator(repo, zap.New(core))
	debt := f.Debt(t, 6000)
	f.Pay(t, 8000)

	_, err := calc.GetBalance(context.Background(), f.StoreID)
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	repo.Corrupt(func(entries map[string]domain.Entry, _ map[string]domain.Payment, _ *[]domain.Allocation) {
		entry := entries[debt.EntryID]
		entry.AmountPaid = 5000
		entries[debt.EntryID] = entry
	})

	balance, err := calc.GetBalance(context.Background(), f.StoreID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Outstanding)
	warnings := logs.FilterMessage("ledger totals disagree with allocations").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, int64(6000), fields["allocated"])
	assert.Equal(t, int64(5000), fields["entry_paid"])
}

func TestVerifyFlagsCrossStoreAllocation(t *testing.T) {
	repo := memory.New()
	a := ledgertest.NewFixture(t, repo)
	b := ledgertest.NewFixture(t, repo)
	debt := a.Debt(t, 1000)
	payment := b.Pay(t, 1000)

	repo.Corrupt(func(entries map[string]domain.Entry, payments map[string]domain.Payment, allocations *[]domain.Allocation) {
		*allocations = append(*allocations, domain.Allocation{
			ID: "alc-bad", PaymentID: payment.PaymentID, EntryID: debt.EntryID, Amount: 1000,
		})
		entry := entries[debt.EntryID]
		entry.AmountPaid = 1000
		entries[debt.EntryID] = entry
		p := payments[payment.PaymentID]
		p.RemainingAmount = 0
		payments[payment.PaymentID] = p
	})

	report, err := a.Calc.Verify(context.Background(), a.StoreID)
	require.ErrorIs(t, err, ledger.ErrInvariantViolation)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationAllocationCrossStore, report.Violations[0].Kind)
	assert.Equal(t, "alc-bad", report.Violations[0].RowID)
}

func TestVerifyUnknownStore(t *testing.T) {
	calc := ledger.NewCalculator(memory.New(), nil)
	_, err := calc.Verify(context.Background(), "ghost")
	require.ErrorIs(t, err, ledger.ErrStoreNotFound)
}
