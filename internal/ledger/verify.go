package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"modalku/backend/internal/domain"
)

// Verify re-derives every entry's amount_paid and every payment's
// remaining_amount from the allocation rows and reports each row that
// disagrees. The report is returned together with ErrInvariantViolation when
// anything is off.
func (c *Calculator) Verify(ctx context.Context, storeID string) (domain.VerifyReport, error) {
	storeID = strings.TrimSpace(storeID)
	if err := c.resolveStore(ctx, storeID); err != nil {
		return domain.VerifyReport{}, err
	}
	snap, err := c.store.Snapshot(ctx, storeID)
	if err != nil {
		return domain.VerifyReport{}, err
	}

	report := domain.VerifyReport{
		StoreID:    storeID,
		Entries:    len(snap.Entries),
		Payments:   len(snap.Payments),
		Violations: []domain.Violation{},
	}

	entries := make(map[string]domain.Entry, len(snap.Entries))
	for _, entry := range snap.Entries {
		entries[entry.ID] = entry
	}
	payments := make(map[string]domain.Payment, len(snap.Payments))
	for _, payment := range snap.Payments {
		payments[payment.ID] = payment
	}

	allocatedToEntry := make(map[string]int64, len(entries))
	allocatedFromPayment := make(map[string]int64, len(payments))
	for _, allocation := range snap.Allocations {
		if allocation.Amount <= 0 {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:   domain.ViolationAllocationAmount,
				RowID:  allocation.ID,
				Actual: allocation.Amount,
				Detail: "allocation amount must be positive",
			})
		}
		_, entryInStore := entries[allocation.EntryID]
		_, paymentInStore := payments[allocation.PaymentID]
		if !entryInStore || !paymentInStore {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:   domain.ViolationAllocationCrossStore,
				RowID:  allocation.ID,
				Actual: allocation.Amount,
				Detail: fmt.Sprintf("payment %s and entry %s are not both in store %s", allocation.PaymentID, allocation.EntryID, storeID),
			})
		}
		allocatedToEntry[allocation.EntryID] += allocation.Amount
		allocatedFromPayment[allocation.PaymentID] += allocation.Amount
	}

	for _, entry := range snap.Entries {
		if entry.AmountPaid < 0 || entry.AmountPaid > entry.Amount {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:     domain.ViolationEntryPaidRange,
				RowID:    entry.ID,
				Expected: entry.Amount,
				Actual:   entry.AmountPaid,
				Detail:   "amount_paid must be within [0, amount]",
			})
		}
		if got := allocatedToEntry[entry.ID]; got != entry.AmountPaid {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:     domain.ViolationEntryPaidSum,
				RowID:    entry.ID,
				Expected: got,
				Actual:   entry.AmountPaid,
				Detail:   "amount_paid differs from allocations to the entry",
			})
		}
	}

	for _, payment := range snap.Payments {
		if payment.RemainingAmount < 0 || payment.RemainingAmount > payment.Amount {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:     domain.ViolationPaymentRemRange,
				RowID:    payment.ID,
				Expected: payment.Amount,
				Actual:   payment.RemainingAmount,
				Detail:   "remaining_amount must be within [0, amount]",
			})
		}
		want := payment.Amount - allocatedFromPayment[payment.ID]
		if want != payment.RemainingAmount {
			report.Violations = append(report.Violations, domain.Violation{
				Kind:     domain.ViolationPaymentRemSum,
				RowID:    payment.ID,
				Expected: want,
				Actual:   payment.RemainingAmount,
				Detail:   "remaining_amount differs from amount minus allocations",
			})
		}
	}

	if len(report.Violations) > 0 {
		c.logger.Warn("ledger invariant violations",
			zap.String("store_id", storeID),
			zap.Int("violations", len(report.Violations)))
		return report, ErrInvariantViolation
	}
	return report, nil
}
