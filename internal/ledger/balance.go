package ledger

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Calculator answers read-only questions about a store's ledger.
type Calculator struct {
	store  store.LedgerReader
	logger *zap.Logger
}

func NewCalculator(reader store.LedgerReader, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{store: reader, logger: logger}
}

// GetBalance reports capital received minus goods taken on credit. A positive
// balance is unspent capital, a negative one is money owed to the capital
// provider.
func (c *Calculator) GetBalance(ctx context.Context, storeID string) (domain.Balance, error) {
	storeID = strings.TrimSpace(storeID)
	if err := c.resolveStore(ctx, storeID); err != nil {
		return domain.Balance{}, err
	}
	sums, err := c.store.SumLedger(ctx, storeID)
	if err != nil {
		return domain.Balance{}, err
	}
	if sums.TotalAllocated != sums.TotalEntryPaid || sums.TotalAllocated != sums.TotalPaid-sums.TotalRemaining {
		c.logger.Warn("ledger totals disagree with allocations",
			zap.String("store_id", storeID),
			zap.Int64("allocated", sums.TotalAllocated),
			zap.Int64("entry_paid", sums.TotalEntryPaid),
			zap.Int64("payment_used", sums.TotalPaid-sums.TotalRemaining))
	}
	return domain.Balance{
		StoreID:         storeID,
		TotalPayable:    sums.TotalPayable,
		TotalPaid:       sums.TotalPaid,
		Balance:         sums.TotalPaid - sums.TotalPayable,
		Outstanding:     sums.TotalPayable - sums.TotalEntryPaid,
		AvailableCredit: sums.TotalRemaining,
	}, nil
}

func (c *Calculator) ListEntries(ctx context.Context, storeID string, openOnly bool) ([]domain.Entry, error) {
	storeID = strings.TrimSpace(storeID)
	if err := c.resolveStore(ctx, storeID); err != nil {
		return nil, err
	}
	return c.store.ListEntries(ctx, storeID, openOnly)
}

func (c *Calculator) ListPayments(ctx context.Context, storeID string, openOnly bool) ([]domain.Payment, error) {
	storeID = strings.TrimSpace(storeID)
	if err := c.resolveStore(ctx, storeID); err != nil {
		return nil, err
	}
	return c.store.ListPayments(ctx, storeID, openOnly)
}

func (c *Calculator) ListAllocations(ctx context.Context, filter store.AllocationFilter) ([]domain.Allocation, error) {
	filter.StoreID = strings.TrimSpace(filter.StoreID)
	if err := c.resolveStore(ctx, filter.StoreID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return c.store.ListAllocations(ctx, filter)
}

func (c *Calculator) resolveStore(ctx context.Context, storeID string) error {
	if storeID == "" {
		return ErrStoreNotFound
	}
	if _, err := c.store.GetStore(ctx, storeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrStoreNotFound
		}
		return err
	}
	return nil
}
