package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

const defaultTimeout = 15 * time.Second

type PaymentInput struct {
	StoreID string
	Amount  int64
	Note    string
	Sender  string
	Raw     string
}

type DebtInput struct {
	TransactionID string
	ProductID     string
	Item          string
	Qty           int64
	CostPrice     int64
	Amount        int64
	StoreID       string
}

// Engine matches payable entries against capital payments. It keeps no ledger
// state between calls; every mutating call is one store transaction.
type Engine struct {
	store   store.LedgerStore
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds each mutating call; on expiry the transaction rolls back.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(ledgerStore store.LedgerStore, opts ...Option) *Engine {
	e := &Engine{
		store:   ledgerStore,
		logger:  zap.NewNop(),
		timeout: defaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyPayment records a capital contribution and settles the store's oldest
// open entries with it.
func (e *Engine) ApplyPayment(ctx context.Context, in PaymentInput) (domain.PaymentResult, error) {
	if in.Amount <= 0 {
		return domain.PaymentResult{}, ErrInvalidAmount
	}
	storeID := strings.TrimSpace(in.StoreID)
	if err := e.resolveStore(ctx, storeID); err != nil {
		return domain.PaymentResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payment := domain.Payment{
		ID:              xid.New("pay"),
		CreatedAt:       e.now(),
		StoreID:         storeID,
		Amount:          in.Amount,
		RemainingAmount: in.Amount,
		Note:            strings.TrimSpace(in.Note),
		Sender:          strings.TrimSpace(in.Sender),
		Raw:             in.Raw,
	}

	var result domain.PaymentResult
	err := e.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		result = domain.PaymentResult{
			PaymentID:   payment.ID,
			StoreID:     storeID,
			Amount:      payment.Amount,
			Allocations: make([]domain.Settlement, 0, 4),
		}
		if err := tx.LockStore(ctx, storeID); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		remaining, err := settle(ctx, matchPlan[domain.Entry]{
			source: func(ctx context.Context) ([]domain.Entry, error) {
				return tx.LockOpenEntries(ctx, storeID)
			},
			available: domain.Entry.Outstanding,
			write: func(ctx context.Context, entry domain.Entry, amount int64) error {
				if entry.StoreID != storeID {
					return fmt.Errorf("%w: entry %s is not in store %s", ErrInvariantViolation, entry.ID, storeID)
				}
				allocation := domain.Allocation{
					ID:        xid.New("alc"),
					CreatedAt: payment.CreatedAt,
					PaymentID: payment.ID,
					EntryID:   entry.ID,
					Amount:    amount,
				}
				if err := tx.InsertAllocation(ctx, allocation); err != nil {
					return err
				}
				paid := entry.AmountPaid + amount
				if err := tx.SetEntryPaid(ctx, entry.ID, paid); err != nil {
					return err
				}
				result.Allocations = append(result.Allocations, domain.Settlement{
					AllocationID: allocation.ID,
					PaymentID:    payment.ID,
					EntryID:      entry.ID,
					Item:         entry.Item,
					Amount:       amount,
					Left:         entry.Amount - paid,
				})
				return nil
			},
		}, payment.Amount)
		if err != nil {
			return err
		}

		result.Remaining = remaining
		return tx.SetPaymentRemaining(ctx, payment.ID, remaining)
	})
	if err != nil {
		e.logger.Error("apply payment failed",
			zap.String("store_id", storeID),
			zap.Int64("amount", in.Amount),
			zap.Error(err))
		return domain.PaymentResult{}, fmt.Errorf("apply payment: %w", err)
	}

	e.logger.Info("payment applied",
		zap.String("store_id", storeID),
		zap.String("payment_id", result.PaymentID),
		zap.Int64("amount", result.Amount),
		zap.Int("allocations", len(result.Allocations)),
		zap.Int64("remaining", result.Remaining))
	return result, nil
}

// RecordDebt writes the payable entry for a credit-mode sale and immediately
// offsets it with the store's oldest unconsumed payments.
func (e *Engine) RecordDebt(ctx context.Context, in DebtInput) (domain.DebtResult, error) {
	if err := validateDebt(in); err != nil {
		return domain.DebtResult{}, err
	}
	storeID := strings.TrimSpace(in.StoreID)
	if err := e.resolveStore(ctx, storeID); err != nil {
		return domain.DebtResult{}, err
	}
	product, err := e.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DebtResult{}, fmt.Errorf("%w: product %s not found", ErrInvalidInput, in.ProductID)
		}
		return domain.DebtResult{}, err
	}
	if product.StoreID != storeID {
		return domain.DebtResult{}, ErrStoreMismatch
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	item := strings.TrimSpace(in.Item)
	if item == "" {
		item = product.Name
	}
	entry := domain.Entry{
		ID:            xid.New("ent"),
		CreatedAt:     e.now(),
		TransactionID: in.TransactionID,
		ProductID:     in.ProductID,
		StoreID:       storeID,
		Item:          item,
		Qty:           in.Qty,
		CostPrice:     in.CostPrice,
		Amount:        in.Amount,
	}

	var result domain.DebtResult
	err = e.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		result = domain.DebtResult{
			EntryID:     entry.ID,
			StoreID:     storeID,
			Item:        entry.Item,
			Amount:      entry.Amount,
			Allocations: make([]domain.Settlement, 0, 2),
		}
		if err := tx.LockStore(ctx, storeID); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		remaining, err := settle(ctx, matchPlan[domain.Payment]{
			source: func(ctx context.Context) ([]domain.Payment, error) {
				return tx.LockOpenPayments(ctx, storeID)
			},
			available: func(p domain.Payment) int64 { return p.RemainingAmount },
			write: func(ctx context.Context, payment domain.Payment, amount int64) error {
				if payment.StoreID != storeID {
					return fmt.Errorf("%w: payment %s is not in store %s", ErrInvariantViolation, payment.ID, storeID)
				}
				allocation := domain.Allocation{
					ID:        xid.New("alc"),
					CreatedAt: entry.CreatedAt,
					PaymentID: payment.ID,
					EntryID:   entry.ID,
					Amount:    amount,
				}
				if err := tx.InsertAllocation(ctx, allocation); err != nil {
					return err
				}
				left := payment.RemainingAmount - amount
				if err := tx.SetPaymentRemaining(ctx, payment.ID, left); err != nil {
					return err
				}
				result.Allocations = append(result.Allocations, domain.Settlement{
					AllocationID: allocation.ID,
					PaymentID:    payment.ID,
					EntryID:      entry.ID,
					Item:         entry.Item,
					Amount:       amount,
					Left:         left,
				})
				return nil
			},
		}, entry.Amount)
		if err != nil {
			return err
		}

		result.Remaining = remaining
		if remaining == entry.Amount {
			return nil
		}
		return tx.SetEntryPaid(ctx, entry.ID, entry.Amount-remaining)
	})
	if err != nil {
		e.logger.Error("record debt failed",
			zap.String("store_id", storeID),
			zap.String("transaction_id", in.TransactionID),
			zap.Int64("amount", in.Amount),
			zap.Error(err))
		return domain.DebtResult{}, fmt.Errorf("record debt: %w", err)
	}

	e.logger.Info("debt recorded",
		zap.String("store_id", storeID),
		zap.String("entry_id", result.EntryID),
		zap.String("transaction_id", in.TransactionID),
		zap.Int64("amount", result.Amount),
		zap.Int("allocations", len(result.Allocations)),
		zap.Int64("outstanding", result.Remaining))
	return result, nil
}

// VoidSale deletes a sale together with its payable entries. Credit that was
// allocated to those entries goes back to the payments it came from, so payment
// conservation still holds after the cascade.
func (e *Engine) VoidSale(ctx context.Context, transactionID string) (domain.VoidResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.VoidResult{}, ErrInvalidInput
	}
	sale, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.VoidResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result := domain.VoidResult{TransactionID: sale.ID, StoreID: sale.StoreID}
	err = e.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		result = domain.VoidResult{TransactionID: sale.ID, StoreID: sale.StoreID}
		if err := tx.LockStore(ctx, sale.StoreID); err != nil {
			return err
		}
		entries, err := tx.EntriesByTransaction(ctx, sale.ID)
		if err != nil {
			return err
		}
		result.EntriesRemoved = len(entries)

		entryIDs := make([]string, 0, len(entries))
		for _, entry := range entries {
			entryIDs = append(entryIDs, entry.ID)
		}
		allocations, err := tx.AllocationsByEntries(ctx, entryIDs)
		if err != nil {
			return err
		}

		released := make(map[string]int64, len(allocations))
		paymentIDs := make([]string, 0, len(allocations))
		for _, allocation := range allocations {
			if _, seen := released[allocation.PaymentID]; !seen {
				paymentIDs = append(paymentIDs, allocation.PaymentID)
			}
			released[allocation.PaymentID] += allocation.Amount
		}

		payments, err := tx.LockPayments(ctx, paymentIDs)
		if err != nil {
			return err
		}
		for _, payment := range payments {
			restored := payment.RemainingAmount + released[payment.ID]
			if restored > payment.Amount {
				return fmt.Errorf("%w: payment %s would exceed its amount", ErrInvariantViolation, payment.ID)
			}
			if err := tx.SetPaymentRemaining(ctx, payment.ID, restored); err != nil {
				return err
			}
			result.CreditReleased += released[payment.ID]
			result.PaymentsTouched++
		}

		return tx.DeleteTransaction(ctx, sale.ID)
	})
	if err != nil {
		e.logger.Error("void sale failed", zap.String("transaction_id", transactionID), zap.Error(err))
		return domain.VoidResult{}, fmt.Errorf("void sale: %w", err)
	}

	e.logger.Info("sale voided",
		zap.String("store_id", result.StoreID),
		zap.String("transaction_id", result.TransactionID),
		zap.Int("entries_removed", result.EntriesRemoved),
		zap.Int64("credit_released", result.CreditReleased))
	return result, nil
}

func (e *Engine) resolveStore(ctx context.Context, storeID string) error {
	if storeID == "" {
		return ErrStoreNotFound
	}
	if _, err := e.store.GetStore(ctx, storeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrStoreNotFound
		}
		return err
	}
	return nil
}

func validateDebt(in DebtInput) error {
	if strings.TrimSpace(in.TransactionID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return ErrInvalidInput
	}
	if in.Qty <= 0 || in.CostPrice <= 0 || in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if in.CostPrice > math.MaxInt64/in.Qty {
		return fmt.Errorf("%w: qty %d x cost %d overflows", ErrInvalidAmount, in.Qty, in.CostPrice)
	}
	if in.Qty*in.CostPrice != in.Amount {
		return fmt.Errorf("%w: amount %d is not qty %d x cost %d", ErrInvalidAmount, in.Amount, in.Qty, in.CostPrice)
	}
	return nil
}
