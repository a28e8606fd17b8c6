package store

import (
	"context"
	"errors"

	"modalku/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	// ErrLockNotHeld means a ledger row was written without first locking its store.
	ErrLockNotHeld = errors.New("store ledger lock not held")
)

// LedgerTx is the write side of the payable ledger. Every method runs inside the
// transaction opened by LedgerStore.WithinTx; Lock* methods block until rows held
// by another transaction are released.
type LedgerTx interface {
	// LockStore takes the exclusive ledger lock for one store. It serializes
	// mutating operations inside a store and never touches other stores.
	LockStore(ctx context.Context, storeID string) error
	InsertPayment(ctx context.Context, payment domain.Payment) error
	InsertEntry(ctx context.Context, entry domain.Entry) error
	InsertAllocation(ctx context.Context, allocation domain.Allocation) error
	// LockOpenEntries returns entries with amount_paid < amount, oldest first.
	LockOpenEntries(ctx context.Context, storeID string) ([]domain.Entry, error)
	// LockOpenPayments returns payments with remaining_amount > 0, oldest first.
	LockOpenPayments(ctx context.Context, storeID string) ([]domain.Payment, error)
	LockPayments(ctx context.Context, paymentIDs []string) ([]domain.Payment, error)
	SetEntryPaid(ctx context.Context, entryID string, amountPaid int64) error
	SetPaymentRemaining(ctx context.Context, paymentID string, remaining int64) error
	EntriesByTransaction(ctx context.Context, transactionID string) ([]domain.Entry, error)
	AllocationsByEntries(ctx context.Context, entryIDs []string) ([]domain.Allocation, error)
	// DeleteTransaction removes a sale row; its entries and their allocations cascade.
	DeleteTransaction(ctx context.Context, transactionID string) error
}

// LedgerReader is the read side used for balances, listings and verification.
type LedgerReader interface {
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	SumLedger(ctx context.Context, storeID string) (domain.LedgerSums, error)
	ListEntries(ctx context.Context, storeID string, openOnly bool) ([]domain.Entry, error)
	ListPayments(ctx context.Context, storeID string, openOnly bool) ([]domain.Payment, error)
	ListAllocations(ctx context.Context, filter AllocationFilter) ([]domain.Allocation, error)
	// Snapshot reads every ledger row touching a store from one consistent view.
	Snapshot(ctx context.Context, storeID string) (Snapshot, error)
}

type LedgerStore interface {
	LedgerReader
	// WithinTx runs fn in one transaction. A non-nil error from fn, a panic or a
	// cancelled ctx rolls everything back.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type Catalog interface {
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	LedgerStore
	Catalog
	UserStore
	Close() error
}

type AllocationFilter struct {
	StoreID   string
	PaymentID string
	EntryID   string
	Limit     int
}

type Snapshot struct {
	Entries     []domain.Entry
	Payments    []domain.Payment
	Allocations []domain.Allocation
}
