package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

// Store is an in-process Repository. Ledger writes are staged inside a
// transaction and applied at commit, and every ledger transaction holds the
// per-store lock taken by LockStore until it finishes.
type Store struct {
	mu              sync.RWMutex
	stores          map[string]domain.Store
	products        map[string]domain.Product
	transactions    map[string]domain.Transaction
	entries         map[string]domain.Entry
	payments        map[string]domain.Payment
	allocations     []domain.Allocation
	usersByUsername map[string]domain.UserAccount

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	faultsMu sync.Mutex
	faults   map[string]error
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		stores:          make(map[string]domain.Store),
		products:        make(map[string]domain.Product),
		transactions:    make(map[string]domain.Transaction),
		entries:         make(map[string]domain.Entry),
		payments:        make(map[string]domain.Payment),
		allocations:     make([]domain.Allocation, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
		locks:           make(map[string]chan struct{}),
		faults:          make(map[string]error),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD;
// when unset the dev defaults are used and a warning is logged.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		zap.L().Warn("memory store is using default dev credentials",
			zap.String("hint", "set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD"))
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one demo shop, a handful of products in both
// payable modes and the dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	s.stores["main-store"] = domain.Store{ID: "main-store", Name: "Toko Utama", CreatedAt: now}

	for _, p := range []struct {
		id   string
		name string
		mode string
		cost int64
	}{
		{"prd-kopi", "Kopi Sachet", domain.PayableModeCredit, 2000},
		{"prd-gula", "Gula 1kg", domain.PayableModeCredit, 15000},
		{"prd-telur", "Telur 10 Butir", domain.PayableModeCredit, 24000},
		{"prd-roti", "Roti Tawar", domain.PayableModeCredit, 0},
		{"prd-air", "Air Mineral 600ml", domain.PayableModeCash, 3000},
	} {
		product := domain.Product{
			ID:          p.id,
			StoreID:     "main-store",
			Name:        p.name,
			PayableMode: p.mode,
			CreatedAt:   now,
		}
		if p.cost > 0 {
			cost := p.cost
			product.CostPrice = &cost
		}
		s.products[p.id] = product
	}
	s.usersByUsername = seedUsers()
	return s
}

// FailOn makes the next call of the named ledger operation return err. The
// names are the LedgerTx method names plus "Commit".
func (s *Store) FailOn(op string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func (s *Store) acquire(ctx context.Context, storeID string) error {
	s.locksMu.Lock()
	ch, ok := s.locks[storeID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[storeID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release(storeID string) {
	s.locksMu.Lock()
	ch := s.locks[storeID]
	s.locksMu.Unlock()
	<-ch
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:        s,
		held:     make(map[string]bool),
		entries:  make(map[string]domain.Entry),
		payments: make(map[string]domain.Payment),
		deleted:  make(map[string]bool),
	}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fault("Commit"); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range tx.entries {
		s.entries[id] = entry
	}
	for id, payment := range tx.payments {
		s.payments[id] = payment
	}
	s.allocations = append(s.allocations, tx.allocations...)
	for transactionID := range tx.deleted {
		s.deleteTransactionLocked(transactionID)
	}
}

func (s *Store) deleteTransactionLocked(transactionID string) {
	delete(s.transactions, transactionID)
	removed := make(map[string]bool)
	for id, entry := range s.entries {
		if entry.TransactionID == transactionID {
			removed[id] = true
			delete(s.entries, id)
		}
	}
	if len(removed) == 0 {
		return
	}
	kept := s.allocations[:0]
	for _, allocation := range s.allocations {
		if !removed[allocation.EntryID] {
			kept = append(kept, allocation)
		}
	}
	s.allocations = kept
}

type memTx struct {
	s           *Store
	held        map[string]bool
	entries     map[string]domain.Entry
	payments    map[string]domain.Payment
	allocations []domain.Allocation
	deleted     map[string]bool
}

func (t *memTx) releaseAll() {
	for storeID := range t.held {
		t.s.release(storeID)
	}
}

func (t *memTx) requireLock(storeID string) error {
	if !t.held[storeID] {
		return fmt.Errorf("%w: %s", store.ErrLockNotHeld, storeID)
	}
	return nil
}

func (t *memTx) LockStore(ctx context.Context, storeID string) error {
	if err := t.s.fault("LockStore"); err != nil {
		return err
	}
	if t.held[storeID] {
		return nil
	}
	t.s.mu.RLock()
	_, exists := t.s.stores[storeID]
	t.s.mu.RUnlock()
	if !exists {
		return store.ErrNotFound
	}
	if err := t.s.acquire(ctx, storeID); err != nil {
		return err
	}
	t.held[storeID] = true
	return nil
}

func (t *memTx) entry(id string) (domain.Entry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		t.s.mu.RLock()
		entry, ok = t.s.entries[id]
		t.s.mu.RUnlock()
	}
	if !ok || t.deleted[entry.TransactionID] {
		return domain.Entry{}, false
	}
	return entry, true
}

func (t *memTx) payment(id string) (domain.Payment, bool) {
	if payment, ok := t.payments[id]; ok {
		return payment, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	payment, ok := t.s.payments[id]
	return payment, ok
}

func (t *memTx) InsertPayment(_ context.Context, payment domain.Payment) error {
	if err := t.s.fault("InsertPayment"); err != nil {
		return err
	}
	if err := t.requireLock(payment.StoreID); err != nil {
		return err
	}
	if payment.ID == "" || payment.Amount <= 0 || payment.RemainingAmount < 0 || payment.RemainingAmount > payment.Amount {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.payment(payment.ID); exists {
		return store.ErrConflict
	}
	t.payments[payment.ID] = payment
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, entry domain.Entry) error {
	if err := t.s.fault("InsertEntry"); err != nil {
		return err
	}
	t.s.mu.RLock()
	product, productOK := t.s.products[entry.ProductID]
	_, saleOK := t.s.transactions[entry.TransactionID]
	t.s.mu.RUnlock()
	if !productOK || !saleOK || t.deleted[entry.TransactionID] {
		return store.ErrNotFound
	}
	entry.StoreID = product.StoreID
	if err := t.requireLock(entry.StoreID); err != nil {
		return err
	}
	if entry.ID == "" || entry.Qty <= 0 || entry.CostPrice < 0 || entry.Amount <= 0 ||
		entry.AmountPaid < 0 || entry.AmountPaid > entry.Amount {
		return store.ErrInvalidTransaction
	}
	if _, exists := t.entry(entry.ID); exists {
		return store.ErrConflict
	}
	t.entries[entry.ID] = entry
	return nil
}

func (t *memTx) InsertAllocation(_ context.Context, allocation domain.Allocation) error {
	if err := t.s.fault("InsertAllocation"); err != nil {
		return err
	}
	if allocation.ID == "" || allocation.Amount <= 0 {
		return store.ErrInvalidTransaction
	}
	payment, paymentOK := t.payment(allocation.PaymentID)
	entry, entryOK := t.entry(allocation.EntryID)
	if !paymentOK || !entryOK {
		return store.ErrNotFound
	}
	if err := t.requireLock(payment.StoreID); err != nil {
		return err
	}
	if err := t.requireLock(entry.StoreID); err != nil {
		return err
	}
	t.allocations = append(t.allocations, allocation)
	return nil
}

func (t *memTx) LockOpenEntries(_ context.Context, storeID string) ([]domain.Entry, error) {
	if err := t.s.fault("LockOpenEntries"); err != nil {
		return nil, err
	}
	if err := t.requireLock(storeID); err != nil {
		return nil, err
	}
	ids := t.entryIDs(func(e domain.Entry) bool { return e.StoreID == storeID })
	open := make([]domain.Entry, 0, len(ids))
	for _, id := range ids {
		entry, ok := t.entry(id)
		if ok && entry.StoreID == storeID && entry.AmountPaid < entry.Amount {
			open = append(open, entry)
		}
	}
	slices.SortFunc(open, compareEntry)
	return open, nil
}

func (t *memTx) LockOpenPayments(_ context.Context, storeID string) ([]domain.Payment, error) {
	if err := t.s.fault("LockOpenPayments"); err != nil {
		return nil, err
	}
	if err := t.requireLock(storeID); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	open := make([]domain.Payment, 0, 8)
	for id, payment := range t.payments {
		seen[id] = true
		if payment.StoreID == storeID && payment.RemainingAmount > 0 {
			open = append(open, payment)
		}
	}
	t.s.mu.RLock()
	for id, payment := range t.s.payments {
		if seen[id] {
			continue
		}
		if payment.StoreID == storeID && payment.RemainingAmount > 0 {
			open = append(open, payment)
		}
	}
	t.s.mu.RUnlock()
	slices.SortFunc(open, comparePayment)
	return open, nil
}

func (t *memTx) LockPayments(_ context.Context, paymentIDs []string) ([]domain.Payment, error) {
	if err := t.s.fault("LockPayments"); err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(paymentIDs))
	for _, id := range paymentIDs {
		payment, ok := t.payment(id)
		if !ok {
			return nil, store.ErrNotFound
		}
		if err := t.requireLock(payment.StoreID); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	slices.SortFunc(payments, comparePayment)
	return payments, nil
}

func (t *memTx) SetEntryPaid(_ context.Context, entryID string, amountPaid int64) error {
	if err := t.s.fault("SetEntryPaid"); err != nil {
		return err
	}
	entry, ok := t.entry(entryID)
	if !ok {
		return store.ErrNotFound
	}
	if err := t.requireLock(entry.StoreID); err != nil {
		return err
	}
	if amountPaid < 0 || amountPaid > entry.Amount {
		return store.ErrInvalidTransaction
	}
	entry.AmountPaid = amountPaid
	t.entries[entryID] = entry
	return nil
}

func (t *memTx) SetPaymentRemaining(_ context.Context, paymentID string, remaining int64) error {
	if err := t.s.fault("SetPaymentRemaining"); err != nil {
		return err
	}
	payment, ok := t.payment(paymentID)
	if !ok {
		return store.ErrNotFound
	}
	if err := t.requireLock(payment.StoreID); err != nil {
		return err
	}
	if remaining < 0 || remaining > payment.Amount {
		return store.ErrInvalidTransaction
	}
	payment.RemainingAmount = remaining
	t.payments[paymentID] = payment
	return nil
}

func (t *memTx) EntriesByTransaction(_ context.Context, transactionID string) ([]domain.Entry, error) {
	if err := t.s.fault("EntriesByTransaction"); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	sale, ok := t.s.transactions[transactionID]
	t.s.mu.RUnlock()
	if !ok || t.deleted[transactionID] {
		return nil, store.ErrNotFound
	}
	if err := t.requireLock(sale.StoreID); err != nil {
		return nil, err
	}
	ids := t.entryIDs(func(e domain.Entry) bool { return e.TransactionID == transactionID })
	entries := make([]domain.Entry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := t.entry(id); ok {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, compareEntry)
	return entries, nil
}

func (t *memTx) AllocationsByEntries(_ context.Context, entryIDs []string) ([]domain.Allocation, error) {
	if err := t.s.fault("AllocationsByEntries"); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		wanted[id] = true
	}
	out := make([]domain.Allocation, 0, len(entryIDs))
	t.s.mu.RLock()
	for _, allocation := range t.s.allocations {
		if wanted[allocation.EntryID] {
			out = append(out, allocation)
		}
	}
	t.s.mu.RUnlock()
	for _, allocation := range t.allocations {
		if wanted[allocation.EntryID] {
			out = append(out, allocation)
		}
	}
	slices.SortFunc(out, compareAllocation)
	return out, nil
}

func (t *memTx) DeleteTransaction(_ context.Context, transactionID string) error {
	if err := t.s.fault("DeleteTransaction"); err != nil {
		return err
	}
	t.s.mu.RLock()
	sale, ok := t.s.transactions[transactionID]
	t.s.mu.RUnlock()
	if !ok || t.deleted[transactionID] {
		return store.ErrNotFound
	}
	if err := t.requireLock(sale.StoreID); err != nil {
		return err
	}
	t.deleted[transactionID] = true
	return nil
}

// entryIDs lists committed and staged entry ids matching keep.
func (t *memTx) entryIDs(keep func(domain.Entry) bool) []string {
	ids := make([]string, 0, 16)
	seen := make(map[string]bool)
	for id, entry := range t.entries {
		seen[id] = true
		if keep(entry) {
			ids = append(ids, id)
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, entry := range t.s.entries {
		if !seen[id] && keep(entry) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) GetStore(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.stores[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &found, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) GetTransaction(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.transactions[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) SumLedger(_ context.Context, storeID string) (domain.LedgerSums, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sums domain.LedgerSums
	for _, entry := range s.entries {
		if entry.StoreID != storeID {
			continue
		}
		sums.TotalPayable += entry.Amount
		sums.TotalEntryPaid += entry.AmountPaid
	}
	for _, payment := range s.payments {
		if payment.StoreID != storeID {
			continue
		}
		sums.TotalPaid += payment.Amount
		sums.TotalRemaining += payment.RemainingAmount
	}
	for _, allocation := range s.allocations {
		if s.payments[allocation.PaymentID].StoreID == storeID {
			sums.TotalAllocated += allocation.Amount
		}
	}
	return sums, nil
}

func (s *Store) ListEntries(_ context.Context, storeID string, openOnly bool) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.StoreID != storeID {
			continue
		}
		if openOnly && entry.AmountPaid >= entry.Amount {
			continue
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, compareEntry)
	return entries, nil
}

func (s *Store) ListPayments(_ context.Context, storeID string, openOnly bool) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(s.payments))
	for _, payment := range s.payments {
		if payment.StoreID != storeID {
			continue
		}
		if openOnly && payment.RemainingAmount <= 0 {
			continue
		}
		payments = append(payments, payment)
	}
	slices.SortFunc(payments, comparePayment)
	return payments, nil
}

func (s *Store) ListAllocations(_ context.Context, filter store.AllocationFilter) ([]domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Allocation, 0, 16)
	for _, allocation := range s.allocations {
		if filter.StoreID != "" && s.payments[allocation.PaymentID].StoreID != filter.StoreID {
			continue
		}
		if filter.PaymentID != "" && allocation.PaymentID != filter.PaymentID {
			continue
		}
		if filter.EntryID != "" && allocation.EntryID != filter.EntryID {
			continue
		}
		out = append(out, allocation)
	}
	slices.SortFunc(out, compareAllocation)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Snapshot(_ context.Context, storeID string) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap store.Snapshot
	for _, entry := range s.entries {
		if entry.StoreID == storeID {
			snap.Entries = append(snap.Entries, entry)
		}
	}
	for _, payment := range s.payments {
		if payment.StoreID == storeID {
			snap.Payments = append(snap.Payments, payment)
		}
	}
	for _, allocation := range s.allocations {
		if s.payments[allocation.PaymentID].StoreID == storeID || s.entries[allocation.EntryID].StoreID == storeID {
			snap.Allocations = append(snap.Allocations, allocation)
		}
	}
	slices.SortFunc(snap.Entries, compareEntry)
	slices.SortFunc(snap.Payments, comparePayment)
	slices.SortFunc(snap.Allocations, compareAllocation)
	return snap, nil
}

// Corrupt overwrites ledger rows without any checks. Tests use it to build
// states the engine can never produce.
func (s *Store) Corrupt(fn func(entries map[string]domain.Entry, payments map[string]domain.Payment, allocations *[]domain.Allocation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.entries, s.payments, &s.allocations)
}

func (s *Store) CreateStore(_ context.Context, shop domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop.Name = strings.TrimSpace(shop.Name)
	if shop.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shop.ID == "" {
		shop.ID = xid.New("str")
	}
	if _, exists := s.stores[shop.ID]; exists {
		return nil, store.ErrConflict
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	s.stores[shop.ID] = shop
	created := shop
	return &created, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, shop := range s.stores {
		stores = append(stores, shop)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int {
		return strings.Compare(a.ID, b.ID)
	})
	return stores, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.PayableMode != domain.PayableModeCash && product.PayableMode != domain.PayableModeCredit {
		return nil, store.ErrInvalidTransaction
	}
	if product.CostPrice != nil && *product.CostPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.stores[product.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product = cloneProduct(product)
	s.products[product.ID] = product
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.StoreID != storeID {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateTransaction(_ context.Context, sale domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.Qty <= 0 || sale.UnitPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	product, ok := s.products[sale.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.stores[sale.StoreID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.StoreID != sale.StoreID {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("trx")
	}
	if _, exists := s.transactions[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.Kind == "" {
		sale.Kind = domain.TxKindStockOut
	}
	if sale.Total == 0 {
		sale.Total = sale.Qty * sale.UnitPrice
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.transactions[sale.ID] = sale
	created := sale
	return &created, nil
}

// DeleteTransaction removes a sale and cascades to its entries and their
// allocations. It takes the store's ledger lock but does not restore payment
// credit; ledger.Engine.VoidSale does that.
func (s *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	s.mu.RLock()
	sale, ok := s.transactions[transactionID]
	s.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}
	if err := s.acquire(ctx, sale.StoreID); err != nil {
		return err
	}
	defer s.release(sale.StoreID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[transactionID]; !ok {
		return store.ErrNotFound
	}
	s.deleteTransactionLocked(transactionID)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareEntry(a, b domain.Entry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func comparePayment(a, b domain.Payment) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareAllocation(a, b domain.Allocation) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.CostPrice != nil {
		cost := *src.CostPrice
		dup.CostPrice = &cost
	}
	return dup
}
