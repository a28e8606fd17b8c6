package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE make every later statement in fn see the latest
// committed version of the locked rows.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&ledgerTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) LockStore(ctx context.Context, storeID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM stores WHERE id = $1 FOR UPDATE`, storeID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (t *ledgerTx) InsertPayment(ctx context.Context, payment domain.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_payments (id, created_at, store_id, amount, remaining_amount, note, sender, raw)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, payment.CreatedAt, payment.StoreID, payment.Amount, payment.RemainingAmount,
		nullIfEmpty(payment.Note), nullIfEmpty(payment.Sender), nullIfEmpty(payment.Raw))
	return mapWriteErr(err)
}

func (t *ledgerTx) InsertEntry(ctx context.Context, entry domain.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_entries (id, created_at, transaction_id, product_id, item, qty, cost_price, amount, amount_paid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CreatedAt, entry.TransactionID, entry.ProductID, entry.Item,
		entry.Qty, entry.CostPrice, entry.Amount, entry.AmountPaid)
	return mapWriteErr(err)
}

func (t *ledgerTx) InsertAllocation(ctx context.Context, allocation domain.Allocation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_allocations (id, created_at, payment_id, entry_id, amount)
		VALUES ($1,$2,$3,$4,$5)
	`, allocation.ID, allocation.CreatedAt, allocation.PaymentID, allocation.EntryID, allocation.Amount)
	return mapWriteErr(err)
}

func (t *ledgerTx) LockOpenEntries(ctx context.Context, storeID string) ([]domain.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM payable_entries e
		JOIN products p ON p.id = e.product_id
		WHERE p.store_id = $1 AND e.amount_paid < e.amount
		ORDER BY e.created_at ASC, e.id ASC
		FOR UPDATE OF e
	`, storeID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (t *ledgerTx) LockOpenPayments(ctx context.Context, storeID string) ([]domain.Payment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payable_payments
		WHERE store_id = $1 AND remaining_amount > 0
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, storeID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (t *ledgerTx) LockPayments(ctx context.Context, paymentIDs []string) ([]domain.Payment, error) {
	if len(paymentIDs) == 0 {
		return []domain.Payment{}, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payable_payments
		WHERE id = ANY($1)
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, paymentIDs)
	if err != nil {
		return nil, err
	}
	payments, err := collectPayments(rows)
	if err != nil {
		return nil, err
	}
	if len(payments) != len(paymentIDs) {
		return nil, store.ErrNotFound
	}
	return payments, nil
}

func (t *ledgerTx) SetEntryPaid(ctx context.Context, entryID string, amountPaid int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE payable_entries SET amount_paid = $2 WHERE id = $1`, entryID, amountPaid)
	return expectOneRow(res, mapWriteErr(err))
}

func (t *ledgerTx) SetPaymentRemaining(ctx context.Context, paymentID string, remaining int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE payable_payments SET remaining_amount = $2 WHERE id = $1`, paymentID, remaining)
	return expectOneRow(res, mapWriteErr(err))
}

func (t *ledgerTx) EntriesByTransaction(ctx context.Context, transactionID string) ([]domain.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM payable_entries e
		JOIN products p ON p.id = e.product_id
		WHERE e.transaction_id = $1
		ORDER BY e.created_at ASC, e.id ASC
		FOR UPDATE OF e
	`, transactionID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (t *ledgerTx) AllocationsByEntries(ctx context.Context, entryIDs []string) ([]domain.Allocation, error) {
	if len(entryIDs) == 0 {
		return []domain.Allocation{}, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+allocationColumns+`
		FROM payable_allocations a
		WHERE a.entry_id = ANY($1)
		ORDER BY a.created_at ASC, a.id ASC
	`, entryIDs)
	if err != nil {
		return nil, err
	}
	return collectAllocations(rows)
}

func (t *ledgerTx) DeleteTransaction(ctx context.Context, transactionID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, transactionID)
	return expectOneRow(res, err)
}

func (s *Store) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	var shop domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM stores WHERE id = $1
	`, storeID).Scan(&shop.ID, &shop.Name, &shop.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shop.CreatedAt = shop.CreatedAt.UTC()
	return &shop, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, payable_mode, cost_price, created_at
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var sale domain.Transaction
	var note sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, product_id, qty, unit_price, total, kind, note, created_at
		FROM transactions
		WHERE id = $1
	`, transactionID).Scan(&sale.ID, &sale.StoreID, &sale.ProductID, &sale.Qty, &sale.UnitPrice,
		&sale.Total, &sale.Kind, &note, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Note = note.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

// SumLedger reads every aggregate in one statement so they share a snapshot.
func (s *Store) SumLedger(ctx context.Context, storeID string) (domain.LedgerSums, error) {
	var sums domain.LedgerSums
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(e.amount) FROM payable_entries e JOIN products p ON p.id = e.product_id WHERE p.store_id = $1), 0)::bigint,
			COALESCE((SELECT SUM(e.amount_paid) FROM payable_entries e JOIN products p ON p.id = e.product_id WHERE p.store_id = $1), 0)::bigint,
			COALESCE((SELECT SUM(amount) FROM payable_payments WHERE store_id = $1), 0)::bigint,
			COALESCE((SELECT SUM(remaining_amount) FROM payable_payments WHERE store_id = $1), 0)::bigint,
			COALESCE((SELECT SUM(a.amount) FROM payable_allocations a JOIN payable_payments pp ON pp.id = a.payment_id WHERE pp.store_id = $1), 0)::bigint
	`, storeID).Scan(&sums.TotalPayable, &sums.TotalEntryPaid, &sums.TotalPaid, &sums.TotalRemaining, &sums.TotalAllocated)
	if err != nil {
		return domain.LedgerSums{}, err
	}
	return sums, nil
}

func (s *Store) ListEntries(ctx context.Context, storeID string, openOnly bool) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM payable_entries e
		JOIN products p ON p.id = e.product_id
		WHERE p.store_id = $1 AND ($2::boolean = false OR e.amount_paid < e.amount)
		ORDER BY e.created_at ASC, e.id ASC
	`, storeID, openOnly)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *Store) ListPayments(ctx context.Context, storeID string, openOnly bool) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payable_payments
		WHERE store_id = $1 AND ($2::boolean = false OR remaining_amount > 0)
		ORDER BY created_at ASC, id ASC
	`, storeID, openOnly)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (s *Store) ListAllocations(ctx context.Context, filter store.AllocationFilter) ([]domain.Allocation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+allocationColumns+`
		FROM payable_allocations a
		JOIN payable_payments pp ON pp.id = a.payment_id
		WHERE ($1 = '' OR pp.store_id = $1)
			AND ($2 = '' OR a.payment_id = $2)
			AND ($3 = '' OR a.entry_id = $3)
		ORDER BY a.created_at ASC, a.id ASC
		LIMIT $4
	`, filter.StoreID, filter.PaymentID, filter.EntryID, limit)
	if err != nil {
		return nil, err
	}
	return collectAllocations(rows)
}

// Snapshot reads the store's ledger rows inside one REPEATABLE READ
// transaction.
func (s *Store) Snapshot(ctx context.Context, storeID string) (store.Snapshot, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return store.Snapshot{}, err
	}
	defer func() { _ = sqlTx.Rollback() }()

	var snap store.Snapshot
	rows, err := sqlTx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM payable_entries e
		JOIN products p ON p.id = e.product_id
		WHERE p.store_id = $1
		ORDER BY e.created_at ASC, e.id ASC
	`, storeID)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snap.Entries, err = collectEntries(rows); err != nil {
		return store.Snapshot{}, err
	}

	rows, err = sqlTx.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payable_payments
		WHERE store_id = $1
		ORDER BY created_at ASC, id ASC
	`, storeID)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snap.Payments, err = collectPayments(rows); err != nil {
		return store.Snapshot{}, err
	}

	rows, err = sqlTx.QueryContext(ctx, `
		SELECT `+allocationColumns+`
		FROM payable_allocations a
		JOIN payable_payments pp ON pp.id = a.payment_id
		JOIN payable_entries e ON e.id = a.entry_id
		JOIN products p ON p.id = e.product_id
		WHERE pp.store_id = $1 OR p.store_id = $1
		ORDER BY a.created_at ASC, a.id ASC
	`, storeID)
	if err != nil {
		return store.Snapshot{}, err
	}
	if snap.Allocations, err = collectAllocations(rows); err != nil {
		return store.Snapshot{}, err
	}

	if err := sqlTx.Commit(); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) CreateStore(ctx context.Context, shop domain.Store) (*domain.Store, error) {
	shop.Name = strings.TrimSpace(shop.Name)
	if shop.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shop.ID == "" {
		shop.ID = xid.New("str")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, created_at) VALUES ($1,$2,$3)
	`, shop.ID, shop.Name, shop.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := shop
	return &created, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM stores ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 8)
	for rows.Next() {
		var shop domain.Store
		if err := rows.Scan(&shop.ID, &shop.Name, &shop.CreatedAt); err != nil {
			return nil, err
		}
		shop.CreatedAt = shop.CreatedAt.UTC()
		stores = append(stores, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.PayableMode != domain.PayableModeCash && product.PayableMode != domain.PayableModeCredit {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, name, payable_mode, cost_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.StoreID, product.Name, product.PayableMode, nullInt64(product.CostPrice), product.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, payable_mode, cost_price, created_at
		FROM products
		WHERE store_id = $1
		ORDER BY name ASC, id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateTransaction(ctx context.Context, sale domain.Transaction) (*domain.Transaction, error) {
	if sale.Qty <= 0 || sale.UnitPrice < 0 {
		return nil, store.ErrInvalidTransaction
	}
	product, err := s.GetProduct(ctx, sale.ProductID)
	if err != nil {
		return nil, err
	}
	if product.StoreID != sale.StoreID {
		return nil, store.ErrInvalidTransaction
	}
	if sale.ID == "" {
		sale.ID = xid.New("trx")
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, store_id, product_id, qty, unit_price, total, kind, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.StoreID, sale.ProductID, sale.Qty, sale.UnitPrice, sale.Total, sale.Kind,
		nullIfEmpty(sale.Note), sale.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := sale
	return &created, nil
}

// DeleteTransaction removes a sale under its store's ledger lock. Entries and
// allocations cascade; payment credit is not restored here.
func (s *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	sale, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	return s.WithinTx(ctx, func(tx store.LedgerTx) error {
		if err := tx.LockStore(ctx, sale.StoreID); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, transactionID)
	})
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return mapWriteErr(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	return expectOneRow(res, err)
}

const (
	entryColumns = `e.id, e.created_at, e.transaction_id, e.product_id, p.store_id, e.item,
		e.qty, e.cost_price, e.amount, e.amount_paid`
	paymentColumns    = `id, created_at, store_id, amount, remaining_amount, note, sender, raw`
	allocationColumns = `a.id, a.created_at, a.payment_id, a.entry_id, a.amount`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var product domain.Product
	var cost sql.NullInt64
	if err := row.Scan(&product.ID, &product.StoreID, &product.Name, &product.PayableMode, &cost, &product.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	if cost.Valid {
		value := cost.Int64
		product.CostPrice = &value
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return product, nil
}

func collectEntries(rows *sql.Rows) ([]domain.Entry, error) {
	defer rows.Close()
	entries := make([]domain.Entry, 0, 16)
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.TransactionID, &e.ProductID, &e.StoreID, &e.Item,
			&e.Qty, &e.CostPrice, &e.Amount, &e.AmountPaid); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func collectPayments(rows *sql.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var p domain.Payment
		var note, sender, raw sql.NullString
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.StoreID, &p.Amount, &p.RemainingAmount, &note, &sender, &raw); err != nil {
			return nil, err
		}
		p.Note = note.String
		p.Sender = sender.String
		p.Raw = raw.String
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func collectAllocations(rows *sql.Rows) ([]domain.Allocation, error) {
	defer rows.Close()
	allocations := make([]domain.Allocation, 0, 16)
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.PaymentID, &a.EntryID, &a.Amount); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return allocations, nil
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case isCheckViolation(err):
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
