// Package sqlite is the single-file Repository for deployments without a
// Postgres server. Every ledger transaction starts with BEGIN IMMEDIATE, which
// takes the database write lock up front, so ledger writers are serialized.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/store"
	"modalku/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

// Open creates or opens the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: SQLite has a single writer and reads inside a ledger
	// transaction must come from that transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
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

// LockStore only checks the store exists; the IMMEDIATE transaction already
// holds the write lock.
func (t *ledgerTx) LockStore(ctx context.Context, storeID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM stores WHERE id = ?`, storeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (t *ledgerTx) InsertPayment(ctx context.Context, payment domain.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_payments (id, created_at, store_id, amount, remaining_amount, note, sender, raw)
		VALUES (?,?,?,?,?,?,?,?)
	`, payment.ID, payment.CreatedAt.UnixNano(), payment.StoreID, payment.Amount, payment.RemainingAmount,
		nullIfEmpty(payment.Note), nullIfEmpty(payment.Sender), nullIfEmpty(payment.Raw))
	return mapWriteErr(err)
}

func (t *ledgerTx) InsertEntry(ctx context.Context, entry domain.Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_entries (id, created_at, transaction_id, product_id, item, qty, cost_price, amount, amount_paid)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, entry.ID, entry.CreatedAt.UnixNano(), entry.TransactionID, entry.ProductID, entry.Item,
		entry.Qty, entry.CostPrice, entry.Amount, entry.AmountPaid)
	return mapWriteErr(err)
}

func (t *ledgerTx) InsertAllocation(ctx context.Context, allocation domain.Allocation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payable_allocations (id, created_at, payment_id, entry_id, amount)
		VALUES (?,?,?,?,?)
	`, allocation.ID, allocation.CreatedAt.UnixNano(), allocation.PaymentID, allocation.EntryID, allocation.Amount)
	return mapWriteErr(err)
}

func (t *ledgerTx) LockOpenEntries(ctx context.Context, storeID string) ([]domain.Entry, error) {
	return queryEntries(ctx, t.tx, `
		WHERE p.store_id = ? AND e.amount_paid < e.amount
		ORDER BY e.created_at ASC, e.id ASC
	`, storeID)
}

func (t *ledgerTx) LockOpenPayments(ctx context.Context, storeID string) ([]domain.Payment, error) {
	return queryPayments(ctx, t.tx, `
		WHERE store_id = ? AND remaining_amount > 0
		ORDER BY created_at ASC, id ASC
	`, storeID)
}

func (t *ledgerTx) LockPayments(ctx context.Context, paymentIDs []string) ([]domain.Payment, error) {
	if len(paymentIDs) == 0 {
		return []domain.Payment{}, nil
	}
	payments, err := queryPayments(ctx, t.tx, `
		WHERE id IN (`+placeholders(len(paymentIDs))+`)
		ORDER BY created_at ASC, id ASC
	`, stringArgs(paymentIDs)...)
	if err != nil {
		return nil, err
	}
	if len(payments) != len(paymentIDs) {
		return nil, store.ErrNotFound
	}
	return payments, nil
}

func (t *ledgerTx) SetEntryPaid(ctx context.Context, entryID string, amountPaid int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE payable_entries SET amount_paid = ? WHERE id = ?`, amountPaid, entryID)
	return expectOneRow(res, mapWriteErr(err))
}

func (t *ledgerTx) SetPaymentRemaining(ctx context.Context, paymentID string, remaining int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE payable_payments SET remaining_amount = ? WHERE id = ?`, remaining, paymentID)
	return expectOneRow(res, mapWriteErr(err))
}

func (t *ledgerTx) EntriesByTransaction(ctx context.Context, transactionID string) ([]domain.Entry, error) {
	return queryEntries(ctx, t.tx, `
		WHERE e.transaction_id = ?
		ORDER BY e.created_at ASC, e.id ASC
	`, transactionID)
}

func (t *ledgerTx) AllocationsByEntries(ctx context.Context, entryIDs []string) ([]domain.Allocation, error) {
	if len(entryIDs) == 0 {
		return []domain.Allocation{}, nil
	}
	return queryAllocations(ctx, t.tx, `
		WHERE a.entry_id IN (`+placeholders(len(entryIDs))+`)
		ORDER BY a.created_at ASC, a.id ASC
	`, stringArgs(entryIDs)...)
}

func (t *ledgerTx) DeleteTransaction(ctx context.Context, transactionID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, transactionID)
	return expectOneRow(res, err)
}

func (s *Store) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	var shop domain.Store
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM stores WHERE id = ?`, storeID).
		Scan(&shop.ID, &shop.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shop.CreatedAt = fromNanos(createdAt)
	return &shop, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, payable_mode, cost_price, created_at FROM products WHERE id = ?
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
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, product_id, qty, unit_price, total, kind, note, created_at
		FROM transactions WHERE id = ?
	`, transactionID).Scan(&sale.ID, &sale.StoreID, &sale.ProductID, &sale.Qty, &sale.UnitPrice,
		&sale.Total, &sale.Kind, &note, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Note = note.String
	sale.CreatedAt = fromNanos(createdAt)
	return &sale, nil
}

func (s *Store) SumLedger(ctx context.Context, storeID string) (domain.LedgerSums, error) {
	var sums domain.LedgerSums
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(e.amount) FROM payable_entries e JOIN products p ON p.id = e.product_id WHERE p.store_id = ?1), 0),
			COALESCE((SELECT SUM(e.amount_paid) FROM payable_entries e JOIN products p ON p.id = e.product_id WHERE p.store_id = ?1), 0),
			COALESCE((SELECT SUM(amount) FROM payable_payments WHERE store_id = ?1), 0),
			COALESCE((SELECT SUM(remaining_amount) FROM payable_payments WHERE store_id = ?1), 0),
			COALESCE((SELECT SUM(a.amount) FROM payable_allocations a JOIN payable_payments pp ON pp.id = a.payment_id WHERE pp.store_id = ?1), 0)
	`, storeID).Scan(&sums.TotalPayable, &sums.TotalEntryPaid, &sums.TotalPaid, &sums.TotalRemaining, &sums.TotalAllocated)
	if err != nil {
		return domain.LedgerSums{}, err
	}
	return sums, nil
}

func (s *Store) ListEntries(ctx context.Context, storeID string, openOnly bool) ([]domain.Entry, error) {
	return queryEntries(ctx, s.db, `
		WHERE p.store_id = ? AND (? = 0 OR e.amount_paid < e.amount)
		ORDER BY e.created_at ASC, e.id ASC
	`, storeID, openOnly)
}

func (s *Store) ListPayments(ctx context.Context, storeID string, openOnly bool) ([]domain.Payment, error) {
	return queryPayments(ctx, s.db, `
		WHERE store_id = ? AND (? = 0 OR remaining_amount > 0)
		ORDER BY created_at ASC, id ASC
	`, storeID, openOnly)
}

func (s *Store) ListAllocations(ctx context.Context, filter store.AllocationFilter) ([]domain.Allocation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return queryAllocations(ctx, s.db, `
		JOIN payable_payments pp ON pp.id = a.payment_id
		WHERE (?1 = '' OR pp.store_id = ?1)
			AND (?2 = '' OR a.payment_id = ?2)
			AND (?3 = '' OR a.entry_id = ?3)
		ORDER BY a.created_at ASC, a.id ASC
		LIMIT ?4
	`, filter.StoreID, filter.PaymentID, filter.EntryID, limit)
}

// Snapshot reads inside one transaction; with a single connection no writer
// can interleave.
func (s *Store) Snapshot(ctx context.Context, storeID string) (store.Snapshot, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return store.Snapshot{}, err
	}
	defer func() { _ = sqlTx.Rollback() }()

	var snap store.Snapshot
	if snap.Entries, err = queryEntries(ctx, sqlTx, `
		WHERE p.store_id = ?
		ORDER BY e.created_at ASC, e.id ASC
	`, storeID); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Payments, err = queryPayments(ctx, sqlTx, `
		WHERE store_id = ?
		ORDER BY created_at ASC, id ASC
	`, storeID); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Allocations, err = queryAllocations(ctx, sqlTx, `
		JOIN payable_payments pp ON pp.id = a.payment_id
		JOIN payable_entries e ON e.id = a.entry_id
		JOIN products p ON p.id = e.product_id
		WHERE pp.store_id = ?1 OR p.store_id = ?1
		ORDER BY a.created_at ASC, a.id ASC
	`, storeID); err != nil {
		return store.Snapshot{}, err
	}
	return snap, sqlTx.Commit()
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
	_, err := s.db.ExecContext(ctx, `INSERT INTO stores (id, name, created_at) VALUES (?,?,?)`,
		shop.ID, shop.Name, shop.CreatedAt.UnixNano())
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
		var createdAt int64
		if err := rows.Scan(&shop.ID, &shop.Name, &createdAt); err != nil {
			return nil, err
		}
		shop.CreatedAt = fromNanos(createdAt)
		stores = append(stores, shop)
	}
	return stores, rows.Err()
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
	var cost any
	if product.CostPrice != nil {
		cost = *product.CostPrice
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, name, payable_mode, cost_price, created_at)
		VALUES (?,?,?,?,?,?)
	`, product.ID, product.StoreID, product.Name, product.PayableMode, cost, product.CreatedAt.UnixNano())
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, payable_mode, cost_price, created_at
		FROM products WHERE store_id = ?
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
	return products, rows.Err()
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
		VALUES (?,?,?,?,?,?,?,?,?)
	`, sale.ID, sale.StoreID, sale.ProductID, sale.Qty, sale.UnitPrice, sale.Total, sale.Kind,
		nullIfEmpty(sale.Note), sale.CreatedAt.UnixNano())
	if err != nil {
		return nil, mapWriteErr(err)
	}
	created := sale
	return &created, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	return s.WithinTx(ctx, func(tx store.LedgerTx) error {
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
		INSERT INTO app_users (username, password, role, active, created_at) VALUES (?,?,?,?,?)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt.UnixNano())
	return mapWriteErr(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM app_users ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var createdAt int64
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &createdAt); err != nil {
			return nil, err
		}
		user.CreatedAt = fromNanos(createdAt)
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password = ? WHERE username = ?`, password, username)
	return expectOneRow(res, err)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func queryEntries(ctx context.Context, q queryer, where string, args ...any) ([]domain.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.created_at, e.transaction_id, e.product_id, p.store_id, e.item,
			e.qty, e.cost_price, e.amount, e.amount_paid
		FROM payable_entries e
		JOIN products p ON p.id = e.product_id
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0, 16)
	for rows.Next() {
		var e domain.Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &createdAt, &e.TransactionID, &e.ProductID, &e.StoreID, &e.Item,
			&e.Qty, &e.CostPrice, &e.Amount, &e.AmountPaid); err != nil {
			return nil, err
		}
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryPayments(ctx context.Context, q queryer, where string, args ...any) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, created_at, store_id, amount, remaining_amount, note, sender, raw
		FROM payable_payments
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var p domain.Payment
		var createdAt int64
		var note, sender, raw sql.NullString
		if err := rows.Scan(&p.ID, &createdAt, &p.StoreID, &p.Amount, &p.RemainingAmount, &note, &sender, &raw); err != nil {
			return nil, err
		}
		p.CreatedAt = fromNanos(createdAt)
		p.Note = note.String
		p.Sender = sender.String
		p.Raw = raw.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func queryAllocations(ctx context.Context, q queryer, tail string, args ...any) ([]domain.Allocation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.created_at, a.payment_id, a.entry_id, a.amount
		FROM payable_allocations a
	`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocations := make([]domain.Allocation, 0, 16)
	for rows.Next() {
		var a domain.Allocation
		var createdAt int64
		if err := rows.Scan(&a.ID, &createdAt, &a.PaymentID, &a.EntryID, &a.Amount); err != nil {
			return nil, err
		}
		a.CreatedAt = fromNanos(createdAt)
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func scanProduct(row scanner) (domain.Product, error) {
	var product domain.Product
	var cost sql.NullInt64
	var createdAt int64
	if err := row.Scan(&product.ID, &product.StoreID, &product.Name, &product.PayableMode, &cost, &createdAt); err != nil {
		return domain.Product{}, err
	}
	if cost.Valid {
		value := cost.Int64
		product.CostPrice = &value
	}
	product.CreatedAt = fromNanos(createdAt)
	return product, nil
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
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %v", store.ErrInvalidTransaction, err)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
