package domain

import "time"

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Name        string    `json:"name"`
	PayableMode string    `json:"payable_mode"`
	CostPrice   *int64    `json:"cost_price,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transaction is the stock-out sale row that owns at most one payable entry.
type Transaction struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Qty       int64     `json:"qty"`
	UnitPrice int64     `json:"unit_price"`
	Total     int64     `json:"total"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Entry struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	TransactionID string    `json:"transaction_id"`
	ProductID     string    `json:"product_id"`
	StoreID       string    `json:"store_id"`
	Item          string    `json:"item"`
	Qty           int64     `json:"qty"`
	CostPrice     int64     `json:"cost_price"`
	Amount        int64     `json:"amount"`
	AmountPaid    int64     `json:"amount_paid"`
}

func (e Entry) Outstanding() int64 {
	return e.Amount - e.AmountPaid
}

type Payment struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	StoreID         string    `json:"store_id"`
	Amount          int64     `json:"amount"`
	RemainingAmount int64     `json:"remaining_amount"`
	Note            string    `json:"note,omitempty"`
	Sender          string    `json:"sender,omitempty"`
	Raw             string    `json:"raw,omitempty"`
}

type Allocation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	PaymentID string    `json:"payment_id"`
	EntryID   string    `json:"entry_id"`
	Amount    int64     `json:"amount"`
}

// Settlement is one (entry, payment, amount) pair produced by a matching run.
type Settlement struct {
	AllocationID string `json:"allocation_id"`
	PaymentID    string `json:"payment_id"`
	EntryID      string `json:"entry_id"`
	Item         string `json:"item,omitempty"`
	Amount       int64  `json:"amount"`
	// Left is what remained on the counterpart row after this allocation.
	Left         int64  `json:"left"`
}

type PaymentResult struct {
	PaymentID   string       `json:"payment_id"`
	StoreID     string       `json:"store_id"`
	Amount      int64        `json:"amount"`
	Remaining   int64        `json:"remaining"`
	Allocations []Settlement `json:"allocations"`
}

type DebtResult struct {
	EntryID     string       `json:"entry_id"`
	StoreID     string       `json:"store_id"`
	Item        string       `json:"item"`
	Amount      int64        `json:"amount"`
	Remaining   int64        `json:"remaining"`
	Allocations []Settlement `json:"allocations"`
}

type VoidResult struct {
	TransactionID   string `json:"transaction_id"`
	StoreID         string `json:"store_id"`
	EntriesRemoved  int    `json:"entries_removed"`
	CreditReleased  int64  `json:"credit_released"`
	PaymentsTouched int    `json:"payments_touched"`
}

type Balance struct {
	StoreID         string `json:"store_id"`
	TotalPayable    int64  `json:"total_payable"`
	TotalPaid       int64  `json:"total_paid"`
	Balance         int64  `json:"balance"`
	Outstanding     int64  `json:"outstanding"`
	AvailableCredit int64  `json:"available_credit"`
}

// LedgerSums are the raw per-store aggregates a LedgerStore reports.
type LedgerSums struct {
	TotalPayable   int64
	TotalPaid      int64
	TotalEntryPaid int64
	TotalRemaining int64
	TotalAllocated int64
}

type Violation struct {
	Kind     string `json:"kind"`
	RowID    string `json:"row_id"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Detail   string `json:"detail"`
}

type VerifyReport struct {
	StoreID    string      `json:"store_id"`
	Entries    int         `json:"entries"`
	Payments   int         `json:"payments"`
	Violations []Violation `json:"violations"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type SaleRequest struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
	CostPrice *int64 `json:"cost_price,omitempty"`
	Note      string `json:"note,omitempty"`
}

type SaleResponse struct {
	Transaction  Transaction `json:"transaction"`
	Ledger       string      `json:"ledger"`
	SkipReason   string      `json:"skip_reason,omitempty"`
	Debt         *DebtResult `json:"debt,omitempty"`
	Confirmation string      `json:"confirmation"`
	Balance      Balance     `json:"balance"`
}

type CapitalRequest struct {
	StoreID string `json:"store_id"`
	Amount  string `json:"amount"`
	Note    string `json:"note,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

type CapitalResponse struct {
	Payment      PaymentResult `json:"payment"`
	Confirmation string        `json:"confirmation"`
	Balance      Balance       `json:"balance"`
}

const (
	PayableModeCash   = "cash"
	PayableModeCredit = "credit"
)

const (
	TxKindStockOut = "stock_out"
	TxKindStockIn  = "stock_in"
)

const (
	LedgerRecorded = "recorded"
	LedgerSkipped  = "skipped"
)

const (
	ViolationEntryPaidRange       = "entry_paid_out_of_range"
	ViolationEntryPaidSum         = "entry_paid_mismatch"
	ViolationPaymentRemRange      = "payment_remaining_out_of_range"
	ViolationPaymentRemSum        = "payment_remaining_mismatch"
	ViolationAllocationAmount     = "allocation_not_positive"
	ViolationAllocationCrossStore = "allocation_cross_store"
)
