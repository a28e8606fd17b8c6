package ledger

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidInput       = errors.New("invalid ledger input")
	ErrStoreNotFound      = errors.New("store not found")
	ErrStoreMismatch      = errors.New("product belongs to another store")
	ErrInvariantViolation = errors.New("ledger invariant violated")
)
