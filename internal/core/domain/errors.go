package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidThreshold    = errors.New("threshold must not be negative")
	ErrLedgerNotFound      = errors.New("ledger entry not found")
	ErrLedgerExists        = errors.New("ledger entry already exists")
	ErrReservationNotFound = errors.New("no pending reservation for order")
	ErrDuplicateHold       = errors.New("order already holds a pending reservation")

	// ErrConflict is returned by storage when an optimistic write loses a
	// race. The engine retries a bounded number of times before surfacing it.
	ErrConflict = errors.New("concurrent modification conflict")
)

// InsufficientStockError is the expected, user-facing failure when a
// reservation asks for more than is available. It never mutates state.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvariantViolationError indicates a counter went negative, i.e. a prior
// write already broke the books. The operation is rejected, never repaired.
type InvariantViolationError struct {
	ProductID string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("inventory invariant violated for product %s: %s", e.ProductID, e.Detail)
}
