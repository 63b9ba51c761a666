package domain

import "time"

// StockLedgerEntry is the authoritative stock record for one product and the
// aggregate root owning its reservations. Counters only move through the
// guarded mutations below; callers persist the whole entry atomically and use
// Version for optimistic concurrency.
type StockLedgerEntry struct {
	ID                string
	ProductID         string
	CurrentStock      int
	ReservedStock     int
	LowStockThreshold int
	TrackInventory    bool
	IsActive          bool
	Version           int // optimistic locking
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Reservations []*Reservation
}

// AvailableStock is the quantity sellable right now: current minus held.
func (e *StockLedgerEntry) AvailableStock() int {
	return e.CurrentStock - e.ReservedStock
}

func (e *StockLedgerEntry) IsLowStock() bool {
	return e.TrackInventory && e.AvailableStock() <= e.LowStockThreshold
}

func (e *StockLedgerEntry) IsOutOfStock() bool {
	return e.TrackInventory && e.AvailableStock() <= 0
}

// PendingReservation returns the single pending reservation held by orderID,
// or nil. At most one pending reservation exists per order.
func (e *StockLedgerEntry) PendingReservation(orderID string) *Reservation {
	for _, r := range e.Reservations {
		if r.OrderID == orderID && r.Status == ReservationPending {
			return r
		}
	}
	return nil
}

// Reserve places a hold of quantity units for orderID. When the entry does
// not track inventory the reservation comes back already confirmed and no
// counters move. Otherwise the hold must fit in AvailableStock and expires
// at now + hold.
func (e *StockLedgerEntry) Reserve(id, orderID string, quantity int, now time.Time, hold time.Duration) (*Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if e.PendingReservation(orderID) != nil {
		return nil, ErrDuplicateHold
	}

	r := &Reservation{
		ID:            id,
		LedgerEntryID: e.ID,
		ProductID:     e.ProductID,
		OrderID:       orderID,
		Quantity:      quantity,
		Status:        ReservationPending,
		ExpiresAt:     now.Add(hold),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if !e.TrackInventory {
		r.confirm(now)
		e.Reservations = append(e.Reservations, r)
		return r, nil
	}

	if quantity > e.AvailableStock() {
		return nil, &InsufficientStockError{
			ProductID: e.ProductID,
			Requested: quantity,
			Available: e.AvailableStock(),
		}
	}

	e.ReservedStock += quantity
	e.UpdatedAt = now
	e.Reservations = append(e.Reservations, r)
	return r, nil
}

// Commit consumes the pending hold for orderID: the units leave CurrentStock
// permanently. This is the only mutation that lowers CurrentStock.
func (e *StockLedgerEntry) Commit(orderID string, now time.Time) (*Reservation, error) {
	if !e.TrackInventory {
		return nil, nil
	}
	r := e.PendingReservation(orderID)
	if r == nil {
		return nil, ErrReservationNotFound
	}
	if e.CurrentStock-r.Quantity < 0 || e.ReservedStock-r.Quantity < 0 {
		return nil, &InvariantViolationError{
			ProductID: e.ProductID,
			Detail:    "commit would drive a stock counter negative",
		}
	}
	e.CurrentStock -= r.Quantity
	e.ReservedStock -= r.Quantity
	e.UpdatedAt = now
	r.confirm(now)
	return r, nil
}

// Cancel releases the pending hold for orderID back to the available pool.
func (e *StockLedgerEntry) Cancel(orderID string, now time.Time) (*Reservation, error) {
	if !e.TrackInventory {
		return nil, nil
	}
	r := e.PendingReservation(orderID)
	if r == nil {
		return nil, ErrReservationNotFound
	}
	if e.ReservedStock-r.Quantity < 0 {
		return nil, &InvariantViolationError{
			ProductID: e.ProductID,
			Detail:    "cancel would drive reserved stock negative",
		}
	}
	e.ReservedStock -= r.Quantity
	e.UpdatedAt = now
	r.cancel(now)
	return r, nil
}

// Adjust moves CurrentStock by delta, clamped at zero. A large negative
// adjustment is absorbed, not an error. Returns the old and new values.
func (e *StockLedgerEntry) Adjust(delta int, now time.Time) (old, updated int) {
	old = e.CurrentStock
	if !e.TrackInventory {
		return old, old
	}
	updated = e.CurrentStock + delta
	if updated < 0 {
		updated = 0
	}
	e.CurrentStock = updated
	e.UpdatedAt = now
	return old, updated
}

// SetLowStockThreshold updates the per-product low-stock line.
func (e *StockLedgerEntry) SetLowStockThreshold(threshold int, now time.Time) error {
	if threshold < 0 {
		return ErrInvalidThreshold
	}
	e.LowStockThreshold = threshold
	e.UpdatedAt = now
	return nil
}

// Deactivate soft-deletes the entry. Ledger entries are never hard-deleted.
func (e *StockLedgerEntry) Deactivate(now time.Time) {
	e.IsActive = false
	e.UpdatedAt = now
}
