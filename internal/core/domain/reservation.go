package domain

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a temporary hold on stock tied to an in-flight order.
// Pending reservations either get confirmed (stock consumed), cancelled
// (stock returned), or expire and are cancelled by the sweeper. Confirmed
// and Cancelled are terminal.
type Reservation struct {
	ID            string
	LedgerEntryID string
	ProductID     string
	OrderID       string
	Quantity      int
	Status        ReservationStatus
	ExpiresAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsExpired reports whether a still-pending reservation has outlived its hold.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationPending && now.After(r.ExpiresAt)
}

func (r *Reservation) confirm(now time.Time) {
	r.Status = ReservationConfirmed
	r.ConfirmedAt = &now
	r.UpdatedAt = now
}

func (r *Reservation) cancel(now time.Time) {
	r.Status = ReservationCancelled
	r.CancelledAt = &now
	r.UpdatedAt = now
}
