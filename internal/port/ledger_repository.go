package port

import (
	"context"
	"time"

	"github.com/ecomcore/inventory/internal/core/domain"
)

// LedgerRepository is the persistence boundary for stock ledger entries. The
// store is the single source of truth; Save must persist the entry and its
// reservations atomically and fail with domain.ErrConflict when the entry's
// version no longer matches.
type LedgerRepository interface {
	// Create inserts a new ledger entry, failing with domain.ErrLedgerExists
	// if the product already has one.
	Create(ctx context.Context, entry *domain.StockLedgerEntry) error

	// GetByProduct retrieves the ledger entry for a product, reservations
	// included. Returns (nil, nil) when the product has no entry.
	GetByProduct(ctx context.Context, productID string) (*domain.StockLedgerEntry, error)

	// GetReservationByOrder retrieves the most recent reservation held by an
	// order. Returns (nil, nil) when none exists.
	GetReservationByOrder(ctx context.Context, orderID string) (*domain.Reservation, error)

	// Save upserts the entry and its reservations in one transaction,
	// conditional on the stored version matching entry.Version.
	Save(ctx context.Context, entry *domain.StockLedgerEntry) error

	// QueryExpiredPending lists pending reservations whose hold lapsed at or
	// before now.
	QueryExpiredPending(ctx context.Context, now time.Time) ([]*domain.Reservation, error)

	// QueryLowStock lists active tracked entries at or below their threshold.
	QueryLowStock(ctx context.Context) ([]*domain.StockLedgerEntry, error)

	// QueryOutOfStock lists active tracked entries with nothing available.
	QueryOutOfStock(ctx context.Context) ([]*domain.StockLedgerEntry, error)
}
