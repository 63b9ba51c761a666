package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ecomcore/inventory/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

// MySQLRepository is the authoritative store for ledger entries and their
// reservations. Writes are guarded by a version column; a lost race surfaces
// as domain.ErrConflict and the engine retries.
type MySQLRepository struct {
	db *sql.DB
}

func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (m *MySQLRepository) Create(ctx context.Context, e *domain.StockLedgerEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_ledger
			(id, product_id, current_stock, reserved_stock, low_stock_threshold,
			 track_inventory, is_active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		e.ID, e.ProductID, e.CurrentStock, e.ReservedStock, e.LowStockThreshold,
		e.TrackInventory, e.IsActive, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return domain.ErrLedgerExists
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (m *MySQLRepository) GetByProduct(ctx context.Context, productID string) (*domain.StockLedgerEntry, error) {
	var e domain.StockLedgerEntry
	err := m.db.QueryRowContext(ctx, `
		SELECT id, product_id, current_stock, reserved_stock, low_stock_threshold,
		       track_inventory, is_active, version, created_at, updated_at
		FROM stock_ledger WHERE product_id = ?`, productID,
	).Scan(&e.ID, &e.ProductID, &e.CurrentStock, &e.ReservedStock, &e.LowStockThreshold,
		&e.TrackInventory, &e.IsActive, &e.Version, &e.CreatedAt, &e.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger entry: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, ledger_entry_id, product_id, order_id, quantity, status,
		       expires_at, confirmed_at, cancelled_at, created_at, updated_at
		FROM reservations
		WHERE ledger_entry_id = ? AND status = 'pending'`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("query pending reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		e.Reservations = append(e.Reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return &e, nil
}

func (m *MySQLRepository) GetReservationByOrder(ctx context.Context, orderID string) (*domain.Reservation, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, ledger_entry_id, product_id, order_id, quantity, status,
		       expires_at, confirmed_at, cancelled_at, created_at, updated_at
		FROM reservations
		WHERE order_id = ?
		ORDER BY status = 'pending' DESC, created_at DESC
		LIMIT 1`, orderID)

	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Save upserts the entry and its in-memory reservations in one transaction,
// conditional on the stored version. Bumps entry.Version to the stored value
// on success.
func (m *MySQLRepository) Save(ctx context.Context, e *domain.StockLedgerEntry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE stock_ledger
		SET current_stock = ?, reserved_stock = ?, low_stock_threshold = ?,
		    track_inventory = ?, is_active = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		e.CurrentStock, e.ReservedStock, e.LowStockThreshold,
		e.TrackInventory, e.IsActive, e.UpdatedAt,
		e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConflict
	}

	for _, r := range e.Reservations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservations
				(id, ledger_entry_id, product_id, order_id, quantity, status,
				 expires_at, confirmed_at, cancelled_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				status = VALUES(status),
				expires_at = VALUES(expires_at),
				confirmed_at = VALUES(confirmed_at),
				cancelled_at = VALUES(cancelled_at),
				updated_at = VALUES(updated_at)`,
			r.ID, r.LedgerEntryID, r.ProductID, r.OrderID, r.Quantity, string(r.Status),
			r.ExpiresAt, nullTime(r.ConfirmedAt), nullTime(r.CancelledAt),
			r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert reservation %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	e.Version++
	return nil
}

func (m *MySQLRepository) QueryExpiredPending(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, ledger_entry_id, product_id, order_id, quantity, status,
		       expires_at, confirmed_at, cancelled_at, created_at, updated_at
		FROM reservations
		WHERE status = 'pending' AND expires_at <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("query expired reservations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLRepository) QueryLowStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return m.queryEntries(ctx, `
		SELECT id, product_id, current_stock, reserved_stock, low_stock_threshold,
		       track_inventory, is_active, version, created_at, updated_at
		FROM stock_ledger
		WHERE is_active AND track_inventory
		  AND current_stock - reserved_stock <= low_stock_threshold`)
}

func (m *MySQLRepository) QueryOutOfStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return m.queryEntries(ctx, `
		SELECT id, product_id, current_stock, reserved_stock, low_stock_threshold,
		       track_inventory, is_active, version, created_at, updated_at
		FROM stock_ledger
		WHERE is_active AND track_inventory
		  AND current_stock - reserved_stock <= 0`)
}

func (m *MySQLRepository) queryEntries(ctx context.Context, query string) ([]*domain.StockLedgerEntry, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.StockLedgerEntry
	for rows.Next() {
		var e domain.StockLedgerEntry
		err := rows.Scan(&e.ID, &e.ProductID, &e.CurrentStock, &e.ReservedStock,
			&e.LowStockThreshold, &e.TrackInventory, &e.IsActive, &e.Version,
			&e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var (
		r                      domain.Reservation
		status                 string
		confirmedAt, cancelled sql.NullTime
	)
	err := row.Scan(&r.ID, &r.LedgerEntryID, &r.ProductID, &r.OrderID, &r.Quantity,
		&status, &r.ExpiresAt, &confirmedAt, &cancelled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	r.Status = domain.ReservationStatus(status)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		r.ConfirmedAt = &t
	}
	if cancelled.Valid {
		t := cancelled.Time
		r.CancelledAt = &t
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
