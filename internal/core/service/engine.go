package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecomcore/inventory/internal/core/domain"
	"github.com/ecomcore/inventory/internal/port"
)

const (
	defaultHoldDuration = 30 * time.Minute
	defaultMaxRetries   = 4
)

// Availability is the answer to "can I sell this right now".
type Availability struct {
	ProductID    string `json:"product_id"`
	Available    int    `json:"available"`
	IsLowStock   bool   `json:"is_low_stock"`
	IsOutOfStock bool   `json:"is_out_of_stock"`
}

type EngineOptions struct {
	// HoldDuration is how long a pending reservation lives before the
	// sweeper may cancel it. Defaults to 30 minutes.
	HoldDuration time.Duration
	// MaxRetries bounds optimistic-concurrency retries per operation.
	MaxRetries int
}

// Engine is the reservation state machine over the stock ledger. All stock
// mutations for a product funnel through it; writes are serialized per entry
// by optimistic versioning with bounded retry.
//
// repo is the cache-fronted repository used for query APIs and for writes
// (so invalidation fires after each commit); store is the authoritative
// repository used for decision-time reads, which bypass the cache. Passing
// the same repository for both simply disables caching.
type Engine struct {
	repo   port.LedgerRepository
	store  port.LedgerRepository
	events port.EventPublisher
	clock  port.Clock
	log    *zap.Logger

	hold       time.Duration
	maxRetries int
}

func NewEngine(repo, store port.LedgerRepository, events port.EventPublisher, clock port.Clock, logger *zap.Logger, opts EngineOptions) *Engine {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HoldDuration <= 0 {
		opts.HoldDuration = defaultHoldDuration
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Engine{
		repo:       repo,
		store:      store,
		events:     events,
		clock:      clock,
		log:        logger,
		hold:       opts.HoldDuration,
		maxRetries: opts.MaxRetries,
	}
}

// CreateLedgerEntry starts inventory tracking for a product. Entries are
// created once and only ever deactivated, never deleted.
func (s *Engine) CreateLedgerEntry(ctx context.Context, productID string, initialStock, lowStockThreshold int, trackInventory bool) (*domain.StockLedgerEntry, error) {
	if initialStock < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if lowStockThreshold < 0 {
		return nil, domain.ErrInvalidThreshold
	}
	now := s.clock.Now()
	entry := &domain.StockLedgerEntry{
		ID:                uuid.NewString(),
		ProductID:         productID,
		CurrentStock:      initialStock,
		LowStockThreshold: lowStockThreshold,
		TrackInventory:    trackInventory,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create ledger entry for %s: %w", productID, err)
	}
	s.log.Info("ledger entry created",
		zap.String("product_id", productID),
		zap.Int("initial_stock", initialStock),
		zap.Bool("track_inventory", trackInventory))
	return entry, nil
}

// Reserve holds quantity units of a product for an order. The hold expires
// after the configured duration unless committed or cancelled first.
func (s *Engine) Reserve(ctx context.Context, productID, orderID string, quantity int) (*domain.Reservation, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var (
		reservation *domain.Reservation
		pending     []domain.Event
	)
	err := s.withRetry(ctx, "reserve", func() error {
		entry, err := s.loadEntry(ctx, productID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		r, err := entry.Reserve(uuid.NewString(), orderID, quantity, now, s.hold)
		if err != nil {
			return err
		}
		if err := s.repo.Save(ctx, entry); err != nil {
			return err
		}
		reservation = r
		pending = pending[:0]
		pending = append(pending, s.newEvent(domain.EventStockReserved, entry, orderID, quantity))
		if entry.TrackInventory && entry.IsLowStock() {
			pending = append(pending, s.newEvent(domain.EventLowStock, entry, "", 0))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, pending...)
	return reservation, nil
}

// Commit consumes the pending reservation held by orderID. The reserved
// units permanently leave current stock.
func (s *Engine) Commit(ctx context.Context, orderID string) error {
	return s.settle(ctx, "commit", orderID, func(entry *domain.StockLedgerEntry, now time.Time) (*domain.Reservation, error) {
		return entry.Commit(orderID, now)
	}, domain.EventStockCommitted)
}

// Cancel releases the pending reservation held by orderID back to the
// available pool. The sweeper drives expiry through this same path.
func (s *Engine) Cancel(ctx context.Context, orderID string) error {
	return s.settle(ctx, "cancel", orderID, func(entry *domain.StockLedgerEntry, now time.Time) (*domain.Reservation, error) {
		return entry.Cancel(orderID, now)
	}, domain.EventStockReservationCancelled)
}

func (s *Engine) settle(ctx context.Context, op, orderID string,
	transition func(*domain.StockLedgerEntry, time.Time) (*domain.Reservation, error),
	eventType domain.EventType) error {

	existing, err := s.store.GetReservationByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: load reservation for order %s: %w", op, orderID, err)
	}
	if existing == nil {
		return domain.ErrReservationNotFound
	}

	var pending []domain.Event
	err = s.withRetry(ctx, op, func() error {
		entry, err := s.loadEntry(ctx, existing.ProductID)
		if err != nil {
			return err
		}
		if !entry.TrackInventory {
			pending = nil
			return nil
		}
		now := s.clock.Now()
		r, err := transition(entry, now)
		if err != nil {
			return err
		}
		if err := s.repo.Save(ctx, entry); err != nil {
			return err
		}
		pending = pending[:0]
		pending = append(pending, s.newEvent(eventType, entry, orderID, r.Quantity))
		return nil
	})
	if err != nil {
		s.warnIfInvariant(err, existing.ProductID)
		return err
	}
	s.publish(ctx, pending...)
	return nil
}

// AdjustStock moves current stock by delta (restock, damage, recount).
// Negative deltas clamp at zero rather than erroring.
func (s *Engine) AdjustStock(ctx context.Context, productID string, delta int, reason string) error {
	var pending []domain.Event
	err := s.withRetry(ctx, "adjust", func() error {
		entry, err := s.loadEntry(ctx, productID)
		if err != nil {
			return err
		}
		if !entry.TrackInventory {
			pending = nil
			return nil
		}
		now := s.clock.Now()
		old, updated := entry.Adjust(delta, now)
		if err := s.repo.Save(ctx, entry); err != nil {
			return err
		}
		ev := s.newEvent(domain.EventStockAdjusted, entry, "", 0)
		ev.OldStock = old
		ev.NewStock = updated
		ev.Reason = reason
		pending = pending[:0]
		pending = append(pending, ev)
		if entry.IsLowStock() {
			pending = append(pending, s.newEvent(domain.EventLowStock, entry, "", 0))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, pending...)
	return nil
}

// UpdateLowStockThreshold changes the per-product low-stock line and emits
// LowStock if the entry newly sits at or below it.
func (s *Engine) UpdateLowStockThreshold(ctx context.Context, productID string, newThreshold int) error {
	var pending []domain.Event
	err := s.withRetry(ctx, "update threshold", func() error {
		entry, err := s.loadEntry(ctx, productID)
		if err != nil {
			return err
		}
		wasLow := entry.IsLowStock()
		if err := entry.SetLowStockThreshold(newThreshold, s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, entry); err != nil {
			return err
		}
		ev := s.newEvent(domain.EventThresholdUpdated, entry, "", 0)
		ev.Threshold = newThreshold
		pending = pending[:0]
		pending = append(pending, ev)
		if !wasLow && entry.IsLowStock() {
			pending = append(pending, s.newEvent(domain.EventLowStock, entry, "", 0))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, pending...)
	return nil
}

// Deactivate soft-deletes a ledger entry.
func (s *Engine) Deactivate(ctx context.Context, productID string) error {
	return s.withRetry(ctx, "deactivate", func() error {
		entry, err := s.loadEntry(ctx, productID)
		if err != nil {
			return err
		}
		entry.Deactivate(s.clock.Now())
		return s.repo.Save(ctx, entry)
	})
}

// GetAvailability answers from the cache-fronted repository; staleness is
// bounded by TTL and write invalidation.
func (s *Engine) GetAvailability(ctx context.Context, productID string) (*Availability, error) {
	entry, err := s.repo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get availability for %s: %w", productID, err)
	}
	if entry == nil {
		return nil, domain.ErrLedgerNotFound
	}
	return &Availability{
		ProductID:    entry.ProductID,
		Available:    entry.AvailableStock(),
		IsLowStock:   entry.IsLowStock(),
		IsOutOfStock: entry.IsOutOfStock(),
	}, nil
}

// HasSufficientStock is a decision-time check and always reads the store
// directly, never the cache.
func (s *Engine) HasSufficientStock(ctx context.Context, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.ErrInvalidQuantity
	}
	entry, err := s.store.GetByProduct(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("check stock for %s: %w", productID, err)
	}
	if entry == nil {
		return false, domain.ErrLedgerNotFound
	}
	if !entry.TrackInventory {
		return true, nil
	}
	return quantity <= entry.AvailableStock(), nil
}

// CheckAvailabilityBatch answers sufficiency for several products at once,
// bypassing the cache. Unknown products report false rather than failing
// the whole batch.
func (s *Engine) CheckAvailabilityBatch(ctx context.Context, wanted map[string]int) (map[string]bool, error) {
	out := make(map[string]bool, len(wanted))
	for productID, quantity := range wanted {
		ok, err := s.HasSufficientStock(ctx, productID, quantity)
		if err != nil {
			if errors.Is(err, domain.ErrLedgerNotFound) {
				out[productID] = false
				continue
			}
			return nil, err
		}
		out[productID] = ok
	}
	return out, nil
}

// GetReservation looks up the reservation held by an order, cache-fronted.
func (s *Engine) GetReservation(ctx context.Context, orderID string) (*domain.Reservation, error) {
	r, err := s.repo.GetReservationByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get reservation for order %s: %w", orderID, err)
	}
	if r == nil {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

// GetLowStock lists entries at or below their threshold, cache-fronted.
func (s *Engine) GetLowStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return s.repo.QueryLowStock(ctx)
}

// GetOutOfStock lists entries with nothing available, cache-fronted.
func (s *Engine) GetOutOfStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return s.repo.QueryOutOfStock(ctx)
}

// loadEntry reads the entry fresh from the store for a mutation.
func (s *Engine) loadEntry(ctx context.Context, productID string) (*domain.StockLedgerEntry, error) {
	entry, err := s.store.GetByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entry for %s: %w", productID, err)
	}
	if entry == nil {
		return nil, domain.ErrLedgerNotFound
	}
	return entry, nil
}

// withRetry runs fn, retrying only on optimistic-lock conflicts up to the
// configured bound, then surfaces the conflict as a transient failure.
func (s *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		s.log.Debug("optimistic lock conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

func (s *Engine) newEvent(t domain.EventType, entry *domain.StockLedgerEntry, orderID string, quantity int) domain.Event {
	return domain.Event{
		ID:         uuid.NewString(),
		Type:       t,
		ProductID:  entry.ProductID,
		OrderID:    orderID,
		Quantity:   quantity,
		Available:  entry.AvailableStock(),
		Threshold:  entry.LowStockThreshold,
		OccurredAt: s.clock.Now(),
	}
}

// publish delivers events after the mutation is durable. Failures are
// logged, never rolled back.
func (s *Engine) publish(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log.Error("event publish failed",
				zap.String("type", string(ev.Type)),
				zap.String("product_id", ev.ProductID),
				zap.Error(err))
		}
	}
}

func (s *Engine) warnIfInvariant(err error, productID string) {
	var violation *domain.InvariantViolationError
	if errors.As(err, &violation) {
		s.log.Error("inventory invariant violated",
			zap.String("product_id", productID),
			zap.String("detail", violation.Detail))
	}
}
