package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecomcore/inventory/internal/core/domain"
	"github.com/ecomcore/inventory/internal/port"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically finds pending reservations whose hold lapsed and
// releases them through the engine's ordinary cancel path. Expiry is not a
// privileged bypass; it obeys the same invariants and emits the same events.
type Sweeper struct {
	engine   *Engine
	store    port.LedgerRepository
	clock    port.Clock
	log      *zap.Logger
	interval time.Duration
}

func NewSweeper(engine *Engine, store port.LedgerRepository, clock port.Clock, logger *zap.Logger, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		engine:   engine,
		store:    store,
		clock:    clock,
		log:      logger,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	w.log.Info("expiry sweeper started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				w.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce cancels every currently expired pending reservation and returns
// how many were released. One reservation failing does not stop the rest.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := w.store.QueryExpiredPending(ctx, w.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("query expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	released := 0
	for _, r := range expired {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		err := w.engine.Cancel(ctx, r.OrderID)
		switch {
		case err == nil:
			released++
			w.log.Info("expired reservation released",
				zap.String("order_id", r.OrderID),
				zap.String("product_id", r.ProductID),
				zap.Int("quantity", r.Quantity))
		case errors.Is(err, domain.ErrReservationNotFound):
			// Settled by a live request between the query and the cancel.
			continue
		default:
			w.log.Warn("failed to release expired reservation",
				zap.String("order_id", r.OrderID),
				zap.String("product_id", r.ProductID),
				zap.Error(err))
		}
	}
	return released, nil
}
