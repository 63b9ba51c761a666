package storage

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ecomcore/inventory/internal/core/domain"
	"github.com/ecomcore/inventory/internal/port"
)

const (
	cachePrefix       = "inventory:"
	entryKeyPrefix    = cachePrefix + "ledger:"
	orderKeyPrefix    = cachePrefix + "order:"
	lowStockListKey   = cachePrefix + "list:low_stock"
	outOfStockListKey = cachePrefix + "list:out_of_stock"
)

func entryKey(productID string) string { return entryKeyPrefix + productID }
func orderKey(orderID string) string   { return orderKeyPrefix + orderID }

// CacheTTLs controls staleness per read shape. Single entries change only on
// their own mutations and get a long TTL; the list reads change on every
// reservation anywhere and get a short one.
type CacheTTLs struct {
	Entry       time.Duration
	List        time.Duration
	Reservation time.Duration
}

func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Entry:       30 * time.Minute,
		List:        2 * time.Minute,
		Reservation: 5 * time.Minute,
	}
}

// CacheFront decorates the authoritative repository with a read-through,
// fail-open cache. Any cache error degrades to a direct store read and a
// warning, never to a caller-visible failure. Writes hit the store first;
// invalidation runs strictly after the write commits.
type CacheFront struct {
	store port.LedgerRepository
	cache port.CacheBackend
	log   *zap.Logger
	ttls  CacheTTLs
}

func NewCacheFront(store port.LedgerRepository, cache port.CacheBackend, logger *zap.Logger, ttls CacheTTLs) *CacheFront {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttls.Entry <= 0 || ttls.List <= 0 || ttls.Reservation <= 0 {
		ttls = DefaultCacheTTLs()
	}
	return &CacheFront{store: store, cache: cache, log: logger, ttls: ttls}
}

func (c *CacheFront) GetByProduct(ctx context.Context, productID string) (*domain.StockLedgerEntry, error) {
	key := entryKey(productID)
	var cached domain.StockLedgerEntry
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	entry, err := c.store.GetByProduct(ctx, productID)
	if err != nil || entry == nil {
		return entry, err
	}
	c.populate(ctx, key, entry, c.ttls.Entry)
	return entry, nil
}

func (c *CacheFront) GetReservationByOrder(ctx context.Context, orderID string) (*domain.Reservation, error) {
	key := orderKey(orderID)
	var cached domain.Reservation
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	r, err := c.store.GetReservationByOrder(ctx, orderID)
	if err != nil || r == nil {
		return r, err
	}
	c.populate(ctx, key, r, c.ttls.Reservation)
	return r, nil
}

func (c *CacheFront) QueryLowStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return c.cachedList(ctx, lowStockListKey, c.store.QueryLowStock)
}

func (c *CacheFront) QueryOutOfStock(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return c.cachedList(ctx, outOfStockListKey, c.store.QueryOutOfStock)
}

// QueryExpiredPending is a correctness query for the sweeper and always goes
// to the store.
func (c *CacheFront) QueryExpiredPending(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	return c.store.QueryExpiredPending(ctx, now)
}

func (c *CacheFront) Create(ctx context.Context, entry *domain.StockLedgerEntry) error {
	if err := c.store.Create(ctx, entry); err != nil {
		return err
	}
	c.invalidate(ctx, entryKey(entry.ProductID), lowStockListKey, outOfStockListKey)
	return nil
}

func (c *CacheFront) Save(ctx context.Context, entry *domain.StockLedgerEntry) error {
	if err := c.store.Save(ctx, entry); err != nil {
		return err
	}
	keys := []string{entryKey(entry.ProductID), lowStockListKey, outOfStockListKey}
	for _, r := range entry.Reservations {
		keys = append(keys, orderKey(r.OrderID))
	}
	c.invalidate(ctx, keys...)
	return nil
}

// FlushProduct drops every cached read for one product plus the list keys.
// Used by operational tooling, not by the engine's normal write path.
func (c *CacheFront) FlushProduct(ctx context.Context, productID string) {
	c.invalidate(ctx, entryKey(productID), lowStockListKey, outOfStockListKey)
	if err := c.cache.RemoveByPrefix(ctx, orderKeyPrefix); err != nil {
		c.log.Warn("cache prefix flush failed", zap.String("prefix", orderKeyPrefix), zap.Error(err))
	}
}

func (c *CacheFront) cachedList(ctx context.Context, key string, fetch func(context.Context) ([]*domain.StockLedgerEntry, error)) ([]*domain.StockLedgerEntry, error) {
	var cached []*domain.StockLedgerEntry
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}
	entries, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.populate(ctx, key, entries, c.ttls.List)
	return entries, nil
}

// lookup reports whether key was found and decoded. Backend errors and
// decode errors both count as misses.
func (c *CacheFront) lookup(ctx context.Context, key string, dest any) bool {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CacheFront) populate(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, key, raw, ttl); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CacheFront) invalidate(ctx context.Context, keys ...string) {
	if err := c.cache.Remove(ctx, keys...); err != nil {
		c.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
