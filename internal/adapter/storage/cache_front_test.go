package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomcore/inventory/internal/core/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	entry        *domain.StockLedgerEntry
	reservation  *domain.Reservation
	low, out     []*domain.StockLedgerEntry
	expired      []*domain.Reservation
	saveErr      error
	getCalls     int
	lowCalls     int
	expiredCalls int
	saves        int
	creates      int
}

func (f *fakeStore) Create(context.Context, *domain.StockLedgerEntry) error {
	f.creates++
	return nil
}

func (f *fakeStore) GetByProduct(context.Context, string) (*domain.StockLedgerEntry, error) {
	f.getCalls++
	return f.entry, nil
}

func (f *fakeStore) GetReservationByOrder(context.Context, string) (*domain.Reservation, error) {
	return f.reservation, nil
}

func (f *fakeStore) Save(context.Context, *domain.StockLedgerEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	return nil
}

func (f *fakeStore) QueryExpiredPending(context.Context, time.Time) ([]*domain.Reservation, error) {
	f.expiredCalls++
	return f.expired, nil
}

func (f *fakeStore) QueryLowStock(context.Context) ([]*domain.StockLedgerEntry, error) {
	f.lowCalls++
	return f.low, nil
}

func (f *fakeStore) QueryOutOfStock(context.Context) ([]*domain.StockLedgerEntry, error) {
	return f.out, nil
}

// fakeCache is a map-backed cache backend with switchable failure modes.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	delErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeCache) RemoveByPrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(f.data, k)
		}
	}
	return nil
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func sampleEntry() *domain.StockLedgerEntry {
	return &domain.StockLedgerEntry{
		ID:                "entry-1",
		ProductID:         "prod-1",
		CurrentStock:      10,
		ReservedStock:     2,
		LowStockThreshold: 3,
		TrackInventory:    true,
		IsActive:          true,
		Version:           7,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
		Reservations: []*domain.Reservation{{
			ID:            "res-1",
			LedgerEntryID: "entry-1",
			ProductID:     "prod-1",
			OrderID:       "order-1",
			Quantity:      2,
			Status:        domain.ReservationPending,
			ExpiresAt:     testNow.Add(30 * time.Minute),
			CreatedAt:     testNow,
			UpdatedAt:     testNow,
		}},
	}
}

func TestGetByProduct_ReadThrough(t *testing.T) {
	store := &fakeStore{entry: sampleEntry()}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())
	ctx := context.Background()

	first, err := front.GetByProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls)
	assert.Equal(t, DefaultCacheTTLs().Entry, cache.ttls[entryKey("prod-1")])

	// Second read is a cache hit and never touches the store.
	second, err := front.GetByProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls)
	assert.Equal(t, first.CurrentStock, second.CurrentStock)
	assert.Equal(t, first.Version, second.Version)
	require.Len(t, second.Reservations, 1)
	assert.Equal(t, "order-1", second.Reservations[0].OrderID)
}

func TestGetByProduct_MissingProductNotCached(t *testing.T) {
	store := &fakeStore{}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())

	entry, err := front.GetByProduct(context.Background(), "prod-missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, cache.has(entryKey("prod-missing")))
}

func TestGetByProduct_FailOpen(t *testing.T) {
	store := &fakeStore{entry: sampleEntry()}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())

	// A dead cache degrades to direct reads, never to errors.
	for i := 0; i < 3; i++ {
		entry, err := front.GetByProduct(context.Background(), "prod-1")
		require.NoError(t, err)
		assert.Equal(t, 10, entry.CurrentStock)
	}
	assert.Equal(t, 3, store.getCalls)
}

func TestGetByProduct_CorruptCacheEntry(t *testing.T) {
	store := &fakeStore{entry: sampleEntry()}
	cache := newFakeCache()
	cache.data[entryKey("prod-1")] = []byte("{not json")
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())

	entry, err := front.GetByProduct(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, entry.CurrentStock)
	assert.Equal(t, 1, store.getCalls)
}

func TestSave_InvalidatesAfterWrite(t *testing.T) {
	entry := sampleEntry()
	store := &fakeStore{entry: entry, reservation: entry.Reservations[0]}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())
	ctx := context.Background()

	// Warm every key shape.
	_, err := front.GetByProduct(ctx, "prod-1")
	require.NoError(t, err)
	_, err = front.GetReservationByOrder(ctx, "order-1")
	require.NoError(t, err)
	_, err = front.QueryLowStock(ctx)
	require.NoError(t, err)
	_, err = front.QueryOutOfStock(ctx)
	require.NoError(t, err)

	require.NoError(t, front.Save(ctx, entry))

	assert.False(t, cache.has(entryKey("prod-1")))
	assert.False(t, cache.has(orderKey("order-1")))
	assert.False(t, cache.has(lowStockListKey))
	assert.False(t, cache.has(outOfStockListKey))
	assert.Equal(t, 1, store.saves)
}

func TestSave_StoreFailureSkipsInvalidation(t *testing.T) {
	entry := sampleEntry()
	store := &fakeStore{entry: entry, saveErr: errors.New("deadlock")}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())
	ctx := context.Background()

	_, err := front.GetByProduct(ctx, "prod-1")
	require.NoError(t, err)

	require.Error(t, front.Save(ctx, entry))

	// The write never committed, so the cached value is still valid.
	assert.True(t, cache.has(entryKey("prod-1")))
}

func TestSave_InvalidationFailureDoesNotFailWrite(t *testing.T) {
	entry := sampleEntry()
	store := &fakeStore{entry: entry}
	cache := newFakeCache()
	cache.delErr = errors.New("redis down")
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())

	require.NoError(t, front.Save(context.Background(), entry))
	assert.Equal(t, 1, store.saves)
}

func TestQueryLowStock_CachedWithShortTTL(t *testing.T) {
	store := &fakeStore{low: []*domain.StockLedgerEntry{sampleEntry()}}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())
	ctx := context.Background()

	first, err := front.QueryLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, DefaultCacheTTLs().List, cache.ttls[lowStockListKey])

	_, err = front.QueryLowStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.lowCalls)
}

func TestQueryExpiredPending_BypassesCache(t *testing.T) {
	store := &fakeStore{expired: []*domain.Reservation{sampleEntry().Reservations[0]}}
	cache := newFakeCache()
	front := NewCacheFront(store, cache, nil, DefaultCacheTTLs())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		expired, err := front.QueryExpiredPending(ctx, testNow)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	}
	assert.Equal(t, 2, store.expiredCalls)
	assert.Empty(t, cache.data)
}
