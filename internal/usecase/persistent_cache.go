package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
)

// productsCacheKey holds the whole envelope. Writing one key is what makes a
// save atomic: readers see either the old envelope or the new one.
const productsCacheKey = "lender_products"

// CacheEntry is the envelope stored under productsCacheKey
type CacheEntry struct {
	Products []domain.Product     `json:"products"`
	Metadata domain.CacheMetadata `json:"metadata"`
}

// PersistentCache keeps the last known-good normalized catalog on the client
type PersistentCache struct {
	store  domain.KVStore
	ttl    time.Duration
	clock  domain.Clock
	logger *zap.Logger
}

// NewPersistentCache wraps store. ttl 0 keeps the entry until replaced.
func NewPersistentCache(store domain.KVStore, ttl time.Duration, clock domain.Clock, logger *zap.Logger) *PersistentCache {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistentCache{store: store, ttl: ttl, clock: clock, logger: logger}
}

// Save writes products together with their metadata
func (c *PersistentCache) Save(ctx context.Context, products []domain.Product, source string) error {
	return c.SaveWithWindow(ctx, products, source, nil)
}

// SaveWithWindow is Save plus the fetch-window state at save time
func (c *PersistentCache) SaveWithWindow(ctx context.Context, products []domain.Product, source string, window *domain.WindowInfo) error {
	if products == nil {
		products = []domain.Product{}
	}

	entry := CacheEntry{
		Products: products,
		Metadata: domain.CacheMetadata{
			ProductCount: len(products),
			Source:       source,
			FetchTime:    c.clock.Now().UTC(),
			Signature:    Signature(products),
			Window:       window,
		},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, productsCacheKey, data, c.ttl); err != nil {
		return err
	}

	c.logger.Info("Cached products",
		zap.Int("count", len(products)),
		zap.String("source", source))
	return nil
}

// Entry returns the cached envelope, or nil when absent or unreadable
func (c *PersistentCache) Entry(ctx context.Context) *CacheEntry {
	data, err := c.store.Get(ctx, productsCacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn("Cache read failed", zap.Error(err))
		}
		return nil
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Cache entry is corrupt, ignoring", zap.Error(err))
		return nil
	}
	if entry.Products == nil {
		c.logger.Warn("Cache entry has no product list, ignoring")
		return nil
	}
	return &entry
}

// Load returns the cached products, or nil when nothing usable is cached
func (c *PersistentCache) Load(ctx context.Context) []domain.Product {
	entry := c.Entry(ctx)
	if entry == nil {
		return nil
	}
	return entry.Products
}

// Clear drops the cached catalog. Other keys in a shared store are left alone.
func (c *PersistentCache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, productsCacheKey)
}

// Stats reports what is cached and how old it is
func (c *PersistentCache) Stats(ctx context.Context) domain.CacheStats {
	entry := c.Entry(ctx)
	if entry == nil {
		return domain.CacheStats{}
	}

	fetchTime := entry.Metadata.FetchTime
	age := c.clock.Now().Sub(fetchTime)
	return domain.CacheStats{
		HasCache:      true,
		Count:         len(entry.Products),
		LastFetchTime: &fetchTime,
		Source:        entry.Metadata.Source,
		CacheAge:      &age,
	}
}
