// Package offlinecache provides the TTL and quota record-keeping layer
// inside the embedded adapter: cached-at/expires-at/size per tour, lazy
// expiry on read, and oldest-first eviction under quota pressure.
package offlinecache

import (
	"context"
	"fmt"
	"time"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/infrastructure/codec"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/objectstore"
)

// Config holds the cache ceilings.
type Config struct {
	ExpirationDays       int
	MaxTours             int
	MaxSizeBytes         int64
	EvictionThresholdPct int
}

// Cache tracks cached tours inside the object store.
type Cache struct {
	store  *objectstore.Store
	config Config
	logger *logging.ChanneledLogger
}

// NewCache creates the record-keeping layer over an open object store.
func NewCache(store *objectstore.Store, config Config, logger *logging.ChanneledLogger) *Cache {
	return &Cache{
		store:  store,
		config: config,
		logger: logger,
	}
}

// ExpiresAfter returns the expiry instant for a record cached now.
func (c *Cache) ExpiresAfter(cachedAt time.Time) time.Time {
	return cachedAt.Add(time.Duration(c.config.ExpirationDays) * 24 * time.Hour)
}

// Put stores a complete record, evicting at most one older tour first when
// the cache is over its pressure thresholds. If the new record still does not
// fit after one eviction the save proceeds anyway; the ceiling is a pressure
// valve, not a hard quota.
func (c *Cache) Put(ctx context.Context, record *tours.StoredTour) error {
	if err := c.evictIfNeeded(ctx); err != nil {
		return err
	}

	encoded, err := codec.EncodeJSON(record)
	if err != nil {
		return fmt.Errorf("failed to encode cached tour %s: %w", record.ID, err)
	}

	if err := c.store.Put(ctx, objectstore.BucketTours, record.ID, encoded, record.CachedAt); err != nil {
		return err
	}

	if c.logger != nil {
		c.logger.Cache().Info("Tour cached",
			"tourId", record.ID,
			"sizeKB", record.SizeBytes/1024,
			"expiresAt", record.ExpiresAt)
	}
	return nil
}

// Get returns the cached record, or nil when absent or expired. An expired
// record is physically removed by the access attempt that discovered it.
func (c *Cache) Get(ctx context.Context, id string) (*tours.StoredTour, error) {
	raw, err := c.store.Get(ctx, objectstore.BucketTours, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var record tours.StoredTour
	if err := codec.DecodeJSON(raw, &record); err != nil {
		// Undecodable record: treat as absent and clear it.
		if c.logger != nil {
			c.logger.Cache().Warn("Dropping undecodable cached tour", "tourId", id, "error", err.Error())
		}
		if delErr := c.store.Delete(ctx, objectstore.BucketTours, id); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}

	if time.Now().UTC().After(record.ExpiresAt) {
		if c.logger != nil {
			c.logger.Cache().Debug("Cached tour expired, removing", "tourId", id, "expiredAt", record.ExpiresAt)
		}
		if err := c.store.Delete(ctx, objectstore.BucketTours, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &record, nil
}

// GetAll returns every live cached record, oldest first. Expired records
// encountered along the way are removed.
func (c *Cache) GetAll(ctx context.Context) ([]*tours.StoredTour, error) {
	records, err := c.store.GetAll(ctx, objectstore.BucketTours)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var live []*tours.StoredTour
	for _, rec := range records {
		var record tours.StoredTour
		if err := codec.DecodeJSON(rec.Value, &record); err != nil {
			if delErr := c.store.Delete(ctx, objectstore.BucketTours, rec.Key); delErr != nil {
				return nil, delErr
			}
			continue
		}
		if now.After(record.ExpiresAt) {
			if delErr := c.store.Delete(ctx, objectstore.BucketTours, record.ID); delErr != nil {
				return nil, delErr
			}
			continue
		}
		live = append(live, &record)
	}
	return live, nil
}

// Delete removes a cached record. Absent ids are not an error.
func (c *Cache) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, objectstore.BucketTours, id)
}

// Size returns the total size of live records in bytes.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	records, err := c.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}
	return total, nil
}

// Stats reports usage against the configured ceiling.
func (c *Cache) Stats(ctx context.Context) (*tours.Stats, error) {
	records, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}
	available := c.config.MaxSizeBytes - total
	if available < 0 {
		available = 0
	}
	return &tours.Stats{
		Count:          len(records),
		SizeBytes:      total,
		LimitBytes:     c.config.MaxSizeBytes,
		AvailableBytes: available,
	}, nil
}

// evictIfNeeded removes the single oldest record when the cache is near its
// size ceiling or at its count ceiling. At most one eviction per save.
func (c *Cache) evictIfNeeded(ctx context.Context) error {
	records, err := c.GetAll(ctx)
	if err != nil {
		return err
	}

	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}

	threshold := c.config.MaxSizeBytes * int64(c.config.EvictionThresholdPct) / 100
	overSize := total > threshold
	overCount := len(records) >= c.config.MaxTours

	if !overSize && !overCount {
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	// GetAll orders oldest cachedAt first: strict FIFO by age, no recency.
	oldest := records[0]
	if c.logger != nil {
		c.logger.Cache().Info("Evicting oldest cached tour",
			"tourId", oldest.ID,
			"cachedAt", oldest.CachedAt,
			"totalKB", total/1024,
			"overSize", overSize,
			"overCount", overCount)
	}
	return c.store.Delete(ctx, objectstore.BucketTours, oldest.ID)
}
