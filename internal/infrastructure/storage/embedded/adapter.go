// Package embedded implements tour storage on top of the sqlite-backed
// object store, for devices where no writable filesystem location is
// available. Image blobs are downscaled before they are cached and records
// carry an expiry enforced by the cache layer.
package embedded

import (
	"context"
	"encoding/json"
	"time"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/infrastructure/media"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/offlinecache"
)

// Adapter stores tours in the offline cache.
type Adapter struct {
	cache     *offlinecache.Cache
	processor *media.ImageProcessor
	logger    *logging.ChanneledLogger
}

// NewAdapter wires the embedded adapter over an offline cache. The processor
// may be nil, in which case blobs are cached as-is.
func NewAdapter(cache *offlinecache.Cache, processor *media.ImageProcessor, logger *logging.ChanneledLogger) *Adapter {
	return &Adapter{
		cache:     cache,
		processor: processor,
		logger:    logger,
	}
}

// SaveTour downscales oversized image blobs, totals the record size, and
// hands the record to the cache, which may evict one older tour first.
func (a *Adapter) SaveTour(ctx context.Context, id, name string, snapshot *tours.TourSnapshot, imageBlobs map[string][]byte) error {
	start := time.Now()

	stored := make(map[string][]byte, len(imageBlobs))
	for key, blob := range imageBlobs {
		if a.processor != nil {
			stored[key] = a.processor.CompressBlob(blob)
		} else {
			stored[key] = blob
		}
	}

	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	var totalSize int64 = int64(len(snapshotBytes))
	for _, blob := range stored {
		totalSize += int64(len(blob))
	}

	cachedAt := time.Now().UTC()
	record := &tours.StoredTour{
		ID:         id,
		Name:       name,
		Snapshot:   *snapshot,
		ImageBlobs: stored,
		CachedAt:   cachedAt,
		ExpiresAt:  a.cache.ExpiresAfter(cachedAt),
		SizeBytes:  totalSize,
	}

	if err := a.cache.Put(ctx, record); err != nil {
		return err
	}

	if a.logger != nil {
		a.logger.Storage().Info("Tour saved to embedded store",
			"tourId", id,
			"sizeKB", totalSize/1024,
			"imageCount", len(stored),
			"duration", time.Since(start))
	}
	return nil
}

// LoadTour returns the cached record, or nil when absent or already expired.
func (a *Adapter) LoadTour(ctx context.Context, id string) (*tours.StoredTour, error) {
	return a.cache.Get(ctx, id)
}

// ListTours summarizes the live cached records.
func (a *Adapter) ListTours(ctx context.Context) ([]tours.TourSummary, error) {
	records, err := a.cache.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]tours.TourSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, tours.TourSummary{
			ID:              rec.ID,
			Name:            rec.Name,
			SizeBytes:       rec.SizeBytes,
			LastModified:    rec.CachedAt,
			LastSyncedAt:    rec.LastSyncedAt,
			HasLocalChanges: rec.HasLocalChanges,
		})
	}
	return summaries, nil
}

// DeleteTour removes the cached record. Absent ids succeed.
func (a *Adapter) DeleteTour(ctx context.Context, id string) error {
	if err := a.cache.Delete(ctx, id); err != nil {
		return err
	}
	if a.logger != nil {
		a.logger.Storage().Info("Tour deleted from embedded store", "tourId", id)
	}
	return nil
}

// GetStats reports usage against the configured cache ceiling.
func (a *Adapter) GetStats(ctx context.Context) (*tours.Stats, error) {
	return a.cache.Stats(ctx)
}
