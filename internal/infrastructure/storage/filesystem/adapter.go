// Package filesystem stores tours as directories on the native filesystem:
// one directory per tour holding a compressed tour.json, an images/
// subdirectory with raw blobs, and a metadata.json sidecar.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/domain/storageerr"
	"github.com/simbavista/tour360-go/internal/infrastructure/codec"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

const (
	toursDirName     = "tours"
	tourFileName     = "tour.json"
	metadataFileName = "metadata.json"
	imagesDirName    = "images"
)

// metadataFile is the sidecar written next to each tour payload. The image
// name map records the sanitized filename chosen for each blob key.
type metadataFile struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	CachedAt        time.Time         `json:"cached_at"`
	SizeBytes       int64             `json:"size_bytes"`
	LastSyncedAt    *time.Time        `json:"last_synced_at,omitempty"`
	HasLocalChanges bool              `json:"has_local_changes"`
	ImageNames      map[string]string `json:"image_names"`
}

// Adapter persists tours under a root directory on the local disk.
type Adapter struct {
	root   string
	logger *logging.ChanneledLogger
}

// NewAdapter creates a filesystem adapter rooted at the given directory.
// The root is created on first save, not here.
func NewAdapter(root string, logger *logging.ChanneledLogger) *Adapter {
	return &Adapter{root: root, logger: logger}
}

// Root returns the adapter's base directory.
func (a *Adapter) Root() string {
	return a.root
}

func (a *Adapter) tourDir(id string) string {
	return filepath.Join(a.root, toursDirName, sanitizeName(id))
}

// SaveTour writes the tour payload, its image blobs, and the metadata
// sidecar. A partially written tour from a failed earlier save is replaced.
func (a *Adapter) SaveTour(ctx context.Context, id, name string, snapshot *tours.TourSnapshot, imageBlobs map[string][]byte) error {
	start := time.Now()
	dir := a.tourDir(id)
	imagesDir := filepath.Join(dir, imagesDirName)

	// Drop any earlier snapshot so stale image blobs don't linger.
	if err := os.RemoveAll(dir); err != nil {
		return a.mapError("remove prior snapshot", id, err)
	}
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return a.mapError("create tour directory", id, err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal tour %s: %w", id, err)
	}
	envelope, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, tourFileName), envelope, 0o644); err != nil {
		return a.mapError("write tour payload", id, err)
	}

	var totalSize int64 = int64(len(envelope))
	imageNames := make(map[string]string, len(imageBlobs))
	for key, blob := range imageBlobs {
		fileName := sanitizeName(key)
		imageNames[key] = fileName
		if err := os.WriteFile(filepath.Join(imagesDir, fileName), blob, 0o644); err != nil {
			return a.mapError("write tour image", id, err)
		}
		totalSize += int64(len(blob))
	}

	meta := metadataFile{
		ID:         id,
		Name:       name,
		CachedAt:   time.Now().UTC(),
		SizeBytes:  totalSize,
		ImageNames: imageNames,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for tour %s: %w", id, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), metaBytes, 0o644); err != nil {
		return a.mapError("write tour metadata", id, err)
	}

	if a.logger != nil {
		a.logger.Storage().Info("Tour saved to filesystem",
			"tourId", id,
			"sizeKB", totalSize/1024,
			"imageCount", len(imageBlobs),
			"duration", time.Since(start))
	}
	return nil
}

// LoadTour reads a tour back, or returns nil when it is not present.
// Payloads written before compression was introduced load as plain JSON.
func (a *Adapter) LoadTour(ctx context.Context, id string) (*tours.StoredTour, error) {
	dir := a.tourDir(id)

	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, a.mapError("read tour metadata", id, err)
	}
	var meta metadataFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, storageerr.NewCorruptMetadata(id, err)
	}

	envelope, err := os.ReadFile(filepath.Join(dir, tourFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, a.mapError("read tour payload", id, err)
	}
	var snapshot tours.TourSnapshot
	if err := codec.DecodeJSON(envelope, &snapshot); err != nil {
		return nil, err
	}

	imageBlobs := make(map[string][]byte, len(meta.ImageNames))
	for key, fileName := range meta.ImageNames {
		blob, err := os.ReadFile(filepath.Join(dir, imagesDirName, fileName))
		if err != nil {
			if os.IsNotExist(err) {
				// A missing blob degrades the tour but does not lose it.
				if a.logger != nil {
					a.logger.Storage().Warn("Cached image missing on disk", "tourId", id, "imageKey", key)
				}
				continue
			}
			return nil, a.mapError("read tour image", id, err)
		}
		imageBlobs[key] = blob
	}

	return &tours.StoredTour{
		ID:              meta.ID,
		Name:            meta.Name,
		Snapshot:        snapshot,
		ImageBlobs:      imageBlobs,
		CachedAt:        meta.CachedAt,
		SizeBytes:       meta.SizeBytes,
		LastSyncedAt:    meta.LastSyncedAt,
		HasLocalChanges: meta.HasLocalChanges,
	}, nil
}

// ListTours scans the tours directory and returns one summary per tour
// directory with a readable metadata sidecar.
func (a *Adapter) ListTours(ctx context.Context) ([]tours.TourSummary, error) {
	entries, err := os.ReadDir(filepath.Join(a.root, toursDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return []tours.TourSummary{}, nil
		}
		return nil, a.mapError("list tours", "", err)
	}

	summaries := make([]tours.TourSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metaBytes, err := os.ReadFile(filepath.Join(a.root, toursDirName, entry.Name(), metadataFileName))
		if err != nil {
			continue
		}
		var meta metadataFile
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			if a.logger != nil {
				a.logger.Storage().Warn("Skipping tour with corrupt metadata", "dir", entry.Name())
			}
			continue
		}
		summaries = append(summaries, tours.TourSummary{
			ID:              meta.ID,
			Name:            meta.Name,
			SizeBytes:       meta.SizeBytes,
			LastModified:    meta.CachedAt,
			LastSyncedAt:    meta.LastSyncedAt,
			HasLocalChanges: meta.HasLocalChanges,
		})
	}
	return summaries, nil
}

// DeleteTour removes the tour directory. Deleting an absent tour succeeds.
func (a *Adapter) DeleteTour(ctx context.Context, id string) error {
	err := os.RemoveAll(a.tourDir(id))
	if err != nil {
		return a.mapError("delete tour", id, err)
	}
	if a.logger != nil {
		a.logger.Storage().Info("Tour deleted from filesystem", "tourId", id)
	}
	return nil
}

// GetStats totals the on-disk tour sizes; the limit is the free space left
// on the volume holding the root.
func (a *Adapter) GetStats(ctx context.Context) (*tours.Stats, error) {
	summaries, err := a.ListTours(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, s := range summaries {
		total += s.SizeBytes
	}

	free, err := freeSpace(a.root)
	if err != nil {
		// Free-space probing is best effort; stats stay usable without it.
		if a.logger != nil {
			a.logger.Storage().Warn("Could not read free disk space", "root", a.root, "error", err.Error())
		}
		free = 0
	}

	return &tours.Stats{
		Count:          len(summaries),
		SizeBytes:      total,
		LimitBytes:     total + free,
		AvailableBytes: free,
	}, nil
}

func (a *Adapter) mapError(op, id string, err error) error {
	if os.IsPermission(err) {
		return storageerr.NewPermissionDenied(fmt.Sprintf("%s for tour %s", op, id), err)
	}
	return fmt.Errorf("failed to %s %s: %w", op, id, err)
}

// sanitizeName makes an id or image key safe to use as a single path
// element.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	clean := replacer.Replace(name)
	if clean == "" || clean == "." {
		return "_"
	}
	return clean
}
