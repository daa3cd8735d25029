// Package interfaces defines the storage-adapter contract both substrate
// implementations satisfy.
package interfaces

import (
	"context"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
)

// Adapter persists complete offline tour snapshots against one substrate.
type Adapter interface {
	// SaveTour persists a complete snapshot, overwriting any prior snapshot
	// for that id.
	SaveTour(ctx context.Context, id, name string, snapshot *tours.TourSnapshot, imageBlobs map[string][]byte) error

	// LoadTour returns nil when the tour is absent or, on the bounded
	// substrate, expired.
	LoadTour(ctx context.Context, id string) (*tours.StoredTour, error)

	// ListTours returns metadata only, no blobs.
	ListTours(ctx context.Context) ([]tours.TourSummary, error)

	// DeleteTour is idempotent; deleting an absent id is not an error.
	DeleteTour(ctx context.Context, id string) error

	// GetStats reports substrate usage and capacity.
	GetStats(ctx context.Context) (*tours.Stats, error)
}
