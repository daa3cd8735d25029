// Package tours defines the domain entities for tour offline snapshots.
package tours

import "time"

// Tour is the backend-owned tour row. The offline engine treats its fields
// as an opaque structured payload; it only ever writes the record whole.
type Tour struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	TourType      string    `json:"tour_type"`
	TenantID      string    `json:"tenant_id"`
	IsPublished   bool      `json:"is_published"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tour types accepted by the backend.
const (
	TourType360   = "tour_360"
	TourTypePhoto = "photo_tour"
)

// FloorPlan is a backend-owned floor plan row.
type FloorPlan struct {
	ID       string `json:"id"`
	TourID   string `json:"tour_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// Hotspot is a backend-owned hotspot row.
type Hotspot struct {
	ID          string  `json:"id"`
	FloorPlanID string  `json:"floor_plan_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	XPosition   float64 `json:"x_position"`
	YPosition   float64 `json:"y_position"`
}

// PanoramaPhoto is a backend-owned panorama photo row.
type PanoramaPhoto struct {
	ID           string `json:"id"`
	HotspotID    string `json:"hotspot_id"`
	PhotoURL     string `json:"photo_url"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order"`
	CaptureDate  string `json:"capture_date,omitempty"`
}

// TourSnapshot is the complete entity graph for one tour. A cached snapshot
// is always complete; partial graphs are not a supported state.
type TourSnapshot struct {
	Tour       Tour            `json:"tour"`
	FloorPlans []FloorPlan     `json:"floorPlans"`
	Hotspots   []Hotspot       `json:"hotspots"`
	Photos     []PanoramaPhoto `json:"photos,omitempty"`
}

// StoredTour is a cached tour record as returned by an adapter, image blobs
// keyed by floor plan id.
type StoredTour struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Snapshot        TourSnapshot      `json:"snapshot"`
	ImageBlobs      map[string][]byte `json:"imageBlobs,omitempty"`
	CachedAt        time.Time         `json:"cachedAt"`
	ExpiresAt       time.Time         `json:"expiresAt,omitempty"`
	SizeBytes       int64             `json:"sizeBytes"`
	LastSyncedAt    *time.Time        `json:"lastSyncedAt,omitempty"`
	HasLocalChanges bool              `json:"hasLocalChanges"`
}

// TourSummary is the metadata-only listing shape. No blobs.
type TourSummary struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	SizeBytes       int64      `json:"sizeBytes"`
	LastModified    time.Time  `json:"lastModified"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	HasLocalChanges bool       `json:"hasLocalChanges"`
}

// Stats reports substrate usage. AvailableBytes is zero when the substrate
// cannot report it.
type Stats struct {
	Count          int   `json:"count"`
	SizeBytes      int64 `json:"sizeBytes"`
	LimitBytes     int64 `json:"limitBytes"`
	AvailableBytes int64 `json:"availableBytes,omitempty"`
}

// TourMetadata is the per-entity side-record the manager keeps under
// entity-metadata-<id>.
type TourMetadata struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	CachedAt        time.Time  `json:"cachedAt"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	HasLocalChanges bool       `json:"hasLocalChanges"`
}
