package tours

import "time"

// PendingTour is a tour created entirely offline, with no backend identity
// yet. It lives in the persisted pending list until MarkTourSynced removes it.
type PendingTour struct {
	ID              string    `json:"id"` // locally generated ULID
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CoverImageURL   string    `json:"coverImageUrl,omitempty"`
	TourType        string    `json:"tourType"`
	TenantID        string    `json:"tenantId"`
	Synced          bool      `json:"synced"` // always false while pending
	CreatedAt       time.Time `json:"createdAt"`
	HasLocalChanges bool      `json:"hasLocalChanges"`
	RemoteID        string    `json:"remoteId,omitempty"`
}

// PendingTourFields are the caller-supplied fields for an offline create.
type PendingTourFields struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	CoverImageURL string `json:"coverImageUrl,omitempty"`
	TourType      string `json:"tourType"`
	TenantID      string `json:"tenantId"`
}

// Snapshot reconstructs the minimal tour shape a pending entity can offer,
// for UI code that edits a tour before it has a backend identity.
func (p *PendingTour) Snapshot() TourSnapshot {
	return TourSnapshot{
		Tour: Tour{
			ID:            p.ID,
			Title:         p.Title,
			Description:   p.Description,
			CoverImageURL: p.CoverImageURL,
			TourType:      p.TourType,
			TenantID:      p.TenantID,
			IsPublished:   false,
			CreatedAt:     p.CreatedAt,
			UpdatedAt:     p.CreatedAt,
		},
		FloorPlans: []FloorPlan{},
		Hotspots:   []Hotspot{},
		Photos:     []PanoramaPhoto{},
	}
}
