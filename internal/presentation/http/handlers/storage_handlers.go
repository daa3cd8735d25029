// Package handlers provides HTTP handlers for the offline storage API.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/domain/storageerr"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/hybrid"
)

// SaveTourRequest is the request body for caching a tour directly.
// Image blobs arrive base64-encoded in the JSON body.
type SaveTourRequest struct {
	Name       string             `json:"name" binding:"required"`
	Snapshot   tours.TourSnapshot `json:"snapshot" binding:"required"`
	ImageBlobs map[string][]byte  `json:"imageBlobs"`
}

// CreateOfflineTourRequest is the request body for creating a local-only tour.
type CreateOfflineTourRequest struct {
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	CoverImageURL string `json:"coverImageUrl"`
	TourType      string `json:"tourType"`
	TenantID      string `json:"tenantId"`
}

// MarkSyncedRequest carries the remote id assigned to a pending tour.
type MarkSyncedRequest struct {
	RemoteID string `json:"remoteId" binding:"required"`
}

// StorageHandlers contains all storage-related HTTP handlers.
type StorageHandlers struct {
	manager *hybrid.Manager
	logger  *logging.ChanneledLogger
}

// NewStorageHandlers creates storage handlers with injected dependencies.
func NewStorageHandlers(manager *hybrid.Manager, logger *logging.ChanneledLogger) *StorageHandlers {
	return &StorageHandlers{manager: manager, logger: logger}
}

// GetStatus reports the negotiated substrate.
func (h *StorageHandlers) GetStatus(c *gin.Context) {
	if err := h.manager.Initialize(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	choice := h.manager.ActiveSubstrate()
	c.JSON(http.StatusOK, gin.H{
		"substrate":     choice.Kind,
		"nativeStorage": h.manager.IsUsingNativeStorage(),
		"reason":        choice.Reason,
	})
}

// Reinitialize re-runs substrate negotiation, typically after a permission
// grant.
func (h *StorageHandlers) Reinitialize(c *gin.Context) {
	if err := h.manager.Reinitialize(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	choice := h.manager.ActiveSubstrate()
	h.logger.Storage().Info("Storage reinitialized via API", "substrate", string(choice.Kind))
	c.JSON(http.StatusOK, gin.H{
		"substrate":     choice.Kind,
		"nativeStorage": h.manager.IsUsingNativeStorage(),
	})
}

// GetStats returns usage against the active substrate's limit.
func (h *StorageHandlers) GetStats(c *gin.Context) {
	stats, err := h.manager.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListTours lists all locally stored tours.
func (h *StorageHandlers) ListTours(c *gin.Context) {
	start := time.Now()
	summaries, err := h.manager.ListTours(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Storage().Debug("List tours request completed", "count", len(summaries), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"tours": summaries,
		"count": len(summaries),
	})
}

// GetTour loads one tour, resolving pending entries and id mappings first.
func (h *StorageHandlers) GetTour(c *gin.Context) {
	id := c.Param("id")
	stored, err := h.manager.LoadTourOffline(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if stored == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tour not found", "tourId": id})
		return
	}
	c.JSON(http.StatusOK, stored)
}

// SaveTour caches a tour supplied in the request body.
func (h *StorageHandlers) SaveTour(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")

	var req SaveTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	err := h.manager.SaveTour(c.Request.Context(), id, req.Name, &req.Snapshot, req.ImageBlobs)
	if err != nil {
		if storageerr.IsQuotaExceeded(err) {
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Storage().Info("Save tour request completed", "tourId", id, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"tourId": id, "saved": true})
}

// DownloadTour pulls a tour and its images from the backend into local
// storage.
func (h *StorageHandlers) DownloadTour(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")

	if err := h.manager.DownloadTourForOffline(c.Request.Context(), id); err != nil {
		if storageerr.IsQuotaExceeded(err) {
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Storage().Info("Download tour request completed", "tourId", id, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"tourId": id, "downloaded": true})
}

// DeleteTour removes a locally stored tour.
func (h *StorageHandlers) DeleteTour(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.DeleteTour(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tourId": id, "deleted": true})
}

// GetTourMetadata returns lifecycle metadata for a tour.
func (h *StorageHandlers) GetTourMetadata(c *gin.Context) {
	id := c.Param("id")
	meta, err := h.manager.GetTourMetadata(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if meta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metadata not found", "tourId": id})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// CreateOfflineTour creates a local-only tour pending sync.
func (h *StorageHandlers) CreateOfflineTour(c *gin.Context) {
	var req CreateOfflineTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	tourType := req.TourType
	if tourType == "" {
		tourType = tours.TourType360
	}

	pending, err := h.manager.CreateTourOffline(c.Request.Context(), tours.PendingTourFields{
		Title:         req.Title,
		Description:   req.Description,
		CoverImageURL: req.CoverImageURL,
		TourType:      tourType,
		TenantID:      req.TenantID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, pending)
}

// ListPendingTours returns tours created offline that still await sync
// resolution.
func (h *StorageHandlers) ListPendingTours(c *gin.Context) {
	pending, err := h.manager.PendingTours(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pendingTours": pending,
		"count":        len(pending),
	})
}

// MarkTourSynced records a pending tour's remote id after a successful sync.
func (h *StorageHandlers) MarkTourSynced(c *gin.Context) {
	id := c.Param("id")

	var req MarkSyncedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.manager.MarkTourSynced(c.Request.Context(), id, req.RemoteID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"localId": id, "remoteId": req.RemoteID, "synced": true})
}

// ResolveTourID maps a local tour id to its remote counterpart.
func (h *StorageHandlers) ResolveTourID(c *gin.Context) {
	id := c.Param("id")
	resolved, err := h.manager.ResolveTourID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"localId": id, "resolvedId": resolved})
}

// RunCleanup triggers a full maintenance pass on demand.
func (h *StorageHandlers) RunCleanup(c *gin.Context) {
	start := time.Now()
	report, err := h.manager.CleanAllOldData(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Cleanup().Info("Cleanup request completed", "duration", time.Since(start))
	c.JSON(http.StatusOK, report)
}
