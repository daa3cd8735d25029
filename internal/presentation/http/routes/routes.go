// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/simbavista/tour360-go/internal/application/container"
	"github.com/simbavista/tour360-go/internal/presentation/http/handlers"
	"github.com/simbavista/tour360-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	storageHandlers := handlers.NewStorageHandlers(container.StorageManager, container.Logger)
	syncHandlers := handlers.NewSyncHandlers(container.SyncBus, container.Logger)

	api := r.Group("/api/v1")
	{
		storage := api.Group("/storage")
		{
			storage.GET("/status", storageHandlers.GetStatus)
			storage.POST("/reinitialize", storageHandlers.Reinitialize)
			storage.GET("/stats", storageHandlers.GetStats)
			storage.POST("/cleanup", storageHandlers.RunCleanup)
		}

		tours := api.Group("/tours")
		{
			// The literal segments register before the :id routes.
			tours.GET("", storageHandlers.ListTours)
			tours.POST("/offline", storageHandlers.CreateOfflineTour)
			tours.GET("/pending", storageHandlers.ListPendingTours)
			tours.GET("/:id", storageHandlers.GetTour)
			tours.PUT("/:id", storageHandlers.SaveTour)
			tours.DELETE("/:id", storageHandlers.DeleteTour)
			tours.POST("/:id/download", storageHandlers.DownloadTour)
			tours.GET("/:id/metadata", storageHandlers.GetTourMetadata)
			tours.GET("/:id/resolve", storageHandlers.ResolveTourID)
			tours.POST("/:id/synced", storageHandlers.MarkTourSynced)
		}

		sync := api.Group("/sync")
		{
			sync.GET("/events", syncHandlers.StreamEvents)
			sync.GET("/subscribers", syncHandlers.GetSubscriberCount)
		}
	}

	return r
}
