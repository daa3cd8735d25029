// Package container provides dependency injection for all singleton services
package container

import (
	"time"

	"github.com/simbavista/tour360-go/internal/infrastructure/backend"
	"github.com/simbavista/tour360-go/internal/infrastructure/capability"
	"github.com/simbavista/tour360-go/internal/infrastructure/media"
	"github.com/simbavista/tour360-go/internal/infrastructure/messaging"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/embedded"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/filesystem"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/hybrid"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/objectstore"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/offlinecache"
	"github.com/simbavista/tour360-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Logger         *logging.ChanneledLogger
	ObjectStore    *objectstore.Store
	ImageProcessor *media.ImageProcessor
	BackendClient  backend.Client
	SyncBus        *messaging.SyncEventBus
	StorageManager *hybrid.Manager
}

// NewContainer creates and wires all singleton services from the environment
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	store, err := objectstore.Open(config.ObjectStorePath, logger)
	if err != nil {
		return nil, err
	}

	processor := media.NewImageProcessor(media.ProcessorConfig{
		MaxSizeBytes: int64(config.MaxImageSizeKB) * 1024,
		MaxDimension: config.ImageMaxDimension,
		Quality:      config.ImageQuality,
	}, logger)

	cache := offlinecache.NewCache(store, offlinecache.Config{
		ExpirationDays:       config.CacheExpirationDays,
		MaxTours:             config.MaxCachedTours,
		MaxSizeBytes:         int64(config.MaxCacheSizeMB) * 1024 * 1024,
		EvictionThresholdPct: config.EvictionThresholdPct,
	}, logger)

	backendClient := backend.NewHTTPClient(config.BackendBaseURL, config.BackendTimeout, logger)
	bus := messaging.NewSyncEventBus(config.SyncEventBufferSize, logger)

	nativeAdapter := filesystem.NewAdapter(config.StorageRoot, logger)
	embeddedAdapter := embedded.NewAdapter(cache, processor, logger)
	negotiator := capability.NewNegotiator(capability.DeviceShell{}, config.StorageRoot, logger)

	manager := hybrid.NewManager(
		negotiator,
		nativeAdapter,
		embeddedAdapter,
		store,
		backendClient,
		bus,
		hybrid.Config{
			UserStorageLimitBytes: int64(config.UserStorageLimitMB) * 1024 * 1024,
			PendingTourMaxAge:     time.Duration(config.PendingTourMaxAgeDays) * 24 * time.Hour,
			MetadataMaxAge:        time.Duration(config.CacheExpirationDays) * 24 * time.Hour,
		},
		logger,
	)

	return &Container{
		Logger:         logger,
		ObjectStore:    store,
		ImageProcessor: processor,
		BackendClient:  backendClient,
		SyncBus:        bus,
		StorageManager: manager,
	}, nil
}

// Close releases the container's long-lived resources.
func (c *Container) Close() error {
	return c.ObjectStore.Close()
}
