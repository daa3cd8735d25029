// Package cleanup provides the background maintenance worker.
package cleanup

import (
	"context"
	"time"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/hybrid"
)

// Worker periodically runs the storage maintenance pass: expired cached
// tours, stale metadata, and aged pending entries.
type Worker struct {
	manager *hybrid.Manager
	config  *Config
	logger  *logging.ChanneledLogger
}

// NewWorker creates a cleanup worker with injected configuration.
func NewWorker(manager *hybrid.Manager, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		manager: manager,
		config:  config,
		logger:  logger,
	}
}

// Start runs the worker until the context is canceled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Cleanup().Info("Storage cleanup worker started",
		"interval", w.config.Interval,
		"verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cleanup().Info("Storage cleanup worker stopping")
			return
		case <-ticker.C:
			w.performCleanup(ctx)
		}
	}
}

// RunOnce executes a single cleanup pass outside the ticker loop.
func (w *Worker) RunOnce(ctx context.Context) {
	w.performCleanup(ctx)
}

func (w *Worker) performCleanup(ctx context.Context) {
	start := time.Now()

	report, err := w.manager.CleanAllOldData(ctx)
	if err != nil {
		w.logger.Cleanup().Error("Cleanup pass failed", "error", err.Error())
		return
	}

	total := report.ExpiredTours + report.StaleMetadata + report.PendingRemoved
	if total > 0 {
		w.logger.Cleanup().Info("Cleanup pass removed items",
			"expiredTours", report.ExpiredTours,
			"staleMetadata", report.StaleMetadata,
			"pendingRemoved", report.PendingRemoved,
			"duration", time.Since(start))
	} else if w.config.VerboseReporting {
		w.logger.Cleanup().Debug("Cleanup pass found nothing to remove", "duration", time.Since(start))
	}
}
