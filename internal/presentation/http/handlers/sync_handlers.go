package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simbavista/tour360-go/internal/infrastructure/messaging"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// SyncHandlers exposes the data-change event stream.
type SyncHandlers struct {
	bus    *messaging.SyncEventBus
	logger *logging.ChanneledLogger
}

// NewSyncHandlers creates sync handlers with injected dependencies.
func NewSyncHandlers(bus *messaging.SyncEventBus, logger *logging.ChanneledLogger) *SyncHandlers {
	return &SyncHandlers{bus: bus, logger: logger}
}

// StreamEvents streams data-change events over SSE until the client
// disconnects.
func (h *SyncHandlers) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	h.logger.Sync().Debug("Sync event stream opened", "remoteAddr", c.ClientIP())

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return true
			}
			c.SSEvent("data_changed", string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.Sync().Debug("Sync event stream closed", "remoteAddr", c.ClientIP())
}

// GetSubscriberCount reports how many listeners the bus currently has.
func (h *SyncHandlers) GetSubscriberCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscribers": h.bus.SubscriberCount()})
}
