// Package messaging carries data-change notifications from the storage
// layer to subscribers, decoupling writers from whoever reacts to a change.
package messaging

import (
	"sync"
	"time"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// ChangeType classifies what happened to an entity.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Event describes a single data change.
type Event struct {
	EntityKind string     `json:"entityKind"`
	Change     ChangeType `json:"change"`
	EntityID   string     `json:"entityId"`
	At         time.Time  `json:"at"`
}

// SyncEventBus fans data-change events out to subscribers. Publishing never
// blocks; a subscriber that cannot keep up loses events rather than stalling
// the writer.
type SyncEventBus struct {
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
	mu          sync.Mutex
	logger      *logging.ChanneledLogger
}

// NewSyncEventBus creates a bus whose subscriber channels buffer the given
// number of events.
func NewSyncEventBus(bufferSize int, logger *logging.ChanneledLogger) *SyncEventBus {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	return &SyncEventBus{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new subscriber and returns its channel with an
// unsubscribe func. The channel is closed on unsubscribe.
func (b *SyncEventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	if b.logger != nil {
		b.logger.Sync().Debug("Sync subscriber registered", "subscriberId", id)
	}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
			if b.logger != nil {
				b.logger.Sync().Debug("Sync subscriber unregistered", "subscriberId", id)
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *SyncEventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// NotifyDataChanged publishes a change event to every subscriber.
func (b *SyncEventBus) NotifyDataChanged(entityKind string, change ChangeType, entityID string) {
	event := Event{
		EntityKind: entityKind,
		Change:     change,
		EntityID:   entityID,
		At:         time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			if b.logger != nil {
				b.logger.Sync().Warn("Sync event dropped, subscriber channel full",
					"subscriberId", id,
					"entityKind", entityKind,
					"entityId", entityID)
			}
		}
	}

	if b.logger != nil {
		b.logger.Sync().Debug("Data change published",
			"entityKind", entityKind,
			"change", string(change),
			"entityId", entityID,
			"subscribers", len(b.subscribers))
	}
}
