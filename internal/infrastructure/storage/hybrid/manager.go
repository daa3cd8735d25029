// Package hybrid exposes the single storage facade the rest of the
// application talks to. The manager negotiates a substrate once, routes
// every operation to the adapter backing it, and layers the offline entity
// lifecycle (pending tours, id mapping, metadata) on top.
package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/domain/storageerr"
	"github.com/simbavista/tour360-go/internal/infrastructure/backend"
	"github.com/simbavista/tour360-go/internal/infrastructure/capability"
	"github.com/simbavista/tour360-go/internal/infrastructure/messaging"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/interfaces"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/objectstore"
)

const (
	pendingToursKey   = "pending_tours"
	metadataKeyPrefix = "entity-metadata-"
	idMapKeyPrefix    = "id-map-"

	entityKindTours = "tours"
)

// Config carries the manager's own ceilings; the adapters enforce their own.
type Config struct {
	// UserStorageLimitBytes is the soft per-user limit. Saves that would
	// push usage past it are refused with a quota error instead of being
	// silently evicted around.
	UserStorageLimitBytes int64
	// PendingTourMaxAge bounds how long an unsynced local tour is kept.
	PendingTourMaxAge time.Duration
	// MetadataMaxAge bounds how long orphaned entity metadata is kept.
	MetadataMaxAge time.Duration
}

// CleanupReport summarizes one full cleanup pass.
type CleanupReport struct {
	ExpiredTours   int `json:"expiredTours"`
	StaleMetadata  int `json:"staleMetadata"`
	PendingRemoved int `json:"pendingRemoved"`
}

// Manager is the hybrid storage facade.
type Manager struct {
	negotiator *capability.Negotiator
	native     interfaces.Adapter
	embedded   interfaces.Adapter
	kv         *objectstore.Store
	backend    backend.Client
	bus        *messaging.SyncEventBus
	config     Config
	logger     *logging.ChanneledLogger

	mu          sync.RWMutex
	initialized bool
	choice      capability.Choice
	active      interfaces.Adapter
}

// NewManager wires the facade. Nothing is negotiated until the first
// operation arrives or Initialize is called.
func NewManager(
	negotiator *capability.Negotiator,
	native interfaces.Adapter,
	embedded interfaces.Adapter,
	kv *objectstore.Store,
	backendClient backend.Client,
	bus *messaging.SyncEventBus,
	config Config,
	logger *logging.ChanneledLogger,
) *Manager {
	return &Manager{
		negotiator: negotiator,
		native:     native,
		embedded:   embedded,
		kv:         kv,
		backend:    backendClient,
		bus:        bus,
		config:     config,
		logger:     logger,
	}
}

// Initialize negotiates the substrate and binds the active adapter. The
// result is memoized; concurrent callers share one negotiation.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	return m.initLocked(ctx)
}

// Reinitialize re-runs negotiation and atomically swaps the active adapter.
// Called after the user grants storage permission at runtime.
func (m *Manager) Reinitialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return m.initLocked(ctx)
}

func (m *Manager) initLocked(ctx context.Context) error {
	start := time.Now()
	choice := m.negotiator.Negotiate(ctx)

	m.choice = choice
	switch choice.Kind {
	case capability.SubstrateNative:
		m.active = m.native
	default:
		m.active = m.embedded
	}
	m.initialized = true

	if m.logger != nil {
		m.logger.Storage().Info("Hybrid storage initialized",
			"substrate", string(choice.Kind),
			"duration", time.Since(start))
	}
	return nil
}

func (m *Manager) adapter(ctx context.Context) (interfaces.Adapter, error) {
	m.mu.RLock()
	if m.initialized {
		a := m.active
		m.mu.RUnlock()
		return a, nil
	}
	m.mu.RUnlock()

	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, storageerr.NewNotInitialized()
	}
	return m.active, nil
}

// IsUsingNativeStorage reports whether the native filesystem substrate won
// negotiation. False before initialization.
func (m *Manager) IsUsingNativeStorage() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && m.choice.Kind == capability.SubstrateNative
}

// ActiveSubstrate returns the negotiation outcome.
func (m *Manager) ActiveSubstrate() capability.Choice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.choice
}

// SaveTour persists a caller-edited tour. On the native substrate the
// supplied payload is written as-is and the tour is marked locally changed.
// On the bounded substrate the payload is advisory: the save delegates to
// the download path, so the cached snapshot always comes fresh from the
// backend.
func (m *Manager) SaveTour(ctx context.Context, id, name string, snapshot *tours.TourSnapshot, imageBlobs map[string][]byte) error {
	if _, err := m.adapter(ctx); err != nil {
		return err
	}
	if !m.IsUsingNativeStorage() {
		return m.DownloadTourForOffline(ctx, id)
	}
	return m.saveToAdapter(ctx, id, name, snapshot, imageBlobs, true)
}

// saveToAdapter writes through the active adapter, records lifecycle
// metadata, and publishes the change. The user's soft storage limit bounds
// only the embedded substrate; native storage is limited by the disk alone.
func (m *Manager) saveToAdapter(ctx context.Context, id, name string, snapshot *tours.TourSnapshot, imageBlobs map[string][]byte, localChanges bool) error {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return err
	}

	if !m.IsUsingNativeStorage() && m.config.UserStorageLimitBytes > 0 {
		incoming := estimateSize(snapshot, imageBlobs)
		stats, err := adapter.GetStats(ctx)
		if err != nil {
			return err
		}
		if stats.SizeBytes+incoming > m.config.UserStorageLimitBytes {
			if m.logger != nil {
				m.logger.Storage().Warn("Save refused, user storage limit reached",
					"tourId", id,
					"usedBytes", stats.SizeBytes,
					"incomingBytes", incoming,
					"limitBytes", m.config.UserStorageLimitBytes)
			}
			return storageerr.NewQuotaExceeded(stats.SizeBytes+incoming, m.config.UserStorageLimitBytes)
		}
	}

	if err := adapter.SaveTour(ctx, id, name, snapshot, imageBlobs); err != nil {
		return err
	}

	if err := m.putMetadata(ctx, tours.TourMetadata{
		ID:              id,
		Name:            name,
		CachedAt:        time.Now().UTC(),
		HasLocalChanges: localChanges,
	}); err != nil {
		return err
	}

	m.bus.NotifyDataChanged(entityKindTours, messaging.ChangeUpdate, id)
	return nil
}

// DownloadTourForOffline fetches the tour graph and its images from the
// backend and stores the result locally. Individual image failures are
// logged and skipped; the tour is still cached without them.
func (m *Manager) DownloadTourForOffline(ctx context.Context, tourID string) error {
	start := time.Now()
	snapshot, err := m.backend.FetchTourGraph(ctx, tourID)
	if err != nil {
		return fmt.Errorf("failed to fetch tour %s: %w", tourID, err)
	}

	imageBlobs := make(map[string][]byte)
	fetch := func(key, url string) {
		if url == "" {
			return
		}
		blob, fetchErr := m.backend.FetchImage(ctx, url)
		if fetchErr != nil {
			if m.logger != nil {
				m.logger.Backend().Warn("Skipping unfetchable image",
					"tourId", tourID,
					"imageKey", key,
					"error", fetchErr.Error())
			}
			return
		}
		imageBlobs[key] = blob
	}

	for _, fp := range snapshot.FloorPlans {
		fetch(fp.ID, fp.ImageURL)
	}
	for _, photo := range snapshot.Photos {
		fetch(photo.ID, photo.PhotoURL)
	}

	// A downloaded tour mirrors the backend, so it lands clean.
	if err := m.saveToAdapter(ctx, tourID, snapshot.Tour.Title, snapshot, imageBlobs, false); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Storage().Info("Tour downloaded for offline use",
			"tourId", tourID,
			"imageCount", len(imageBlobs),
			"duration", time.Since(start))
	}
	return nil
}

// LoadTour reads a tour from the active adapter. Nil means not cached.
func (m *Manager) LoadTour(ctx context.Context, id string) (*tours.StoredTour, error) {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.LoadTour(ctx, id)
}

// LoadTourOffline resolves a tour for offline viewing: a still-pending local
// tour takes precedence, then the id is mapped to its remote form and looked
// up in the cache.
func (m *Manager) LoadTourOffline(ctx context.Context, id string) (*tours.StoredTour, error) {
	pending, err := m.PendingTours(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].ID == id {
			p := pending[i]
			snapshot := p.Snapshot()
			return &tours.StoredTour{
				ID:              p.ID,
				Name:            p.Title,
				Snapshot:        snapshot,
				ImageBlobs:      map[string][]byte{},
				CachedAt:        p.CreatedAt,
				HasLocalChanges: !p.Synced,
			}, nil
		}
	}

	resolved, err := m.ResolveTourID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.LoadTour(ctx, resolved)
}

// ListTours lists tours on the active adapter.
func (m *Manager) ListTours(ctx context.Context) ([]tours.TourSummary, error) {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.ListTours(ctx)
}

// DeleteTour removes the tour and its metadata, then publishes the delete.
func (m *Manager) DeleteTour(ctx context.Context, id string) error {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return err
	}
	if err := adapter.DeleteTour(ctx, id); err != nil {
		return err
	}
	if err := m.kv.Delete(ctx, objectstore.BucketKV, metadataKeyPrefix+id); err != nil {
		return err
	}
	m.bus.NotifyDataChanged(entityKindTours, messaging.ChangeDelete, id)
	return nil
}

// GetStats reports usage from the active adapter.
func (m *Manager) GetStats(ctx context.Context) (*tours.Stats, error) {
	adapter, err := m.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.GetStats(ctx)
}

// CreateTourOffline creates a local-only tour that syncs later. The id is a
// fresh ULID; the tour joins the pending list with synced=false.
func (m *Manager) CreateTourOffline(ctx context.Context, fields tours.PendingTourFields) (*tours.PendingTour, error) {
	now := time.Now().UTC()
	pending := tours.PendingTour{
		ID:              ulid.Make().String(),
		Title:           fields.Title,
		Description:     fields.Description,
		CoverImageURL:   fields.CoverImageURL,
		TourType:        fields.TourType,
		TenantID:        fields.TenantID,
		Synced:          false,
		CreatedAt:       now,
		HasLocalChanges: true,
	}

	list, err := m.PendingTours(ctx)
	if err != nil {
		return nil, err
	}
	list = append(list, pending)
	if err := m.putPendingTours(ctx, list); err != nil {
		return nil, err
	}

	if err := m.putMetadata(ctx, tours.TourMetadata{
		ID:              pending.ID,
		Name:            pending.Title,
		CachedAt:        now,
		HasLocalChanges: true,
	}); err != nil {
		return nil, err
	}

	if m.logger != nil {
		m.logger.Storage().Info("Tour created offline", "tourId", pending.ID, "title", pending.Title)
	}
	m.bus.NotifyDataChanged(entityKindTours, messaging.ChangeInsert, pending.ID)
	return &pending, nil
}

// PendingTours returns the tours created offline that have not been removed
// from the pending list. An unreadable list is treated as empty.
func (m *Manager) PendingTours(ctx context.Context) ([]tours.PendingTour, error) {
	raw, err := m.kv.Get(ctx, objectstore.BucketKV, pendingToursKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []tours.PendingTour{}, nil
	}
	var list []tours.PendingTour
	if err := json.Unmarshal(raw, &list); err != nil {
		if m.logger != nil {
			m.logger.Storage().Warn("Pending tour list unreadable, treating as empty", "error", err.Error())
		}
		return []tours.PendingTour{}, nil
	}
	return list, nil
}

// MarkTourSynced records that a pending tour now exists remotely: the entry
// leaves the pending list, the local id maps to the remote one, and the
// tour's metadata drops its local-changes flag.
func (m *Manager) MarkTourSynced(ctx context.Context, localID, remoteID string) error {
	list, err := m.PendingTours(ctx)
	if err != nil {
		return err
	}

	found := false
	remaining := make([]tours.PendingTour, 0, len(list))
	for _, p := range list {
		if p.ID == localID {
			found = true
			continue
		}
		remaining = append(remaining, p)
	}
	if !found {
		if m.logger != nil {
			m.logger.Sync().Warn("Mark-synced for unknown pending tour", "localId", localID)
		}
	}
	if err := m.putPendingTours(ctx, remaining); err != nil {
		return err
	}

	if remoteID != "" && remoteID != localID {
		now := time.Now().UTC()
		if err := m.kv.Put(ctx, objectstore.BucketKV, idMapKeyPrefix+localID, []byte(remoteID), now); err != nil {
			return err
		}
	}

	// The cached tour lives under its remote id once one exists, so the
	// cleared metadata has to land on the same key.
	target := localID
	if remoteID != "" {
		target = remoteID
	}
	meta, err := m.getMetadataRecord(ctx, target)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if meta == nil {
		meta = &tours.TourMetadata{ID: target, CachedAt: now}
	}
	meta.ID = target
	meta.HasLocalChanges = false
	meta.LastSyncedAt = &now
	if err := m.putMetadata(ctx, *meta); err != nil {
		return err
	}
	if target != localID {
		if err := m.kv.Delete(ctx, objectstore.BucketKV, metadataKeyPrefix+localID); err != nil {
			return err
		}
	}

	if m.logger != nil {
		m.logger.Sync().Info("Tour marked synced", "localId", localID, "remoteId", remoteID)
	}
	m.bus.NotifyDataChanged(entityKindTours, messaging.ChangeUpdate, localID)
	return nil
}

// ResolveTourID maps a local id to its remote counterpart once the tour has
// synced. Unmapped ids resolve to themselves.
func (m *Manager) ResolveTourID(ctx context.Context, id string) (string, error) {
	raw, err := m.kv.Get(ctx, objectstore.BucketKV, idMapKeyPrefix+id)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return id, nil
	}
	return string(raw), nil
}

// GetTourMetadata reads the lifecycle metadata for a tour. A still-pending
// tour answers from the pending list first; a synced local id falls through
// to its remote record. Nil means no metadata exists; an unreadable record
// is removed and reported as absent.
func (m *Manager) GetTourMetadata(ctx context.Context, id string) (*tours.TourMetadata, error) {
	pending, err := m.PendingTours(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].ID == id {
			p := pending[i]
			return &tours.TourMetadata{
				ID:              p.ID,
				Name:            p.Title,
				CachedAt:        p.CreatedAt,
				HasLocalChanges: p.HasLocalChanges,
			}, nil
		}
	}

	meta, err := m.getMetadataRecord(ctx, id)
	if err != nil || meta != nil {
		return meta, err
	}

	resolved, err := m.ResolveTourID(ctx, id)
	if err != nil {
		return nil, err
	}
	if resolved == id {
		return nil, nil
	}
	return m.getMetadataRecord(ctx, resolved)
}

// getMetadataRecord reads the metadata record stored under exactly this id.
func (m *Manager) getMetadataRecord(ctx context.Context, id string) (*tours.TourMetadata, error) {
	raw, err := m.kv.Get(ctx, objectstore.BucketKV, metadataKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var meta tours.TourMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		if m.logger != nil {
			m.logger.Storage().Warn("Dropping unreadable tour metadata", "tourId", id, "error", err.Error())
		}
		if delErr := m.kv.Delete(ctx, objectstore.BucketKV, metadataKeyPrefix+id); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return &meta, nil
}

// CleanOldPendingTours drops pending entries that already synced or that
// aged past the pending limit without syncing. Returns how many were
// removed.
func (m *Manager) CleanOldPendingTours(ctx context.Context) (int, error) {
	list, err := m.PendingTours(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-m.config.PendingTourMaxAge)
	kept := make([]tours.PendingTour, 0, len(list))
	removed := 0
	for _, p := range list {
		if p.Synced || p.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.putPendingTours(ctx, kept); err != nil {
		return 0, err
	}
	if m.logger != nil {
		m.logger.Cleanup().Info("Old pending tours removed", "removed", removed, "kept", len(kept))
	}
	return removed, nil
}

// CleanAllOldData runs the full maintenance pass: expired cached tours are
// purged, orphaned or unreadable metadata past its age limit is removed, and
// the pending list is pruned.
func (m *Manager) CleanAllOldData(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{}
	start := time.Now()

	adapter, err := m.adapter(ctx)
	if err != nil {
		return nil, err
	}

	// Listing walks every record; expired ones are removed by the walk.
	before, err := m.countStoredRecords(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := adapter.ListTours(ctx); err != nil {
		return nil, err
	}
	after, err := m.countStoredRecords(ctx)
	if err != nil {
		return nil, err
	}
	if before > after {
		report.ExpiredTours = before - after
	}

	stale, err := m.cleanStaleMetadata(ctx)
	if err != nil {
		return nil, err
	}
	report.StaleMetadata = stale

	pendingRemoved, err := m.CleanOldPendingTours(ctx)
	if err != nil {
		return nil, err
	}
	report.PendingRemoved = pendingRemoved

	if m.logger != nil {
		m.logger.Cleanup().Info("Cleanup pass complete",
			"expiredTours", report.ExpiredTours,
			"staleMetadata", report.StaleMetadata,
			"pendingRemoved", report.PendingRemoved,
			"duration", time.Since(start))
	}
	return report, nil
}

func (m *Manager) countStoredRecords(ctx context.Context) (int, error) {
	keys, err := m.kv.GetAllKeys(ctx, objectstore.BucketTours)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// cleanStaleMetadata removes metadata records whose key is unreadable or
// whose tour is gone and whose cached-at aged past the limit.
func (m *Manager) cleanStaleMetadata(ctx context.Context) (int, error) {
	keys, err := m.kv.GetAllKeys(ctx, objectstore.BucketKV)
	if err != nil {
		return 0, err
	}

	adapter, err := m.adapter(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-m.config.MetadataMaxAge)
	removed := 0
	for _, key := range keys {
		if len(key) <= len(metadataKeyPrefix) || key[:len(metadataKeyPrefix)] != metadataKeyPrefix {
			continue
		}
		id := key[len(metadataKeyPrefix):]

		raw, err := m.kv.Get(ctx, objectstore.BucketKV, key)
		if err != nil {
			return removed, err
		}
		if raw == nil {
			continue
		}

		var meta tours.TourMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			if delErr := m.kv.Delete(ctx, objectstore.BucketKV, key); delErr != nil {
				return removed, delErr
			}
			removed++
			continue
		}

		if !meta.CachedAt.Before(cutoff) {
			continue
		}
		stored, err := adapter.LoadTour(ctx, id)
		if err != nil {
			return removed, err
		}
		if stored != nil {
			continue
		}
		if delErr := m.kv.Delete(ctx, objectstore.BucketKV, key); delErr != nil {
			return removed, delErr
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) putPendingTours(ctx context.Context, list []tours.PendingTour) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, objectstore.BucketKV, pendingToursKey, raw, time.Now().UTC())
}

func (m *Manager) putMetadata(ctx context.Context, meta tours.TourMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, objectstore.BucketKV, metadataKeyPrefix+meta.ID, raw, meta.CachedAt)
}

func estimateSize(snapshot *tours.TourSnapshot, imageBlobs map[string][]byte) int64 {
	raw, err := json.Marshal(snapshot)
	var total int64
	if err == nil {
		total = int64(len(raw))
	}
	for _, blob := range imageBlobs {
		total += int64(len(blob))
	}
	return total
}
