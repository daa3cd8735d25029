package hybrid

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simbavista/tour360-go/internal/domain/entities/tours"
	"github.com/simbavista/tour360-go/internal/domain/storageerr"
	"github.com/simbavista/tour360-go/internal/infrastructure/capability"
	"github.com/simbavista/tour360-go/internal/infrastructure/messaging"
	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/embedded"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/filesystem"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/objectstore"
	"github.com/simbavista/tour360-go/internal/infrastructure/storage/offlinecache"
)

type embeddedOnlyShell struct{}

func (embeddedOnlyShell) IsNative() bool                                     { return false }
func (embeddedOnlyShell) EnsurePermission(ctx context.Context) (bool, error) { return false, nil }
func (embeddedOnlyShell) MkdirAll(path string) error                         { return nil }
func (embeddedOnlyShell) RemoveAll(path string) error                        { return nil }

type brokenProbeShell struct{}

func (brokenProbeShell) IsNative() bool                                     { return true }
func (brokenProbeShell) EnsurePermission(ctx context.Context) (bool, error) { return true, nil }
func (brokenProbeShell) MkdirAll(path string) error                         { return errors.New("read-only volume") }
func (brokenProbeShell) RemoveAll(path string) error                        { return nil }

type fakeBackend struct {
	snapshot *tours.TourSnapshot
	images   map[string][]byte
	graphErr error
}

func (f *fakeBackend) FetchTourGraph(ctx context.Context, tourID string) (*tours.TourSnapshot, error) {
	if f.graphErr != nil {
		return nil, f.graphErr
	}
	return f.snapshot, nil
}

func (f *fakeBackend) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	blob, ok := f.images[imageURL]
	if !ok {
		return nil, errors.New("image unavailable")
	}
	return blob, nil
}

type fixture struct {
	manager *Manager
	bus     *messaging.SyncEventBus
	backend *fakeBackend
}

func newFixture(t *testing.T, shell capability.Shell, quotaBytes int64) *fixture {
	t.Helper()
	logger := logging.NewTestLogger()
	root := t.TempDir()

	store, err := objectstore.Open(filepath.Join(root, "offline-cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cache := offlinecache.NewCache(store, offlinecache.Config{
		ExpirationDays:       7,
		MaxTours:             5,
		MaxSizeBytes:         100 * 1024 * 1024,
		EvictionThresholdPct: 90,
	}, logger)

	bus := messaging.NewSyncEventBus(10, logger)
	fb := &fakeBackend{images: map[string][]byte{}}

	manager := NewManager(
		capability.NewNegotiator(shell, root, logger),
		filesystem.NewAdapter(root, logger),
		embedded.NewAdapter(cache, nil, logger),
		store,
		fb,
		bus,
		Config{
			UserStorageLimitBytes: quotaBytes,
			PendingTourMaxAge:     7 * 24 * time.Hour,
			MetadataMaxAge:        7 * 24 * time.Hour,
		},
		logger,
	)
	return &fixture{manager: manager, bus: bus, backend: fb}
}

func testSnapshot(id string) *tours.TourSnapshot {
	return &tours.TourSnapshot{
		Tour: tours.Tour{ID: id, Title: "Harbor Walk", TourType: tours.TourType360},
		FloorPlans: []tours.FloorPlan{
			{ID: "fp1", TourID: id, Name: "Ground Floor", ImageURL: "https://cdn.example.com/fp1.jpg"},
		},
	}
}

// stubBackendTour makes the backend serve a graph for id with one
// fetchable floor plan image.
func (f *fixture) stubBackendTour(id string, plan []byte) {
	f.backend.snapshot = testSnapshot(id)
	f.backend.images["https://cdn.example.com/fp1.jpg"] = plan
}

func TestInitializeSelectsEmbeddedWithoutNativeHost(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)

	require.NoError(t, f.manager.Initialize(context.Background()))
	assert.False(t, f.manager.IsUsingNativeStorage())
	assert.Equal(t, capability.SubstrateEmbedded, f.manager.ActiveSubstrate().Kind)
}

func TestInitializeFallsBackWhenProbeFails(t *testing.T) {
	// Permission is granted but writes fail: the manager must not trust
	// the advertised capability.
	f := newFixture(t, brokenProbeShell{}, 0)

	require.NoError(t, f.manager.Initialize(context.Background()))
	assert.False(t, f.manager.IsUsingNativeStorage())
	assert.True(t, f.manager.ActiveSubstrate().PermissionGranted)
}

func TestInitializeSelectsNativeOnRealFilesystem(t *testing.T) {
	f := newFixture(t, capability.DeviceShell{}, 0)

	require.NoError(t, f.manager.Initialize(context.Background()))
	assert.True(t, f.manager.IsUsingNativeStorage())
}

func TestReinitializeSwitchesSubstrate(t *testing.T) {
	f := newFixture(t, capability.DeviceShell{}, 0)
	ctx := context.Background()

	require.NoError(t, f.manager.Initialize(ctx))
	require.True(t, f.manager.IsUsingNativeStorage())

	// Ops before and after reinitialization both succeed.
	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil))
	require.NoError(t, f.manager.Reinitialize(ctx))

	stored, err := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestEmbeddedSaveFetchesFreshFromBackend(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()
	f.stubBackendTour("t1", []byte("plan-bytes"))

	// The caller's payload is advisory on the embedded substrate: the
	// cached copy always comes from the backend.
	stale := testSnapshot("t1")
	stale.Tour.Title = "Stale Draft"
	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Stale Draft", stale, map[string][]byte{"fp1": []byte("stale")}))

	stored, err := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Harbor Walk", stored.Name)
	assert.Equal(t, []byte("plan-bytes"), stored.ImageBlobs["fp1"])

	// What the backend served is by definition in sync with it.
	meta, err := f.manager.GetTourMetadata(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.HasLocalChanges)

	stats, err := f.manager.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestEmbeddedSaveFailsWhenBackendUnreachable(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()
	f.backend.graphErr = errors.New("backend unreachable")

	err := f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil)
	require.Error(t, err)

	stored, loadErr := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, loadErr)
	assert.Nil(t, stored, "a failed save stores nothing")
}

func TestSaveTourRefusedOverUserLimit(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 1024)
	ctx := context.Background()
	f.stubBackendTour("t1", make([]byte, 4096))

	err := f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil)
	require.Error(t, err)
	assert.True(t, storageerr.IsQuotaExceeded(err))

	stored, loadErr := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, loadErr)
	assert.Nil(t, stored, "a refused save stores nothing")
}

func TestNativeSaveIgnoresUserLimit(t *testing.T) {
	f := newFixture(t, capability.DeviceShell{}, 1)
	ctx := context.Background()

	// Native storage is bounded by the disk alone; the soft limit only
	// applies to the embedded substrate.
	blobs := map[string][]byte{"fp1": make([]byte, 4096)}
	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), blobs))

	stored, err := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	meta, err := f.manager.GetTourMetadata(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.HasLocalChanges, "a caller-edited save awaits upload")
}

func TestSaveTourPublishesUpdateEvent(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()
	f.stubBackendTour("t1", []byte("plan-bytes"))

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil))

	select {
	case event := <-events:
		assert.Equal(t, "tours", event.EntityKind)
		assert.Equal(t, messaging.ChangeUpdate, event.Change)
		assert.Equal(t, "t1", event.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected an update event")
	}
}

func TestDeleteTourPublishesDeleteEvent(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()
	f.stubBackendTour("t1", []byte("plan-bytes"))

	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil))

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.manager.DeleteTour(ctx, "t1"))

	select {
	case event := <-events:
		assert.Equal(t, messaging.ChangeDelete, event.Change)
		assert.Equal(t, "t1", event.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected a delete event")
	}

	stored, err := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOfflineTourLifecycle(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	pending, err := f.manager.CreateTourOffline(ctx, tours.PendingTourFields{
		Title:    "New Listing",
		TourType: tours.TourType360,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pending.ID)
	assert.False(t, pending.Synced)
	assert.True(t, pending.HasLocalChanges)

	list, err := f.manager.PendingTours(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	// Metadata answers from the pending list before any sync.
	meta, err := f.manager.GetTourMetadata(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.HasLocalChanges)
	assert.Equal(t, "New Listing", meta.Name)

	// The pending tour is viewable offline before it has a backend id.
	stored, err := f.manager.LoadTourOffline(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "New Listing", stored.Snapshot.Tour.Title)
	assert.True(t, stored.HasLocalChanges)

	require.NoError(t, f.manager.MarkTourSynced(ctx, pending.ID, "remote-9"))

	list, err = f.manager.PendingTours(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	resolved, err := f.manager.ResolveTourID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote-9", resolved)

	// The cleared record lives under the remote id, and the local id
	// resolves to it.
	meta, err = f.manager.GetTourMetadata(ctx, "remote-9")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "remote-9", meta.ID)
	assert.False(t, meta.HasLocalChanges)
	require.NotNil(t, meta.LastSyncedAt)

	meta, err = f.manager.GetTourMetadata(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.HasLocalChanges)
	require.NotNil(t, meta.LastSyncedAt)
}

func TestMarkTourSyncedClearsMetadataUnderRemoteID(t *testing.T) {
	f := newFixture(t, capability.DeviceShell{}, 0)
	ctx := context.Background()

	pending, err := f.manager.CreateTourOffline(ctx, tours.PendingTourFields{Title: "New Listing"})
	require.NoError(t, err)

	// The upload cached the tour under its backend id with local changes
	// still flagged.
	require.NoError(t, f.manager.SaveTour(ctx, "remote-9", "New Listing", testSnapshot("remote-9"), nil))
	require.NoError(t, f.manager.MarkTourSynced(ctx, pending.ID, "remote-9"))

	meta, err := f.manager.GetTourMetadata(ctx, "remote-9")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.HasLocalChanges, "sync clears the flag on the remote id's record")
	require.NotNil(t, meta.LastSyncedAt)
}

func TestCreateTourOfflinePublishesInsertEvent(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)

	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	pending, err := f.manager.CreateTourOffline(context.Background(), tours.PendingTourFields{Title: "New Listing"})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, messaging.ChangeInsert, event.Change)
		assert.Equal(t, pending.ID, event.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected an insert event")
	}
}

func TestLoadTourOfflineFollowsIDMapping(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	pending, err := f.manager.CreateTourOffline(ctx, tours.PendingTourFields{Title: "New Listing"})
	require.NoError(t, err)
	require.NoError(t, f.manager.MarkTourSynced(ctx, pending.ID, "remote-9"))

	// The synced tour is cached under its remote id.
	f.stubBackendTour("remote-9", []byte("plan-bytes"))
	require.NoError(t, f.manager.SaveTour(ctx, "remote-9", "New Listing", testSnapshot("remote-9"), nil))

	stored, err := f.manager.LoadTourOffline(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "remote-9", stored.ID)
}

func TestResolveUnmappedIDReturnsItself(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)

	resolved, err := f.manager.ResolveTourID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", resolved)
}

func TestDownloadTourForOfflineSkipsFailedImages(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	f.backend.snapshot = &tours.TourSnapshot{
		Tour: tours.Tour{ID: "t1", Title: "Harbor Walk"},
		FloorPlans: []tours.FloorPlan{
			{ID: "fp1", TourID: "t1", ImageURL: "https://cdn.example.com/fp1.jpg"},
			{ID: "fp2", TourID: "t1", ImageURL: "https://cdn.example.com/fp2.jpg"},
		},
	}
	// Only the first floor plan image is fetchable.
	f.backend.images["https://cdn.example.com/fp1.jpg"] = []byte("plan-one")

	require.NoError(t, f.manager.DownloadTourForOffline(ctx, "t1"))

	stored, err := f.manager.LoadTour(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []byte("plan-one"), stored.ImageBlobs["fp1"])
	assert.NotContains(t, stored.ImageBlobs, "fp2")
}

func TestDownloadTourForOfflineLandsClean(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()
	f.stubBackendTour("t1", []byte("plan-bytes"))

	require.NoError(t, f.manager.DownloadTourForOffline(ctx, "t1"))

	meta, err := f.manager.GetTourMetadata(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.HasLocalChanges, "a downloaded tour has nothing to upload")
	assert.Equal(t, "Harbor Walk", meta.Name)
}

func TestDownloadTourForOfflineFailsWhenGraphUnavailable(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	f.backend.graphErr = errors.New("backend unreachable")

	err := f.manager.DownloadTourForOffline(context.Background(), "t1")
	assert.Error(t, err)
}

func TestCleanOldPendingTours(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	fresh, err := f.manager.CreateTourOffline(ctx, tours.PendingTourFields{Title: "Fresh"})
	require.NoError(t, err)

	// Age one entry past the pending limit by rewriting the list.
	list, err := f.manager.PendingTours(ctx)
	require.NoError(t, err)
	stale := list[0]
	stale.ID = "stale-1"
	stale.CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	list = append(list, stale)
	require.NoError(t, f.manager.putPendingTours(ctx, list))

	removed, err := f.manager.CleanOldPendingTours(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := f.manager.PendingTours(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestCleanAllOldDataRemovesOrphanedMetadata(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	// Metadata whose tour never made it into the cache, aged past the
	// limit.
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, f.manager.putMetadata(ctx, tours.TourMetadata{
		ID:       "ghost",
		Name:     "Ghost Tour",
		CachedAt: old,
	}))

	// A live tour with fresh metadata survives the pass.
	f.stubBackendTour("t1", []byte("plan-bytes"))
	require.NoError(t, f.manager.SaveTour(ctx, "t1", "Harbor Walk", testSnapshot("t1"), nil))

	report, err := f.manager.CleanAllOldData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleMetadata)

	meta, err := f.manager.GetTourMetadata(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, meta)

	meta, err = f.manager.GetTourMetadata(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, meta)
}

func TestCorruptPendingListReadsAsEmpty(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	require.NoError(t, f.manager.kv.Put(ctx, objectstore.BucketKV, "pending_tours", []byte("{not json"), time.Now()))

	list, err := f.manager.PendingTours(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentInitializationIsShared(t *testing.T) {
	f := newFixture(t, embeddedOnlyShell{}, 0)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			done <- f.manager.Initialize(ctx)
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, capability.SubstrateEmbedded, f.manager.ActiveSubstrate().Kind)
}
