package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	redisclient "github.com/pixelsplit/pixelsplit-backend/internal/clients/redis"
	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// mediaSwap is one recorded call against the fake commerce platform.
type mediaSwap struct {
	Shop      string
	ProductID string
	ScopeID   *string
	Images    []string
}

type fakeMedia struct {
	mu      sync.Mutex
	swaps   []mediaSwap
	failFor map[string]error // productID -> injected failure
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{failFor: map[string]error{}}
}

func (f *fakeMedia) SwapProductMedia(_ context.Context, shop, productID string, shopifyVariantID *string, imageURLs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[productID]; err != nil {
		return err
	}
	f.swaps = append(f.swaps, mediaSwap{Shop: shop, ProductID: productID, ScopeID: shopifyVariantID, Images: imageURLs})
	return nil
}

func (f *fakeMedia) last() *mediaSwap {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.swaps) == 0 {
		return nil
	}
	s := f.swaps[len(f.swaps)-1]
	return &s
}

// scriptedRand plays back a fixed draw sequence; exhausted scripts return 0
// (variant A under any positive split).
type scriptedRand struct {
	values []float64
	idx    int
}

func (r *scriptedRand) Float64() float64 {
	if r.idx >= len(r.values) {
		return 0
	}
	v := r.values[r.idx]
	r.idx++
	return v
}

type env struct {
	db *gorm.DB

	testRepo    repos.TestRepo
	variantRepo repos.TestVariantRepo
	slotRepo    repos.RotationSlotRepo
	eventRepo   repos.TrackingEventRepo
	rotEvtRepo  repos.RotationEventRepo

	media *fakeMedia
	rand  *scriptedRand

	admin     TestAdminService
	assign    AssignmentService
	rotation  RotationService
	ingest    IngestService
	results   ResultsService
	scheduler SchedulerService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pixelsplit.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Test{},
		&types.TestVariant{},
		&types.RotationSlot{},
		&types.SlotRotation{},
		&types.TrackingEvent{},
		&types.RotationEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.NewNop()
	e := &env{
		db:          db,
		testRepo:    repos.NewTestRepo(db, log),
		variantRepo: repos.NewTestVariantRepo(db, log),
		slotRepo:    repos.NewRotationSlotRepo(db, log),
		eventRepo:   repos.NewTrackingEventRepo(db, log),
		rotEvtRepo:  repos.NewRotationEventRepo(db, log),
		media:       newFakeMedia(),
		rand:        &scriptedRand{},
	}

	var cache *redisclient.Client
	e.admin = NewTestAdminService(db, log, e.testRepo, e.variantRepo)
	e.assign = NewAssignmentService(db, log, e.testRepo, e.eventRepo, e.slotRepo, cache, e.rand)
	e.rotation = NewRotationService(db, log, e.testRepo, e.slotRepo, e.rotEvtRepo, e.media, cache, e.assign)
	e.ingest = NewIngestService(db, log, e.testRepo, e.eventRepo, e.slotRepo)
	e.results = NewResultsService(db, log, e.testRepo, e.eventRepo)
	e.scheduler = NewSchedulerService(db, log, e.testRepo, e.rotation)
	return e
}

func (e *env) createDraft(t *testing.T, shop, productID string, split int, rotationHours *int) *types.Test {
	t.Helper()
	test, err := e.admin.Create(context.Background(), CreateTestInput{
		Shop:          shop,
		ProductID:     productID,
		Name:          "Hero image test",
		TrafficSplit:  split,
		RotationHours: rotationHours,
		Variants: []VariantInput{
			{Variant: types.VariantTagA, ImageURLs: []string{"https://cdn.example.com/a1.jpg", "https://cdn.example.com/a2.jpg"}},
			{Variant: types.VariantTagB, ImageURLs: []string{"https://cdn.example.com/b1.jpg"}},
		},
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	return test
}

func (e *env) startTest(t *testing.T, shop, productID string, split int, rotationHours *int) *types.Test {
	t.Helper()
	draft := e.createDraft(t, shop, productID, split, rotationHours)
	test, err := e.rotation.Start(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("start test: %v", err)
	}
	return test
}

func (e *env) reload(t *testing.T, id uuid.UUID) *types.Test {
	t.Helper()
	test, err := e.testRepo.GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("reload test: %v", err)
	}
	if test == nil {
		t.Fatalf("test %s vanished", id)
	}
	return test
}

func (e *env) countEvents(t *testing.T, testID uuid.UUID, eventType types.EventType) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&types.TrackingEvent{}).
		Where("test_id = ? AND event_type = ?", testID, eventType).
		Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func intPtr(n int) *int { return &n }
