package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/pixelsplit/pixelsplit-backend/internal/clients/redis"
	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/shopify"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

const assignmentCacheTTL = 15 * time.Second

// VariantResolution is the outcome of a sticky-assignment lookup. A nil
// *VariantResolution from ResolveVariant means "no active test": the
// storefront shows its default images.
type VariantResolution struct {
	Variant    string `json:"variant"`
	NewBinding bool   `json:"new_binding"`
}

// AssignmentState answers the public storefront query "what should this
// product show right now".
type AssignmentState struct {
	TestID      *uuid.UUID     `json:"test_id,omitempty"`
	ActiveCase  types.TestCase `json:"active_case"`
	VariantCase string         `json:"variant_case,omitempty"`
	Forced      bool           `json:"forced,omitempty"`
}

type AssignmentService interface {
	// ResolveVariant returns the session's pinned variant, assigning one on
	// first contact. forced ("A"/"B") bypasses all state for QA previews.
	ResolveVariant(ctx context.Context, testID uuid.UUID, sessionID string, forced string) (*VariantResolution, error)
	// GetAssignment is the read-only storefront query; force never writes.
	GetAssignment(ctx context.Context, shop, productID string, shopifyVariantID *string, force string) (*AssignmentState, error)
	// InvalidateAssignment drops cached assignment state after a rotation.
	InvalidateAssignment(ctx context.Context, test *types.Test)
}

type assignmentService struct {
	db        *gorm.DB
	log       *logger.Logger
	testRepo  repos.TestRepo
	eventRepo repos.TrackingEventRepo
	slotRepo  repos.RotationSlotRepo
	cache     *redisclient.Client
	rand      RandSource
}

func NewAssignmentService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, eventRepo repos.TrackingEventRepo, slotRepo repos.RotationSlotRepo, cache *redisclient.Client, rand RandSource) AssignmentService {
	return &assignmentService{
		db:        db,
		log:       log.With("service", "AssignmentService"),
		testRepo:  testRepo,
		eventRepo: eventRepo,
		slotRepo:  slotRepo,
		cache:     cache,
		rand:      rand,
	}
}

func (s *assignmentService) ResolveVariant(ctx context.Context, testID uuid.UUID, sessionID string, forced string) (*VariantResolution, error) {
	if validVariantTag(forced) {
		return &VariantResolution{Variant: forced}, nil
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", ErrInvalidEvent)
	}

	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil || !test.IsActive() || len(usableGroups(test.Variants)) == 0 {
		return nil, nil
	}

	existing, err := s.eventRepo.EarliestBySession(ctx, nil, test.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session binding: %w", err)
	}
	if existing != nil {
		return &VariantResolution{Variant: existing.Variant}, nil
	}

	variant := s.draw(test.TrafficSplit)

	anchor := &types.TrackingEvent{
		TestID:    &test.ID,
		SessionID: sessionID,
		EventType: types.EventImpression,
		Variant:   variant,
		ProductID: test.ProductID,
		Metadata:  types.EventMetadata{Source: types.SourcePixel},
	}
	created, err := s.eventRepo.InsertIgnore(ctx, nil, anchor)
	if err != nil {
		return nil, fmt.Errorf("persist impression anchor: %w", err)
	}
	if !created {
		// Lost the first-event race to a concurrent request from the same
		// session; converge on the winner's variant.
		winner, err := s.eventRepo.EarliestBySession(ctx, nil, test.ID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("reload session binding: %w", err)
		}
		if winner != nil {
			return &VariantResolution{Variant: winner.Variant}, nil
		}
	}
	return &VariantResolution{Variant: variant, NewBinding: created}, nil
}

// draw is the weighted split: r in [0,100), A when r < trafficSplit.
func (s *assignmentService) draw(trafficSplit int) string {
	r := s.rand.Float64() * 100
	if r < float64(trafficSplit) {
		return types.VariantTagA
	}
	return types.VariantTagB
}

func (s *assignmentService) GetAssignment(ctx context.Context, shop, productID string, shopifyVariantID *string, force string) (*AssignmentState, error) {
	test, err := s.findRunningTest(ctx, shop, productID)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return &AssignmentState{ActiveCase: types.CaseBase}, nil
	}

	if validVariantTag(force) {
		return &AssignmentState{
			TestID:      &test.ID,
			ActiveCase:  testCaseForVariantTag(force),
			VariantCase: force,
			Forced:      true,
		}, nil
	}

	cacheKey := assignmentCacheKey(shop, productID, shopifyVariantID)
	var cached AssignmentState
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	activeCase, err := s.resolveSlotCase(ctx, test, shop, shopifyVariantID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// Both fields derive from the resolved slot case so the pair can never
	// disagree when the slot and the test row are momentarily out of step.
	state := &AssignmentState{
		TestID:      &test.ID,
		ActiveCase:  testCaseForSlotCase(activeCase),
		VariantCase: variantTagForSlotCase(activeCase),
	}
	s.cache.SetJSON(ctx, cacheKey, state, assignmentCacheTTL)
	return state, nil
}

// findRunningTest tries each product-id shape in order (stored rows may hold
// the GID or the bare numeric id).
func (s *assignmentService) findRunningTest(ctx context.Context, shop, productID string) (*types.Test, error) {
	for _, candidate := range shopify.IDCandidates("Product", productID) {
		test, err := s.testRepo.GetRunningByShopProduct(ctx, nil, shop, candidate)
		if err != nil {
			return nil, fmt.Errorf("lookup running test: %w", err)
		}
		if test != nil {
			return test, nil
		}
	}
	return nil, nil
}

// resolveSlotCase walks the slot fallback chain: variant-specific slot first,
// then the product-wide slot, then the test's own current case.
func (s *assignmentService) resolveSlotCase(ctx context.Context, test *types.Test, shop string, shopifyVariantID *string, at time.Time) (types.SlotCase, error) {
	type lookup struct {
		productID string
		scopeID   *string
	}
	var lookups []lookup
	if shopifyVariantID != nil {
		for _, candidate := range shopify.IDCandidates("ProductVariant", *shopifyVariantID) {
			c := candidate
			lookups = append(lookups, lookup{productID: test.ProductID, scopeID: &c})
		}
	}
	lookups = append(lookups, lookup{productID: test.ProductID, scopeID: nil})

	for _, l := range lookups {
		slot, err := s.slotRepo.Get(ctx, nil, shop, l.productID, l.scopeID)
		if err != nil {
			return types.SlotControl, fmt.Errorf("lookup rotation slot: %w", err)
		}
		if slot != nil {
			return slot.ActiveCase, nil
		}
	}
	return slotCaseForTestCase(test.CurrentCase), nil
}

func (s *assignmentService) InvalidateAssignment(ctx context.Context, test *types.Test) {
	keys := []string{assignmentCacheKey(test.Shop, test.ProductID, nil)}
	for _, g := range usableGroups(test.Variants) {
		if g.ScopeID != nil {
			keys = append(keys, assignmentCacheKey(test.Shop, test.ProductID, g.ScopeID))
		}
	}
	s.cache.Delete(ctx, keys...)
}

func assignmentCacheKey(shop, productID string, shopifyVariantID *string) string {
	scope := "-"
	if shopifyVariantID != nil {
		scope = *shopifyVariantID
	}
	return fmt.Sprintf("assignment:%s:%s:%s", shop, productID, scope)
}
