package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type VariantInput struct {
	Variant          string   `json:"variant"`
	ImageURLs        []string `json:"image_urls"`
	ShopifyVariantID *string  `json:"shopify_variant_id,omitempty"`
}

type CreateTestInput struct {
	Shop          string             `json:"shop"`
	ProductID     string             `json:"product_id"`
	Name          string             `json:"name"`
	TrafficSplit  int                `json:"traffic_split"`
	RotationHours *int               `json:"rotation_hours,omitempty"`
	VariantScope  types.VariantScope `json:"variant_scope,omitempty"`
	Variants      []VariantInput     `json:"variants"`
}

// TestAdminService is the dashboard-facing CRUD surface. Lifecycle actions
// live on RotationService.
type TestAdminService interface {
	Create(ctx context.Context, in CreateTestInput) (*types.Test, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Test, error)
	ListByShop(ctx context.Context, shop string) ([]*types.Test, error)
	// ReplaceVariants swaps out a draft test's image sets. Running tests are
	// immutable; pausing first is required.
	ReplaceVariants(ctx context.Context, testID uuid.UUID, variants []VariantInput) (*types.Test, error)
	// Archive hides a completed test from the dashboard's default views.
	Archive(ctx context.Context, testID uuid.UUID) (*types.Test, error)
}

type testAdminService struct {
	db          *gorm.DB
	log         *logger.Logger
	testRepo    repos.TestRepo
	variantRepo repos.TestVariantRepo
}

func NewTestAdminService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, variantRepo repos.TestVariantRepo) TestAdminService {
	return &testAdminService{db: db, log: log.With("service", "TestAdminService"), testRepo: testRepo, variantRepo: variantRepo}
}

func (s *testAdminService) Create(ctx context.Context, in CreateTestInput) (*types.Test, error) {
	if in.Shop == "" || in.ProductID == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: shop, product_id and name are required", ErrInvalidEvent)
	}
	if in.TrafficSplit < 0 || in.TrafficSplit > 100 {
		return nil, fmt.Errorf("%w: traffic_split must be within 0-100", ErrInvalidEvent)
	}
	if in.RotationHours != nil && *in.RotationHours <= 0 {
		return nil, fmt.Errorf("%w: rotation_hours must be positive", ErrInvalidEvent)
	}
	scope := in.VariantScope
	if scope == "" {
		scope = types.ScopeProduct
	}

	// The single-active invariant is enforced at start, but creating a draft
	// against a product with a live test is almost always a mistake; surface
	// the conflict early.
	blocking, err := s.testRepo.GetActiveByShopProduct(ctx, nil, in.Shop, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("check product experiment slot: %w", err)
	}
	if blocking != nil {
		return nil, fmt.Errorf("%w: %q (%s)", ErrTestConflict, blocking.Name, blocking.ID)
	}

	test := &types.Test{
		Shop:          in.Shop,
		ProductID:     in.ProductID,
		Name:          in.Name,
		Status:        types.TestStatusDraft,
		CurrentCase:   types.CaseBase,
		TrafficSplit:  in.TrafficSplit,
		RotationHours: in.RotationHours,
		VariantScope:  scope,
	}
	for _, v := range in.Variants {
		if !validVariantTag(v.Variant) {
			return nil, fmt.Errorf("%w: variant tag must be A or B, got %q", ErrInvalidEvent, v.Variant)
		}
		if len(v.ImageURLs) == 0 {
			return nil, fmt.Errorf("%w: variant %s needs at least one image", ErrInvalidEvent, v.Variant)
		}
		raw, err := types.ImageURLsJSON(v.ImageURLs)
		if err != nil {
			return nil, fmt.Errorf("encode image urls: %w", err)
		}
		test.Variants = append(test.Variants, types.TestVariant{
			Variant:          v.Variant,
			ImageURLs:        raw,
			ShopifyVariantID: v.ShopifyVariantID,
		})
	}

	if err := s.testRepo.Create(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	s.log.Info("Test created", "test_id", test.ID, "shop", test.Shop, "product_id", test.ProductID)
	return test, nil
}

func (s *testAdminService) Get(ctx context.Context, id uuid.UUID) (*types.Test, error) {
	test, err := s.testRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	return test, nil
}

func (s *testAdminService) ListByShop(ctx context.Context, shop string) ([]*types.Test, error) {
	if shop == "" {
		return nil, fmt.Errorf("%w: shop is required", ErrInvalidEvent)
	}
	return s.testRepo.ListByShop(ctx, nil, shop)
}

func (s *testAdminService) ReplaceVariants(ctx context.Context, testID uuid.UUID, variants []VariantInput) (*types.Test, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	if test.Status != types.TestStatusDraft && test.Status != types.TestStatusPaused {
		return nil, fmt.Errorf("%w: variants can only change in DRAFT or PAUSED, not %s", ErrInvalidTransition, test.Status)
	}

	records := make([]*types.TestVariant, 0, len(variants))
	for _, v := range variants {
		if !validVariantTag(v.Variant) {
			return nil, fmt.Errorf("%w: variant tag must be A or B, got %q", ErrInvalidEvent, v.Variant)
		}
		if len(v.ImageURLs) == 0 {
			return nil, fmt.Errorf("%w: variant %s needs at least one image", ErrInvalidEvent, v.Variant)
		}
		raw, err := types.ImageURLsJSON(v.ImageURLs)
		if err != nil {
			return nil, fmt.Errorf("encode image urls: %w", err)
		}
		records = append(records, &types.TestVariant{
			TestID:           test.ID,
			Variant:          v.Variant,
			ImageURLs:        raw,
			ShopifyVariantID: v.ShopifyVariantID,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.variantRepo.DeleteByTestID(ctx, tx, test.ID); err != nil {
			return fmt.Errorf("clear variants: %w", err)
		}
		return s.variantRepo.CreateBatch(ctx, tx, records)
	})
	if err != nil {
		return nil, err
	}
	return s.testRepo.GetByID(ctx, nil, testID)
}

func (s *testAdminService) Archive(ctx context.Context, testID uuid.UUID) (*types.Test, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	if test.Status != types.TestStatusCompleted {
		return nil, fmt.Errorf("%w: only COMPLETED tests can be archived, not %s", ErrInvalidTransition, test.Status)
	}
	test.Status = types.TestStatusArchived
	if err := s.testRepo.Save(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("save test: %w", err)
	}
	return test, nil
}
