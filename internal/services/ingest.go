package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/shopify"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// Order attribute names the storefront script stamps on the cart so the paid
// webhook can be attributed back to a session.
const (
	OrderAttrTestID    = "_pixelsplit_test"
	OrderAttrSessionID = "_pixelsplit_session"
)

type IngestInput struct {
	Shop             string
	TestID           *uuid.UUID
	SessionID        string
	EventType        types.EventType
	ProductID        string
	ShopifyVariantID *string
	// Variant is an optional caller-declared A/B tag, honored only when the
	// session has no binding yet.
	Variant     string
	Revenue     *float64
	Quantity    *int
	Source      types.EventSource
	OccurredAt  *time.Time
	OrderID     string
	OrderNumber string
	Extra       map[string]any
}

type IngestResult struct {
	EventID      *uuid.UUID `json:"event_id,omitempty"`
	TestID       *uuid.UUID `json:"test_id,omitempty"`
	Variant      string     `json:"variant,omitempty"`
	Deduplicated bool       `json:"deduplicated,omitempty"`
	Enriched     bool       `json:"enriched,omitempty"`
	NoTest       bool       `json:"no_test,omitempty"`
}

type IngestService interface {
	Ingest(ctx context.Context, in IngestInput) (*IngestResult, error)
	// ProcessOrderPaid runs the enrich-or-insert purchase logic for a paid
	// order webhook.
	ProcessOrderPaid(ctx context.Context, shop string, order *shopify.OrderWebhook) (*IngestResult, error)
}

type ingestService struct {
	db        *gorm.DB
	log       *logger.Logger
	testRepo  repos.TestRepo
	eventRepo repos.TrackingEventRepo
	slotRepo  repos.RotationSlotRepo
}

func NewIngestService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, eventRepo repos.TrackingEventRepo, slotRepo repos.RotationSlotRepo) IngestService {
	return &ingestService{
		db:        db,
		log:       log.With("service", "IngestService"),
		testRepo:  testRepo,
		eventRepo: eventRepo,
		slotRepo:  slotRepo,
	}
}

func (s *ingestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if !in.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, in.EventType)
	}
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session id required", ErrInvalidEvent)
	}
	if in.TestID == nil && in.ProductID == "" {
		return nil, fmt.Errorf("%w: product id required without a test id", ErrInvalidEvent)
	}

	test, err := s.resolveTest(ctx, in)
	if err != nil {
		return nil, err
	}
	if test == nil || len(usableGroups(test.Variants)) == 0 {
		// Pages without an experiment must not see errors.
		return &IngestResult{NoTest: true}, nil
	}

	occurredAt := time.Now().UTC()
	if in.OccurredAt != nil {
		occurredAt = in.OccurredAt.UTC()
	}

	variant, bound, err := s.resolveEventVariant(ctx, test, in, occurredAt)
	if err != nil {
		return nil, err
	}

	// A declared or slot-resolved variant on a non-impression first event
	// gets a retroactive IMPRESSION so the session is anchored.
	if !bound && in.EventType != types.EventImpression {
		anchor := s.newEvent(test, in, types.EventImpression, variant, occurredAt)
		anchor.Revenue = nil
		anchor.Quantity = nil
		if _, err := s.eventRepo.InsertIgnore(ctx, nil, anchor); err != nil {
			return nil, fmt.Errorf("synthesize impression anchor: %w", err)
		}
	}

	if in.EventType == types.EventPurchase && in.OrderID != "" {
		return s.upsertPurchase(ctx, test, in, variant, occurredAt)
	}

	event := s.newEvent(test, in, in.EventType, variant, occurredAt)
	created, err := s.eventRepo.InsertIgnore(ctx, nil, event)
	if err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	if !created {
		existing, err := s.eventRepo.GetBySessionAndType(ctx, nil, test.ID, in.SessionID, in.EventType)
		if err != nil {
			return nil, fmt.Errorf("load deduplicated event: %w", err)
		}
		result := &IngestResult{TestID: &test.ID, Variant: variant, Deduplicated: true}
		if existing != nil {
			result.EventID = &existing.ID
			result.Variant = existing.Variant
		}
		return result, nil
	}
	return &IngestResult{EventID: &event.ID, TestID: &test.ID, Variant: variant}, nil
}

// resolveTest finds the experiment an event belongs to: explicit test id
// first, then an active-test lookup by product id in each id shape.
func (s *ingestService) resolveTest(ctx context.Context, in IngestInput) (*types.Test, error) {
	if in.TestID != nil {
		test, err := s.testRepo.GetByID(ctx, nil, *in.TestID)
		if err != nil {
			return nil, fmt.Errorf("load test: %w", err)
		}
		if test != nil && test.IsActive() {
			return test, nil
		}
	}
	if in.ProductID == "" || in.Shop == "" {
		return nil, nil
	}
	for _, candidate := range shopify.IDCandidates("Product", in.ProductID) {
		test, err := s.testRepo.GetActiveByShopProduct(ctx, nil, in.Shop, candidate)
		if err != nil {
			return nil, fmt.Errorf("lookup active test: %w", err)
		}
		if test != nil {
			return test, nil
		}
	}
	return nil, nil
}

// resolveEventVariant pins the session's variant. Order: existing binding,
// caller-declared tag, then the rotation slot's case at occurredAt. bound
// reports whether a stored binding already existed.
func (s *ingestService) resolveEventVariant(ctx context.Context, test *types.Test, in IngestInput, occurredAt time.Time) (variant string, bound bool, err error) {
	existing, err := s.eventRepo.EarliestBySession(ctx, nil, test.ID, in.SessionID)
	if err != nil {
		return "", false, fmt.Errorf("lookup session binding: %w", err)
	}
	if existing != nil {
		return existing.Variant, true, nil
	}
	if validVariantTag(in.Variant) {
		return in.Variant, false, nil
	}
	slotCase, err := s.slotCaseAt(ctx, test, in.ShopifyVariantID, occurredAt)
	if err != nil {
		return "", false, err
	}
	return variantTagForSlotCase(slotCase), false, nil
}

// slotCaseAt answers "what case was displayed at occurredAt" from the slot
// rotation history, never from the current instant: late events must be
// attributed to what the shopper actually saw.
func (s *ingestService) slotCaseAt(ctx context.Context, test *types.Test, shopifyVariantID *string, occurredAt time.Time) (types.SlotCase, error) {
	var scopeIDs []*string
	if shopifyVariantID != nil {
		for _, candidate := range shopify.IDCandidates("ProductVariant", *shopifyVariantID) {
			c := candidate
			scopeIDs = append(scopeIDs, &c)
		}
	}
	scopeIDs = append(scopeIDs, nil)

	for _, scopeID := range scopeIDs {
		slot, err := s.slotRepo.Get(ctx, nil, test.Shop, test.ProductID, scopeID)
		if err != nil {
			return types.SlotControl, fmt.Errorf("lookup rotation slot: %w", err)
		}
		if slot == nil {
			continue
		}
		history, err := s.slotRepo.HistoryAsc(ctx, nil, slot.ID)
		if err != nil {
			return types.SlotControl, fmt.Errorf("load rotation history: %w", err)
		}
		return types.ActiveCaseAt(history, occurredAt), nil
	}
	return slotCaseForTestCase(test.CurrentCase), nil
}

// upsertPurchase implements enrich-or-insert keyed on the order id: a pixel
// purchase recorded first is updated with the webhook's authoritative revenue
// instead of a second row landing. The row lock inside the transaction keeps
// concurrent pixel+webhook arrivals from both inserting.
func (s *ingestService) upsertPurchase(ctx context.Context, test *types.Test, in IngestInput, variant string, occurredAt time.Time) (*IngestResult, error) {
	var result *IngestResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.eventRepo.FindPurchaseByOrderID(ctx, tx, test.ID, in.OrderID, true)
		if err != nil {
			return fmt.Errorf("lookup purchase by order: %w", err)
		}
		if existing == nil {
			// A pixel purchase may have landed before it knew its order id;
			// the stamped session id is the secondary correlation key.
			existing, err = s.eventRepo.GetBySessionAndType(ctx, tx, test.ID, in.SessionID, types.EventPurchase)
			if err != nil {
				return fmt.Errorf("lookup purchase by session: %w", err)
			}
		}
		if existing != nil {
			if in.Revenue != nil {
				existing.Revenue = in.Revenue
			}
			if in.Quantity != nil {
				existing.Quantity = in.Quantity
			}
			if existing.Metadata.OrderID == "" {
				existing.Metadata.OrderID = in.OrderID
			}
			if in.OrderNumber != "" {
				existing.Metadata.OrderNumber = in.OrderNumber
			}
			if in.Source == types.SourceWebhook {
				existing.Metadata.EnrichedByWebhook = true
			}
			if err := s.eventRepo.Save(ctx, tx, existing); err != nil {
				return fmt.Errorf("enrich purchase: %w", err)
			}
			result = &IngestResult{EventID: &existing.ID, TestID: &test.ID, Variant: existing.Variant, Enriched: true}
			return nil
		}

		event := s.newEvent(test, in, types.EventPurchase, variant, occurredAt)
		created, err := s.eventRepo.InsertIgnore(ctx, tx, event)
		if err != nil {
			return fmt.Errorf("persist purchase: %w", err)
		}
		if !created {
			// Same session already purchased under a different order id.
			dup, err := s.eventRepo.GetBySessionAndType(ctx, tx, test.ID, in.SessionID, types.EventPurchase)
			if err != nil {
				return fmt.Errorf("load deduplicated purchase: %w", err)
			}
			result = &IngestResult{TestID: &test.ID, Variant: variant, Deduplicated: true}
			if dup != nil {
				result.EventID = &dup.ID
				result.Variant = dup.Variant
			}
			return nil
		}
		result = &IngestResult{EventID: &event.ID, TestID: &test.ID, Variant: variant}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ingestService) newEvent(test *types.Test, in IngestInput, eventType types.EventType, variant string, occurredAt time.Time) *types.TrackingEvent {
	productID := in.ProductID
	if productID == "" {
		productID = test.ProductID
	}
	source := in.Source
	if source == "" {
		source = types.SourcePixel
	}
	return &types.TrackingEvent{
		TestID:           &test.ID,
		SessionID:        in.SessionID,
		EventType:        eventType,
		Variant:          variant,
		ProductID:        productID,
		ShopifyVariantID: in.ShopifyVariantID,
		Revenue:          in.Revenue,
		Quantity:         in.Quantity,
		Metadata: types.EventMetadata{
			OrderID:     in.OrderID,
			OrderNumber: in.OrderNumber,
			Source:      source,
			OccurredAt:  &occurredAt,
			Extra:       in.Extra,
		},
	}
}

// ProcessOrderPaid attributes a paid order. Attribution order: the cart
// attributes stamped by the storefront script, then an active-test lookup per
// line item for orders placed without the pixel (ad blockers, POS, API).
func (s *ingestService) ProcessOrderPaid(ctx context.Context, shop string, order *shopify.OrderWebhook) (*IngestResult, error) {
	if order == nil || order.ID == 0 {
		return nil, fmt.Errorf("%w: empty order payload", ErrInvalidEvent)
	}

	var testID *uuid.UUID
	if raw := order.Attribute(OrderAttrTestID); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			testID = &parsed
		}
	}

	sessionID := order.Attribute(OrderAttrSessionID)
	if sessionID == "" {
		// Webhook-only orders have no pixel session; a per-order session id
		// keeps the dedup key meaningful.
		sessionID = "order:" + order.OrderIDString()
	}

	productID := ""
	var shopifyVariantID *string
	if testID == nil {
		for _, li := range order.LineItems {
			if li.ProductID == 0 {
				continue
			}
			candidate := strconv.FormatInt(li.ProductID, 10)
			test, err := s.resolveTest(ctx, IngestInput{Shop: shop, ProductID: candidate})
			if err != nil {
				return nil, err
			}
			if test != nil {
				productID = candidate
				if li.VariantID != 0 {
					v := strconv.FormatInt(li.VariantID, 10)
					shopifyVariantID = &v
				}
				break
			}
		}
		if productID == "" {
			return &IngestResult{NoTest: true}, nil
		}
	} else if len(order.LineItems) > 0 {
		if order.LineItems[0].ProductID != 0 {
			productID = strconv.FormatInt(order.LineItems[0].ProductID, 10)
		}
		if order.LineItems[0].VariantID != 0 {
			v := strconv.FormatInt(order.LineItems[0].VariantID, 10)
			shopifyVariantID = &v
		}
	}

	revenue := order.TotalRevenue()
	quantity := order.TotalQuantity()
	return s.Ingest(ctx, IngestInput{
		Shop:             shop,
		TestID:           testID,
		SessionID:        sessionID,
		EventType:        types.EventPurchase,
		ProductID:        productID,
		ShopifyVariantID: shopifyVariantID,
		Revenue:          &revenue,
		Quantity:         &quantity,
		Source:           types.SourceWebhook,
		OrderID:          order.OrderIDString(),
		OrderNumber:      strconv.FormatInt(order.OrderNumber, 10),
	})
}
