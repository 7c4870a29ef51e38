package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelsplit/pixelsplit-backend/internal/shopify"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

func TestIngest_RejectsMalformedInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ingest.Ingest(ctx, IngestInput{SessionID: "s", EventType: "CLICK", ProductID: "111"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("unknown event type: %v", err)
	}
	_, err = e.ingest.Ingest(ctx, IngestInput{EventType: types.EventImpression, ProductID: "111"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing session: %v", err)
	}
	_, err = e.ingest.Ingest(ctx, IngestInput{SessionID: "s", EventType: types.EventImpression})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing product without test id: %v", err)
	}
}

func TestIngest_NoExperimentIsSoftSuccess(t *testing.T) {
	e := newEnv(t)

	res, err := e.ingest.Ingest(context.Background(), IngestInput{
		Shop:      "demo.myshopify.com",
		SessionID: "sess-1",
		EventType: types.EventImpression,
		ProductID: "untested-product",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.NoTest || res.EventID != nil {
		t.Fatalf("no-test result: %+v", res)
	}
}

func TestIngest_DeduplicatesPerSessionAndType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	in := IngestInput{
		Shop:      "demo.myshopify.com",
		TestID:    &test.ID,
		SessionID: "sess-1",
		EventType: types.EventAddToCart,
		ProductID: "111",
	}
	first, err := e.ingest.Ingest(ctx, in)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.EventID == nil || first.Deduplicated {
		t.Fatalf("first ingest: %+v", first)
	}

	second, err := e.ingest.Ingest(ctx, in)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Deduplicated {
		t.Fatalf("repeat ingest not deduplicated: %+v", second)
	}
	if second.EventID == nil || *second.EventID != *first.EventID {
		t.Fatalf("dedup must return the original event, got %v vs %v", second.EventID, first.EventID)
	}
	if second.Variant != first.Variant {
		t.Fatalf("dedup variant drifted: %q vs %q", second.Variant, first.Variant)
	}
	if n := e.countEvents(t, test.ID, types.EventAddToCart); n != 1 {
		t.Fatalf("add-to-cart rows = %d, want 1", n)
	}
}

func TestIngest_SynthesizesImpressionAnchor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	res, err := e.ingest.Ingest(ctx, IngestInput{
		Shop:      "demo.myshopify.com",
		TestID:    &test.ID,
		SessionID: "sess-1",
		EventType: types.EventAddToCart,
		ProductID: "111",
		Variant:   types.VariantTagB,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Variant != types.VariantTagB {
		t.Fatalf("declared variant ignored: %+v", res)
	}
	if n := e.countEvents(t, test.ID, types.EventImpression); n != 1 {
		t.Fatalf("impression anchors = %d, want 1", n)
	}

	anchor, err := e.eventRepo.GetBySessionAndType(ctx, nil, test.ID, "sess-1", types.EventImpression)
	if err != nil || anchor == nil {
		t.Fatalf("load anchor: %v", err)
	}
	if anchor.Variant != types.VariantTagB {
		t.Fatalf("anchor variant = %q, want B", anchor.Variant)
	}
	if anchor.Revenue != nil || anchor.Quantity != nil {
		t.Fatalf("anchor must not carry purchase fields: %+v", anchor)
	}
}

func TestIngest_ExistingBindingBeatsDeclaredVariant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	e.rand.values = []float64{0.10} // binds sess-1 to A
	if _, err := e.assign.ResolveVariant(ctx, test.ID, "sess-1", ""); err != nil {
		t.Fatalf("bind session: %v", err)
	}

	res, err := e.ingest.Ingest(ctx, IngestInput{
		Shop:      "demo.myshopify.com",
		TestID:    &test.ID,
		SessionID: "sess-1",
		EventType: types.EventAddToCart,
		ProductID: "111",
		Variant:   types.VariantTagB,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Variant != types.VariantTagA {
		t.Fatalf("stored binding must win over the declared tag, got %q", res.Variant)
	}
}

func TestIngest_AttributesLateEventsToHistoricalCase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	if _, err := e.rotation.Rotate(ctx, test.ID, types.TriggerManual); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	before := time.Now().UTC().Add(-time.Hour)
	res, err := e.ingest.Ingest(ctx, IngestInput{
		Shop:       "demo.myshopify.com",
		TestID:     &test.ID,
		SessionID:  "sess-early",
		EventType:  types.EventImpression,
		ProductID:  "111",
		OccurredAt: &before,
	})
	if err != nil {
		t.Fatalf("ingest late event: %v", err)
	}
	if res.Variant != types.VariantTagA {
		t.Fatalf("event before the rotation must attribute to A, got %q", res.Variant)
	}

	after := time.Now().UTC().Add(time.Minute)
	res, err = e.ingest.Ingest(ctx, IngestInput{
		Shop:       "demo.myshopify.com",
		TestID:     &test.ID,
		SessionID:  "sess-late",
		EventType:  types.EventImpression,
		ProductID:  "111",
		OccurredAt: &after,
	})
	if err != nil {
		t.Fatalf("ingest current event: %v", err)
	}
	if res.Variant != types.VariantTagB {
		t.Fatalf("event after the rotation must attribute to B, got %q", res.Variant)
	}
}

func TestIngest_MidWindowEventAttributesToPastCase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	slot, err := e.slotRepo.Get(ctx, nil, "demo.myshopify.com", "111", nil)
	if err != nil || slot == nil {
		t.Fatalf("slot: %v", err)
	}

	// History: CONTROL until t1, TEST between t1 and t2, CONTROL after t2.
	now := time.Now().UTC()
	t1 := now.Add(-2 * time.Hour)
	t2 := now.Add(-time.Hour)
	if err := e.slotRepo.ForceCase(ctx, nil, slot.ID, types.SlotTest, t1); err != nil {
		t.Fatalf("force TEST: %v", err)
	}
	if err := e.slotRepo.ForceCase(ctx, nil, slot.ID, types.SlotControl, t2); err != nil {
		t.Fatalf("force CONTROL: %v", err)
	}

	// Ingested long after t2, occurred between t1 and t2.
	mid := now.Add(-90 * time.Minute)
	res, err := e.ingest.Ingest(ctx, IngestInput{
		Shop:       "demo.myshopify.com",
		TestID:     &test.ID,
		SessionID:  "sess-mid",
		EventType:  types.EventImpression,
		ProductID:  "111",
		OccurredAt: &mid,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Variant != types.VariantTagB {
		t.Fatalf("mid-window event must attribute to B, got %q", res.Variant)
	}
}

func TestIngest_WebhookEnrichesPixelPurchase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	// Pixel purchase lands first, before the order id is known.
	res, err := e.ingest.Ingest(ctx, IngestInput{
		Shop:      "demo.myshopify.com",
		TestID:    &test.ID,
		SessionID: "sess-1",
		EventType: types.EventPurchase,
		ProductID: "111",
	})
	if err != nil {
		t.Fatalf("pixel purchase: %v", err)
	}
	if res.EventID == nil {
		t.Fatalf("pixel purchase result: %+v", res)
	}

	order := &shopify.OrderWebhook{
		ID:          6312467890,
		OrderNumber: 1042,
		TotalPrice:  "59.98",
		LineItems:   []shopify.OrderLineItem{{ProductID: 111, Quantity: 2, Price: "29.99"}},
		NoteAttributes: []shopify.NoteAttribute{
			{Name: OrderAttrTestID, Value: test.ID.String()},
			{Name: OrderAttrSessionID, Value: "sess-1"},
		},
	}
	enriched, err := e.ingest.ProcessOrderPaid(ctx, "demo.myshopify.com", order)
	if err != nil {
		t.Fatalf("process order: %v", err)
	}
	if !enriched.Enriched {
		t.Fatalf("webhook must enrich, not insert: %+v", enriched)
	}
	if *enriched.EventID != *res.EventID {
		t.Fatalf("enrichment targeted a different row")
	}

	stored, err := e.eventRepo.GetBySessionAndType(ctx, nil, test.ID, "sess-1", types.EventPurchase)
	if err != nil || stored == nil {
		t.Fatalf("load purchase: %v", err)
	}
	if stored.Revenue == nil || *stored.Revenue != 59.98 {
		t.Fatalf("revenue not enriched: %v", stored.Revenue)
	}
	if stored.Quantity == nil || *stored.Quantity != 2 {
		t.Fatalf("quantity not enriched: %v", stored.Quantity)
	}
	if stored.Metadata.OrderID != "6312467890" || !stored.Metadata.EnrichedByWebhook {
		t.Fatalf("metadata not enriched: %+v", stored.Metadata)
	}
	if n := e.countEvents(t, test.ID, types.EventPurchase); n != 1 {
		t.Fatalf("purchase rows = %d, want 1", n)
	}
}

func TestIngest_RepeatWebhookForSameOrderIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	order := &shopify.OrderWebhook{
		ID:          777,
		TotalPrice:  "10.00",
		LineItems:   []shopify.OrderLineItem{{ProductID: 111, Quantity: 1, Price: "10.00"}},
		NoteAttributes: []shopify.NoteAttribute{
			{Name: OrderAttrTestID, Value: test.ID.String()},
			{Name: OrderAttrSessionID, Value: "sess-1"},
		},
	}
	first, err := e.ingest.ProcessOrderPaid(ctx, "demo.myshopify.com", order)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := e.ingest.ProcessOrderPaid(ctx, "demo.myshopify.com", order)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !second.Enriched {
		t.Fatalf("redelivery must hit the stored row: %+v", second)
	}
	if *second.EventID != *first.EventID {
		t.Fatalf("redelivery targeted a different row")
	}
	if n := e.countEvents(t, test.ID, types.EventPurchase); n != 1 {
		t.Fatalf("purchase rows = %d, want 1", n)
	}
}

func TestProcessOrderPaid_FallsBackToLineItemLookup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	// No cart attributes: an order placed without the pixel (POS, API).
	order := &shopify.OrderWebhook{
		ID:         888,
		TotalPrice: "25.00",
		LineItems: []shopify.OrderLineItem{
			{ProductID: 999, Quantity: 1, Price: "5.00"},
			{ProductID: 111, Quantity: 1, Price: "20.00"},
		},
	}
	res, err := e.ingest.ProcessOrderPaid(ctx, "demo.myshopify.com", order)
	if err != nil {
		t.Fatalf("process order: %v", err)
	}
	if res.NoTest || res.EventID == nil {
		t.Fatalf("line-item attribution failed: %+v", res)
	}
	if res.TestID == nil || *res.TestID != test.ID {
		t.Fatalf("attributed to wrong test: %+v", res)
	}

	stored, err := e.eventRepo.GetBySessionAndType(ctx, nil, test.ID, "order:888", types.EventPurchase)
	if err != nil || stored == nil {
		t.Fatalf("load purchase: %v", err)
	}
	if stored.Metadata.Source != types.SourceWebhook {
		t.Fatalf("source = %q, want webhook", stored.Metadata.Source)
	}
}

func TestProcessOrderPaid_UnattributableOrderIsSoftSuccess(t *testing.T) {
	e := newEnv(t)

	order := &shopify.OrderWebhook{
		ID:         999,
		TotalPrice: "5.00",
		LineItems:  []shopify.OrderLineItem{{ProductID: 424242, Quantity: 1}},
	}
	res, err := e.ingest.ProcessOrderPaid(context.Background(), "demo.myshopify.com", order)
	if err != nil {
		t.Fatalf("process order: %v", err)
	}
	if !res.NoTest {
		t.Fatalf("order without an experiment must be a no-test result: %+v", res)
	}
}

func TestProcessOrderPaid_RejectsEmptyPayload(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ingest.ProcessOrderPaid(context.Background(), "demo.myshopify.com", nil); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
