package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

func TestResolveVariant_PinsSessionOnFirstContact(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	e.rand.values = []float64{0.10, 0.90} // first draw A, a second draw would be B

	first, err := e.assign.ResolveVariant(ctx, test.ID, "sess-1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Variant != types.VariantTagA || !first.NewBinding {
		t.Fatalf("first resolution: %+v", first)
	}

	second, err := e.assign.ResolveVariant(ctx, test.ID, "sess-1", "")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if second.Variant != types.VariantTagA {
		t.Fatalf("session not sticky: got %q", second.Variant)
	}
	if second.NewBinding {
		t.Fatalf("repeat resolution must not claim a new binding")
	}
	if n := e.countEvents(t, test.ID, types.EventImpression); n != 1 {
		t.Fatalf("impression anchors = %d, want 1", n)
	}
}

func TestResolveVariant_DrawRespectsTrafficSplit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 70, nil)

	// r = Float64()*100; A when r < 70.
	e.rand.values = []float64{0.699, 0.700}

	got, err := e.assign.ResolveVariant(ctx, test.ID, "sess-a", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Variant != types.VariantTagA {
		t.Fatalf("draw 69.9 under split 70 must be A, got %q", got.Variant)
	}

	got, err = e.assign.ResolveVariant(ctx, test.ID, "sess-b", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Variant != types.VariantTagB {
		t.Fatalf("draw 70.0 under split 70 must be B, got %q", got.Variant)
	}
}

func TestResolveVariant_ForcedBypassesAllState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	got, err := e.assign.ResolveVariant(ctx, test.ID, "sess-1", types.VariantTagB)
	if err != nil {
		t.Fatalf("resolve forced: %v", err)
	}
	if got.Variant != types.VariantTagB || got.NewBinding {
		t.Fatalf("forced resolution: %+v", got)
	}
	if n := e.countEvents(t, test.ID, types.EventImpression); n != 0 {
		t.Fatalf("forced resolution must not write, got %d events", n)
	}
}

func TestResolveVariant_RequiresSession(t *testing.T) {
	e := newEnv(t)
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	_, err := e.assign.ResolveVariant(context.Background(), test.ID, "", "")
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestResolveVariant_NoActiveTest(t *testing.T) {
	e := newEnv(t)
	draft := e.createDraft(t, "demo.myshopify.com", "111", 50, nil)

	got, err := e.assign.ResolveVariant(context.Background(), draft.ID, "sess-1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("draft test must resolve to nil, got %+v", got)
	}
}

func TestGetAssignment_DefaultsWithoutTest(t *testing.T) {
	e := newEnv(t)

	state, err := e.assign.GetAssignment(context.Background(), "demo.myshopify.com", "999", nil, "")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if state.TestID != nil || state.ActiveCase != types.CaseBase {
		t.Fatalf("no-test assignment: %+v", state)
	}
}

func TestGetAssignment_FollowsRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	state, err := e.assign.GetAssignment(ctx, "demo.myshopify.com", "111", nil, "")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if state.TestID == nil || *state.TestID != test.ID {
		t.Fatalf("test id: %+v", state)
	}
	if state.ActiveCase != types.CaseBase || state.VariantCase != types.VariantTagA {
		t.Fatalf("pre-rotation assignment: %+v", state)
	}

	if _, err := e.rotation.Rotate(ctx, test.ID, types.TriggerManual); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	state, err = e.assign.GetAssignment(ctx, "demo.myshopify.com", "111", nil, "")
	if err != nil {
		t.Fatalf("get assignment after rotation: %v", err)
	}
	if state.ActiveCase != types.CaseTest || state.VariantCase != types.VariantTagB {
		t.Fatalf("post-rotation assignment: %+v", state)
	}
}

func TestGetAssignment_CaseAndVariantAgreeWhenSlotLeadsTest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	// Flip the slot without touching the test row, as if a rotation landed
	// the slot update but the test save is still in flight.
	slot, err := e.slotRepo.Get(ctx, nil, "demo.myshopify.com", "111", nil)
	if err != nil || slot == nil {
		t.Fatalf("rotation slot missing: %v", err)
	}
	if err := e.slotRepo.ForceCase(ctx, nil, slot.ID, types.SlotTest, time.Now().UTC()); err != nil {
		t.Fatalf("force case: %v", err)
	}
	if stale := e.reload(t, test.ID); stale.CurrentCase != types.CaseBase {
		t.Fatalf("test row should still read BASE, got %s", stale.CurrentCase)
	}

	state, err := e.assign.GetAssignment(ctx, "demo.myshopify.com", "111", nil, "")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if state.ActiveCase != types.CaseTest || state.VariantCase != types.VariantTagB {
		t.Fatalf("case and variant must both follow the slot: %+v", state)
	}
}

func TestGetAssignment_MatchesGIDProductIDs(t *testing.T) {
	e := newEnv(t)
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	state, err := e.assign.GetAssignment(context.Background(), "demo.myshopify.com", "gid://shopify/Product/111", nil, "")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if state.TestID == nil || *state.TestID != test.ID {
		t.Fatalf("gid lookup missed the stored numeric id: %+v", state)
	}
}

func TestGetAssignment_ForceNeverWrites(t *testing.T) {
	e := newEnv(t)
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	state, err := e.assign.GetAssignment(context.Background(), "demo.myshopify.com", "111", nil, types.VariantTagB)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if !state.Forced || state.VariantCase != types.VariantTagB || state.ActiveCase != types.CaseTest {
		t.Fatalf("forced assignment: %+v", state)
	}
	if n := e.countEvents(t, test.ID, types.EventImpression); n != 0 {
		t.Fatalf("force must not write, got %d events", n)
	}
}
