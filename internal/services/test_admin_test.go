package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

func TestCreate_ValidatesInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	base := CreateTestInput{
		Shop:         "demo.myshopify.com",
		ProductID:    "111",
		Name:         "Hero image test",
		TrafficSplit: 50,
		Variants: []VariantInput{
			{Variant: types.VariantTagA, ImageURLs: []string{"https://cdn.example.com/a1.jpg"}},
			{Variant: types.VariantTagB, ImageURLs: []string{"https://cdn.example.com/b1.jpg"}},
		},
	}

	in := base
	in.Name = ""
	if _, err := e.admin.Create(ctx, in); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing name: %v", err)
	}

	in = base
	in.TrafficSplit = 101
	if _, err := e.admin.Create(ctx, in); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("split out of range: %v", err)
	}

	in = base
	hours := 0
	in.RotationHours = &hours
	if _, err := e.admin.Create(ctx, in); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("zero rotation hours: %v", err)
	}

	in = base
	in.Variants = []VariantInput{{Variant: "C", ImageURLs: []string{"https://cdn.example.com/c.jpg"}}}
	if _, err := e.admin.Create(ctx, in); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("bad variant tag: %v", err)
	}

	in = base
	in.Variants = []VariantInput{{Variant: types.VariantTagA}}
	if _, err := e.admin.Create(ctx, in); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("variant without images: %v", err)
	}
}

func TestCreate_StartsAsDraft(t *testing.T) {
	e := newEnv(t)
	test := e.createDraft(t, "demo.myshopify.com", "111", 50, nil)

	if test.Status != types.TestStatusDraft || test.CurrentCase != types.CaseBase {
		t.Fatalf("new test: status=%s case=%s", test.Status, test.CurrentCase)
	}
	if len(test.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(test.Variants))
	}
}

func TestCreate_RejectsProductWithLiveTest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	_, err := e.admin.Create(ctx, CreateTestInput{
		Shop:         "demo.myshopify.com",
		ProductID:    "111",
		Name:         "Second test",
		TrafficSplit: 50,
	})
	if !errors.Is(err, ErrTestConflict) {
		t.Fatalf("expected ErrTestConflict, got %v", err)
	}
}

func TestListByShop_RequiresShop(t *testing.T) {
	e := newEnv(t)
	if _, err := e.admin.ListByShop(context.Background(), ""); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestListByShop_ScopesToShop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createDraft(t, "alpha.myshopify.com", "111", 50, nil)
	e.createDraft(t, "beta.myshopify.com", "222", 50, nil)

	tests, err := e.admin.ListByShop(ctx, "alpha.myshopify.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tests) != 1 || tests[0].Shop != "alpha.myshopify.com" {
		t.Fatalf("list: %+v", tests)
	}
}

func TestReplaceVariants_SwapsImageSets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.createDraft(t, "demo.myshopify.com", "111", 50, nil)

	updated, err := e.admin.ReplaceVariants(ctx, test.ID, []VariantInput{
		{Variant: types.VariantTagA, ImageURLs: []string{"https://cdn.example.com/new-a.jpg"}},
		{Variant: types.VariantTagB, ImageURLs: []string{"https://cdn.example.com/new-b.jpg"}},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(updated.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(updated.Variants))
	}
	for _, v := range updated.Variants {
		urls, err := v.ImageList()
		if err != nil || len(urls) != 1 {
			t.Fatalf("variant %s images: %v %v", v.Variant, urls, err)
		}
	}
}

func TestArchive_OnlyCompletedTests(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	if _, err := e.admin.Archive(ctx, test.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("archiving a running test: %v", err)
	}
	if _, err := e.rotation.Complete(ctx, test.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	archived, err := e.admin.Archive(ctx, test.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != types.TestStatusArchived {
		t.Fatalf("status = %s, want ARCHIVED", archived.Status)
	}
}

func TestReplaceVariants_RejectsRunningTest(t *testing.T) {
	e := newEnv(t)
	test := e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	_, err := e.admin.ReplaceVariants(context.Background(), test.ID, []VariantInput{
		{Variant: types.VariantTagA, ImageURLs: []string{"https://cdn.example.com/x.jpg"}},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
