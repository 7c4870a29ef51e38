package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

func (e *env) makeDue(t *testing.T, testID uuid.UUID) {
	t.Helper()
	test := e.reload(t, testID)
	past := time.Now().UTC().Add(-time.Minute)
	test.NextRotationAt = &past
	if err := e.testRepo.Save(context.Background(), nil, test); err != nil {
		t.Fatalf("backdate rotation: %v", err)
	}
}

func TestRunDue_RotatesDueTests(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	test := e.startTest(t, "demo.myshopify.com", "111", 50, intPtr(1))
	e.makeDue(t, test.ID)

	summary, err := e.scheduler.RunDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if summary.Processed != 1 || summary.Successful != 1 || summary.Failed != 0 {
		t.Fatalf("summary: %+v", summary)
	}

	stored := e.reload(t, test.ID)
	if stored.CurrentCase != types.CaseTest {
		t.Fatalf("due test not rotated: %s", stored.CurrentCase)
	}
	if stored.NextRotationAt == nil || !stored.NextRotationAt.After(time.Now().UTC()) {
		t.Fatalf("next rotation not rescheduled: %v", stored.NextRotationAt)
	}

	events, err := e.rotation.ListRotations(ctx, test.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("rotation events: %v %v", events, err)
	}
	if events[0].TriggeredBy != types.TriggerCron {
		t.Fatalf("trigger = %s, want CRON", events[0].TriggeredBy)
	}
}

func TestRunDue_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	healthy := e.startTest(t, "demo.myshopify.com", "111", 50, intPtr(1))
	broken := e.startTest(t, "demo.myshopify.com", "222", 50, intPtr(1))
	e.makeDue(t, healthy.ID)
	e.makeDue(t, broken.ID)
	e.media.failFor["222"] = errors.New("platform 500")

	summary, err := e.scheduler.RunDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if summary.Processed != 2 || summary.Successful != 1 || summary.Failed != 1 {
		t.Fatalf("summary: %+v", summary)
	}

	if got := e.reload(t, healthy.ID).CurrentCase; got != types.CaseTest {
		t.Fatalf("healthy test not rotated: %s", got)
	}
	if got := e.reload(t, broken.ID).CurrentCase; got != types.CaseBase {
		t.Fatalf("broken test must stay on BASE: %s", got)
	}

	for _, r := range summary.Results {
		if r.TestID == broken.ID && r.Error == "" {
			t.Fatalf("failed outcome missing its error: %+v", r)
		}
	}
}

func TestRunDue_ManualOnlyTestsNeverDue(t *testing.T) {
	e := newEnv(t)
	e.startTest(t, "demo.myshopify.com", "111", 50, nil)

	summary, err := e.scheduler.RunDue(context.Background(), time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("manual-only test picked up by cron: %+v", summary)
	}
}

func TestRunDue_FutureScheduleNotDue(t *testing.T) {
	e := newEnv(t)
	e.startTest(t, "demo.myshopify.com", "111", 50, intPtr(24))

	summary, err := e.scheduler.RunDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("future rotation picked up early: %+v", summary)
	}
}
