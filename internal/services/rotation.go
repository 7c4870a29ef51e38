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

const rotationLockTTL = 30 * time.Second

type RotationService interface {
	Start(ctx context.Context, testID uuid.UUID) (*types.Test, error)
	Rotate(ctx context.Context, testID uuid.UUID, trigger types.RotationTrigger) (*types.Test, error)
	Pause(ctx context.Context, testID uuid.UUID) (*types.Test, error)
	Complete(ctx context.Context, testID uuid.UUID) (*types.Test, error)
	Delete(ctx context.Context, testID uuid.UUID) error
	ListRotations(ctx context.Context, testID uuid.UUID) ([]*types.RotationEvent, error)
}

type rotationService struct {
	db          *gorm.DB
	log         *logger.Logger
	testRepo    repos.TestRepo
	slotRepo    repos.RotationSlotRepo
	rotEvtRepo  repos.RotationEventRepo
	media       shopify.MediaSwapper
	locks       *redisclient.Client
	assignments AssignmentService
}

func NewRotationService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, slotRepo repos.RotationSlotRepo, rotEvtRepo repos.RotationEventRepo, media shopify.MediaSwapper, locks *redisclient.Client, assignments AssignmentService) RotationService {
	return &rotationService{
		db:          db,
		log:         log.With("service", "RotationService"),
		testRepo:    testRepo,
		slotRepo:    slotRepo,
		rotEvtRepo:  rotEvtRepo,
		media:       media,
		locks:       locks,
		assignments: assignments,
	}
}

// Start moves DRAFT->RUNNING, or resumes a PAUSED test. The single-active-test
// guard runs here, before any state is touched.
func (s *rotationService) Start(ctx context.Context, testID uuid.UUID) (*types.Test, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	if test.Status != types.TestStatusDraft && test.Status != types.TestStatusPaused {
		return nil, fmt.Errorf("%w: cannot start test in status %s", ErrInvalidTransition, test.Status)
	}

	groups := usableGroups(test.Variants)
	if len(groups) == 0 {
		return nil, ErrIncompleteVariants
	}

	blocking, err := s.testRepo.GetActiveByShopProduct(ctx, nil, test.Shop, test.ProductID)
	if err != nil {
		return nil, fmt.Errorf("check product experiment slot: %w", err)
	}
	if blocking != nil && blocking.ID != test.ID {
		return nil, fmt.Errorf("%w: %q (%s)", ErrTestConflict, blocking.Name, blocking.ID)
	}

	now := time.Now().UTC()
	for _, g := range groups {
		slot, err := s.slotRepo.GetOrCreate(ctx, nil, test.Shop, test.ProductID, g.ScopeID)
		if err != nil {
			return nil, fmt.Errorf("ensure rotation slot: %w", err)
		}
		// A stale non-CONTROL slot would misattribute every event until the
		// first rotation; reset it before traffic starts flowing.
		if slot.ActiveCase != types.SlotControl {
			if err := s.slotRepo.ForceCase(ctx, nil, slot.ID, types.SlotControl, now); err != nil {
				return nil, fmt.Errorf("reset rotation slot: %w", err)
			}
		}
	}

	test.Status = types.TestStatusRunning
	test.CurrentCase = types.CaseBase
	if test.StartDate == nil {
		test.StartDate = &now
	}
	test.NextRotationAt = nextRotation(now, test.RotationHours)
	if err := s.testRepo.Save(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("save test: %w", err)
	}
	s.assignments.InvalidateAssignment(ctx, test)
	s.log.Info("Test started", "test_id", test.ID, "shop", test.Shop, "product_id", test.ProductID)
	return test, nil
}

// Rotate toggles BASE<->TEST. The external media swap must succeed before the
// state flip commits; the flip itself is a compare-and-swap so overlapping
// rotations (cron + manual) flip exactly once.
func (s *rotationService) Rotate(ctx context.Context, testID uuid.UUID, trigger types.RotationTrigger) (*types.Test, error) {
	release, acquired, err := s.locks.AcquireLock(ctx, "rotation:"+testID.String(), rotationLockTTL)
	if err != nil {
		s.log.Warn("Rotation lock unavailable, relying on CAS", "test_id", testID, "error", err)
	} else if !acquired {
		return nil, ErrRotationInProgress
	}
	defer release()

	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	if test.Status != types.TestStatusRunning {
		return nil, fmt.Errorf("%w: cannot rotate test in status %s", ErrInvalidTransition, test.Status)
	}

	fromCase := test.CurrentCase
	toCase := fromCase.Toggle()
	started := time.Now().UTC()

	if err := s.swapAllGroups(ctx, test, toCase); err != nil {
		s.recordRotation(ctx, test.ID, fromCase, toCase, trigger, false, err, started)
		return nil, fmt.Errorf("%w: %v", ErrMediaSwap, err)
	}

	now := time.Now().UTC()
	swapped, err := s.testRepo.CompareAndSwapCase(ctx, nil, test.ID, fromCase, toCase, test.Version, nextRotation(now, test.RotationHours))
	if err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	if !swapped {
		// A concurrent rotation won the CAS and already performed this flip
		// (both contenders toggle from the same case to the same target, so
		// the double swap was harmless).
		return nil, ErrStaleRotation
	}

	for _, g := range usableGroups(test.Variants) {
		slot, err := s.slotRepo.Get(ctx, nil, test.Shop, test.ProductID, g.ScopeID)
		if err != nil || slot == nil {
			s.log.Warn("Rotation slot missing during flip", "test_id", test.ID, "error", err)
			continue
		}
		flipped, err := s.slotRepo.CompareAndSwapCase(ctx, nil, slot.ID, slotCaseForTestCase(fromCase), slotCaseForTestCase(toCase), slot.Version, now)
		if err != nil {
			return nil, fmt.Errorf("flip rotation slot: %w", err)
		}
		if !flipped {
			s.log.Warn("Rotation slot already flipped", "test_id", test.ID, "slot_id", slot.ID)
		}
	}

	s.recordRotation(ctx, test.ID, fromCase, toCase, trigger, true, nil, started)

	test.CurrentCase = toCase
	test.Version++
	test.NextRotationAt = nextRotation(now, test.RotationHours)
	s.assignments.InvalidateAssignment(ctx, test)
	s.log.Info("Test rotated", "test_id", test.ID, "from", fromCase, "to", toCase, "trigger", trigger)
	return test, nil
}

// Pause forces the displayed images back to BASE whatever the current case
// is: a paused experiment must never keep running in front of shoppers.
func (s *rotationService) Pause(ctx context.Context, testID uuid.UUID) (*types.Test, error) {
	return s.deactivate(ctx, testID, types.TestStatusPaused)
}

// Complete restores BASE, stamps the end date and terminates the test.
func (s *rotationService) Complete(ctx context.Context, testID uuid.UUID) (*types.Test, error) {
	return s.deactivate(ctx, testID, types.TestStatusCompleted)
}

func (s *rotationService) deactivate(ctx context.Context, testID uuid.UUID, target types.TestStatus) (*types.Test, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	switch target {
	case types.TestStatusPaused:
		if test.Status != types.TestStatusRunning {
			return nil, fmt.Errorf("%w: cannot pause test in status %s", ErrInvalidTransition, test.Status)
		}
	case types.TestStatusCompleted:
		if test.Status != types.TestStatusRunning && test.Status != types.TestStatusPaused {
			return nil, fmt.Errorf("%w: cannot complete test in status %s", ErrInvalidTransition, test.Status)
		}
	}

	fromCase := test.CurrentCase
	started := time.Now().UTC()

	if err := s.swapAllGroups(ctx, test, types.CaseBase); err != nil {
		s.recordRotation(ctx, test.ID, fromCase, types.CaseBase, types.TriggerSystem, false, err, started)
		return nil, fmt.Errorf("%w: %v", ErrMediaSwap, err)
	}

	now := time.Now().UTC()
	for _, g := range usableGroups(test.Variants) {
		slot, err := s.slotRepo.Get(ctx, nil, test.Shop, test.ProductID, g.ScopeID)
		if err != nil || slot == nil {
			continue
		}
		if err := s.slotRepo.ForceCase(ctx, nil, slot.ID, types.SlotControl, now); err != nil {
			return nil, fmt.Errorf("restore rotation slot: %w", err)
		}
	}

	if fromCase != types.CaseBase {
		s.recordRotation(ctx, test.ID, fromCase, types.CaseBase, types.TriggerSystem, true, nil, started)
	}

	test.CurrentCase = types.CaseBase
	test.Status = target
	test.NextRotationAt = nil
	if target == types.TestStatusCompleted {
		test.EndDate = &now
	}
	if err := s.testRepo.Save(ctx, nil, test); err != nil {
		return nil, fmt.Errorf("save test: %w", err)
	}
	s.assignments.InvalidateAssignment(ctx, test)
	s.log.Info("Test deactivated", "test_id", test.ID, "status", target)
	return test, nil
}

// Delete removes the test with its variants, events and audit trail.
func (s *rotationService) Delete(ctx context.Context, testID uuid.UUID) error {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return ErrTestNotFound
	}
	if test.Status == types.TestStatusRunning {
		if _, err := s.Complete(ctx, testID); err != nil {
			return fmt.Errorf("complete before delete: %w", err)
		}
	}
	if err := s.testRepo.DeleteCascade(ctx, nil, testID); err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	s.assignments.InvalidateAssignment(ctx, test)
	return nil
}

func (s *rotationService) ListRotations(ctx context.Context, testID uuid.UUID) ([]*types.RotationEvent, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	return s.rotEvtRepo.ListByTestID(ctx, nil, testID)
}

// swapAllGroups pushes the target case's image set for every usable A/B group
// to the commerce platform. Any group failure aborts the whole transition.
func (s *rotationService) swapAllGroups(ctx context.Context, test *types.Test, target types.TestCase) error {
	for _, g := range usableGroups(test.Variants) {
		record := g.A
		if target == types.CaseTest {
			record = g.B
		}
		images, err := record.ImageList()
		if err != nil {
			return fmt.Errorf("decode image set for variant %s: %w", record.Variant, err)
		}
		if err := s.media.SwapProductMedia(ctx, test.Shop, test.ProductID, g.ScopeID, images); err != nil {
			return err
		}
	}
	return nil
}

func (s *rotationService) recordRotation(ctx context.Context, testID uuid.UUID, fromCase, toCase types.TestCase, trigger types.RotationTrigger, success bool, cause error, started time.Time) {
	event := &types.RotationEvent{
		TestID:      testID,
		FromCase:    fromCase,
		ToCase:      toCase,
		TriggeredBy: trigger,
		Success:     success,
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if cause != nil {
		msg := cause.Error()
		event.Error = &msg
	}
	if err := s.rotEvtRepo.Create(ctx, nil, event); err != nil {
		s.log.Error("Failed to record rotation event", "test_id", testID, "error", err)
	}
}

func nextRotation(from time.Time, rotationHours *int) *time.Time {
	if rotationHours == nil {
		return nil
	}
	next := from.Add(time.Duration(*rotationHours) * time.Hour)
	return &next
}
