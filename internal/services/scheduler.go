package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

const schedulerConcurrency = 4

type RotationOutcome struct {
	TestID  uuid.UUID `json:"test_id"`
	Name    string    `json:"name"`
	Success bool      `json:"success"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type CronSummary struct {
	Processed  int               `json:"processed"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	DurationMs int64             `json:"duration_ms"`
	Results    []RotationOutcome `json:"results"`
}

type SchedulerService interface {
	// RunDue rotates every due test. Each test's outcome is independent; one
	// failure never aborts the batch, and re-running inside the same due
	// window is safe (the rotation CAS makes the repeat a no-op).
	RunDue(ctx context.Context, now time.Time) (*CronSummary, error)
}

type schedulerService struct {
	db       *gorm.DB
	log      *logger.Logger
	testRepo repos.TestRepo
	rotation RotationService
}

func NewSchedulerService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, rotation RotationService) SchedulerService {
	return &schedulerService{
		db:       db,
		log:      log.With("service", "SchedulerService"),
		testRepo: testRepo,
		rotation: rotation,
	}
}

func (s *schedulerService) RunDue(ctx context.Context, now time.Time) (*CronSummary, error) {
	started := time.Now()
	due, err := s.testRepo.FindDue(ctx, nil, now)
	if err != nil {
		return nil, err
	}

	summary := &CronSummary{Processed: len(due), Results: make([]RotationOutcome, 0, len(due))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(schedulerConcurrency)
	for _, test := range due {
		g.Go(func() error {
			outcome := RotationOutcome{TestID: test.ID, Name: test.Name}
			_, rotErr := s.rotation.Rotate(gctx, test.ID, types.TriggerCron)
			switch {
			case rotErr == nil:
				outcome.Success = true
			case errors.Is(rotErr, ErrStaleRotation), errors.Is(rotErr, ErrRotationInProgress):
				// Another invocation already handled this window.
				outcome.Success = true
				outcome.Skipped = true
			default:
				outcome.Error = rotErr.Error()
				s.log.Warn("Cron rotation failed", "test_id", test.ID, "error", rotErr)
			}
			mu.Lock()
			summary.Results = append(summary.Results, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range summary.Results {
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.DurationMs = time.Since(started).Milliseconds()
	s.log.Info("Cron rotation pass finished", "processed", summary.Processed, "successful", summary.Successful, "failed", summary.Failed)
	return summary, nil
}
