package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
	"github.com/pixelsplit/pixelsplit-backend/internal/repos"
	"github.com/pixelsplit/pixelsplit-backend/internal/stats"
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// TestResults bundles the test with its freshly recomputed statistics. There
// are no persisted running totals: every read aggregates the current event
// set.
type TestResults struct {
	Test    *types.Test   `json:"test"`
	Summary stats.Summary `json:"summary"`
}

type ResultsService interface {
	GetResults(ctx context.Context, testID uuid.UUID) (*TestResults, error)
}

type resultsService struct {
	db        *gorm.DB
	log       *logger.Logger
	testRepo  repos.TestRepo
	eventRepo repos.TrackingEventRepo
}

func NewResultsService(db *gorm.DB, log *logger.Logger, testRepo repos.TestRepo, eventRepo repos.TrackingEventRepo) ResultsService {
	return &resultsService{
		db:        db,
		log:       log.With("service", "ResultsService"),
		testRepo:  testRepo,
		eventRepo: eventRepo,
	}
}

func (s *resultsService) GetResults(ctx context.Context, testID uuid.UUID) (*TestResults, error) {
	test, err := s.testRepo.GetByID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	events, err := s.eventRepo.ListByTestID(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return &TestResults{Test: test, Summary: stats.Summarize(events)}, nil
}
