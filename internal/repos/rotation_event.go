package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type RotationEventRepo interface {
  Create(ctx context.Context, tx *gorm.DB, event *types.RotationEvent) error
  ListByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.RotationEvent, error)
}

type rotationEventRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRotationEventRepo(db *gorm.DB, baseLog *logger.Logger) RotationEventRepo {
  return &rotationEventRepo{db: db, log: baseLog.With("repo", "RotationEventRepo")}
}

func (r *rotationEventRepo) conn(tx *gorm.DB) *gorm.DB {
  if tx != nil {
    return tx
  }
  return r.db
}

func (r *rotationEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.RotationEvent) error {
  if event.ID == uuid.Nil {
    event.ID = uuid.New()
  }
  return r.conn(tx).WithContext(ctx).Create(event).Error
}

func (r *rotationEventRepo) ListByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.RotationEvent, error) {
  var results []*types.RotationEvent
  if err := r.conn(tx).WithContext(ctx).
    Where("test_id = ?", testID).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
