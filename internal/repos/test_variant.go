package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type TestVariantRepo interface {
  CreateBatch(ctx context.Context, tx *gorm.DB, variants []*types.TestVariant) error
  GetByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.TestVariant, error)
  DeleteByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) error
}

type testVariantRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTestVariantRepo(db *gorm.DB, baseLog *logger.Logger) TestVariantRepo {
  return &testVariantRepo{db: db, log: baseLog.With("repo", "TestVariantRepo")}
}

func (r *testVariantRepo) conn(tx *gorm.DB) *gorm.DB {
  if tx != nil {
    return tx
  }
  return r.db
}

func (r *testVariantRepo) CreateBatch(ctx context.Context, tx *gorm.DB, variants []*types.TestVariant) error {
  if len(variants) == 0 {
    return nil
  }
  for _, v := range variants {
    if v.ID == uuid.Nil {
      v.ID = uuid.New()
    }
  }
  return r.conn(tx).WithContext(ctx).Create(&variants).Error
}

func (r *testVariantRepo) GetByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.TestVariant, error) {
  var results []*types.TestVariant
  if err := r.conn(tx).WithContext(ctx).
    Where("test_id = ?", testID).
    Order("variant ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *testVariantRepo) DeleteByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) error {
  return r.conn(tx).WithContext(ctx).
    Unscoped().
    Where("test_id = ?", testID).
    Delete(&types.TestVariant{}).Error
}
