package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type TestRepo interface {
  Create(ctx context.Context, tx *gorm.DB, test *types.Test) error
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Test, error)
  GetActiveByShopProduct(ctx context.Context, tx *gorm.DB, shop, productID string) (*types.Test, error)
  GetRunningByShopProduct(ctx context.Context, tx *gorm.DB, shop, productID string) (*types.Test, error)
  ListByShop(ctx context.Context, tx *gorm.DB, shop string) ([]*types.Test, error)
  Save(ctx context.Context, tx *gorm.DB, test *types.Test) error
  CompareAndSwapCase(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromCase, toCase types.TestCase, version int64, nextRotationAt *time.Time) (bool, error)
  FindDue(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Test, error)
  DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type testRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTestRepo(db *gorm.DB, baseLog *logger.Logger) TestRepo {
  return &testRepo{db: db, log: baseLog.With("repo", "TestRepo")}
}

func (r *testRepo) conn(tx *gorm.DB) *gorm.DB {
  if tx != nil {
    return tx
  }
  return r.db
}

func (r *testRepo) Create(ctx context.Context, tx *gorm.DB, test *types.Test) error {
  if test.ID == uuid.Nil {
    test.ID = uuid.New()
  }
  for i := range test.Variants {
    if test.Variants[i].ID == uuid.Nil {
      test.Variants[i].ID = uuid.New()
    }
    test.Variants[i].TestID = test.ID
  }
  return r.conn(tx).WithContext(ctx).Create(test).Error
}

func (r *testRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Test, error) {
  var test types.Test
  err := r.conn(tx).WithContext(ctx).
    Preload("Variants").
    Where("id = ?", id).
    First(&test).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &test, nil
}

// GetActiveByShopProduct returns the test occupying the product's experiment
// slot (RUNNING or PAUSED), nil when the slot is free.
func (r *testRepo) GetActiveByShopProduct(ctx context.Context, tx *gorm.DB, shop, productID string) (*types.Test, error) {
  var test types.Test
  err := r.conn(tx).WithContext(ctx).
    Preload("Variants").
    Where("shop = ? AND product_id = ? AND status IN ?", shop, productID, []types.TestStatus{types.TestStatusRunning, types.TestStatusPaused}).
    First(&test).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &test, nil
}

func (r *testRepo) GetRunningByShopProduct(ctx context.Context, tx *gorm.DB, shop, productID string) (*types.Test, error) {
  var test types.Test
  err := r.conn(tx).WithContext(ctx).
    Preload("Variants").
    Where("shop = ? AND product_id = ? AND status = ?", shop, productID, types.TestStatusRunning).
    First(&test).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &test, nil
}

func (r *testRepo) ListByShop(ctx context.Context, tx *gorm.DB, shop string) ([]*types.Test, error) {
  var results []*types.Test
  if err := r.conn(tx).WithContext(ctx).
    Preload("Variants").
    Where("shop = ?", shop).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *testRepo) Save(ctx context.Context, tx *gorm.DB, test *types.Test) error {
  return r.conn(tx).WithContext(ctx).
    Omit("Variants").
    Save(test).Error
}

// CompareAndSwapCase flips current_case only when both the expected case and
// the expected version still hold, so two racing rotations cannot both win.
func (r *testRepo) CompareAndSwapCase(ctx context.Context, tx *gorm.DB, id uuid.UUID, fromCase, toCase types.TestCase, version int64, nextRotationAt *time.Time) (bool, error) {
  res := r.conn(tx).WithContext(ctx).
    Model(&types.Test{}).
    Where("id = ? AND current_case = ? AND version = ? AND status = ?", id, fromCase, version, types.TestStatusRunning).
    Updates(map[string]any{
      "current_case":     toCase,
      "version":          version + 1,
      "next_rotation_at": nextRotationAt,
      "updated_at":       time.Now().UTC(),
    })
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected == 1, nil
}

func (r *testRepo) FindDue(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Test, error) {
  var results []*types.Test
  if err := r.conn(tx).WithContext(ctx).
    Preload("Variants").
    Where("status = ? AND rotation_hours IS NOT NULL AND next_rotation_at IS NOT NULL AND next_rotation_at <= ?", types.TestStatusRunning, now).
    Order("next_rotation_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

// DeleteCascade hard-deletes a test with its variants, events and audit rows.
// The FK cascades cover the child tables in Postgres; they are deleted
// explicitly anyway so the behavior holds on the sqlite test harness too.
func (r *testRepo) DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
  conn := r.conn(tx).WithContext(ctx)
  if err := conn.Unscoped().Where("test_id = ?", id).Delete(&types.TrackingEvent{}).Error; err != nil {
    return err
  }
  if err := conn.Unscoped().Where("test_id = ?", id).Delete(&types.RotationEvent{}).Error; err != nil {
    return err
  }
  if err := conn.Unscoped().Where("test_id = ?", id).Delete(&types.TestVariant{}).Error; err != nil {
    return err
  }
  return conn.Unscoped().Where("id = ?", id).Delete(&types.Test{}).Error
}
