package repos

import (
  "context"
  "errors"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type RotationSlotRepo interface {
  GetOrCreate(ctx context.Context, tx *gorm.DB, shop, productID string, shopifyVariantID *string) (*types.RotationSlot, error)
  Get(ctx context.Context, tx *gorm.DB, shop, productID string, shopifyVariantID *string) (*types.RotationSlot, error)
  CompareAndSwapCase(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, fromCase, toCase types.SlotCase, version int64, at time.Time) (bool, error)
  ForceCase(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, toCase types.SlotCase, at time.Time) error
  HistoryAsc(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) ([]*types.SlotRotation, error)
}

type rotationSlotRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRotationSlotRepo(db *gorm.DB, baseLog *logger.Logger) RotationSlotRepo {
  return &rotationSlotRepo{db: db, log: baseLog.With("repo", "RotationSlotRepo")}
}

func (r *rotationSlotRepo) conn(tx *gorm.DB) *gorm.DB {
  if tx != nil {
    return tx
  }
  return r.db
}

// slotScope maps the service-facing nil ("product-wide") to the stored
// sentinel. The column is non-null so idx_slot_key dedupes product-wide rows.
func slotScope(shopifyVariantID *string) string {
  if shopifyVariantID == nil {
    return ""
  }
  return *shopifyVariantID
}

func (r *rotationSlotRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, shop, productID string, shopifyVariantID *string) (*types.RotationSlot, error) {
  existing, err := r.Get(ctx, tx, shop, productID, shopifyVariantID)
  if err != nil {
    return nil, err
  }
  if existing != nil {
    return existing, nil
  }
  slot := &types.RotationSlot{
    ID:               uuid.New(),
    Shop:             shop,
    ProductID:        productID,
    ShopifyVariantID: slotScope(shopifyVariantID),
    ActiveCase:       types.SlotControl,
  }
  if err := r.conn(tx).WithContext(ctx).
    Clauses(clause.OnConflict{DoNothing: true}).
    Create(slot).Error; err != nil {
    return nil, err
  }
  // A concurrent creator may have won the conflict; read back the row that
  // actually landed.
  return r.Get(ctx, tx, shop, productID, shopifyVariantID)
}

func (r *rotationSlotRepo) Get(ctx context.Context, tx *gorm.DB, shop, productID string, shopifyVariantID *string) (*types.RotationSlot, error) {
  q := r.conn(tx).WithContext(ctx).
    Where("shop = ? AND product_id = ? AND shopify_variant_id = ?", shop, productID, slotScope(shopifyVariantID))
  var slot types.RotationSlot
  err := q.First(&slot).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &slot, nil
}

// CompareAndSwapCase flips the slot's active case and appends the history row
// only when the expected case and version still hold.
func (r *rotationSlotRepo) CompareAndSwapCase(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, fromCase, toCase types.SlotCase, version int64, at time.Time) (bool, error) {
  conn := r.conn(tx).WithContext(ctx)
  res := conn.Model(&types.RotationSlot{}).
    Where("id = ? AND active_case = ? AND version = ?", slotID, fromCase, version).
    Updates(map[string]any{
      "active_case": toCase,
      "version":     version + 1,
      "updated_at":  time.Now().UTC(),
    })
  if res.Error != nil {
    return false, res.Error
  }
  if res.RowsAffected == 0 {
    return false, nil
  }
  rotation := &types.SlotRotation{
    ID:        uuid.New(),
    SlotID:    slotID,
    FromCase:  fromCase,
    ToCase:    toCase,
    RotatedAt: at,
  }
  if err := conn.Create(rotation).Error; err != nil {
    return false, err
  }
  return true, nil
}

// ForceCase sets the slot's case unconditionally (pause/complete restore).
// A history row is appended only when the case actually changed.
func (r *rotationSlotRepo) ForceCase(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, toCase types.SlotCase, at time.Time) error {
  conn := r.conn(tx).WithContext(ctx)
  var slot types.RotationSlot
  if err := conn.Where("id = ?", slotID).First(&slot).Error; err != nil {
    return err
  }
  if slot.ActiveCase == toCase {
    return nil
  }
  res := conn.Model(&types.RotationSlot{}).
    Where("id = ?", slotID).
    Updates(map[string]any{
      "active_case": toCase,
      "version":     gorm.Expr("version + 1"),
      "updated_at":  time.Now().UTC(),
    })
  if res.Error != nil {
    return res.Error
  }
  rotation := &types.SlotRotation{
    ID:        uuid.New(),
    SlotID:    slotID,
    FromCase:  slot.ActiveCase,
    ToCase:    toCase,
    RotatedAt: at,
  }
  return conn.Create(rotation).Error
}

func (r *rotationSlotRepo) HistoryAsc(ctx context.Context, tx *gorm.DB, slotID uuid.UUID) ([]*types.SlotRotation, error) {
  var results []*types.SlotRotation
  if err := r.conn(tx).WithContext(ctx).
    Where("slot_id = ?", slotID).
    Order("rotated_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
