package repos

import (
  "context"
  "errors"

  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type TrackingEventRepo interface {
  // InsertIgnore persists the event unless the (test_id, session_id,
  // event_type) key already exists; the bool reports whether a row landed.
  InsertIgnore(ctx context.Context, tx *gorm.DB, event *types.TrackingEvent) (bool, error)
  EarliestBySession(ctx context.Context, tx *gorm.DB, testID uuid.UUID, sessionID string) (*types.TrackingEvent, error)
  GetBySessionAndType(ctx context.Context, tx *gorm.DB, testID uuid.UUID, sessionID string, eventType types.EventType) (*types.TrackingEvent, error)
  FindPurchaseByOrderID(ctx context.Context, tx *gorm.DB, testID uuid.UUID, orderID string, forUpdate bool) (*types.TrackingEvent, error)
  Save(ctx context.Context, tx *gorm.DB, event *types.TrackingEvent) error
  ListByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.TrackingEvent, error)
}

type trackingEventRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTrackingEventRepo(db *gorm.DB, baseLog *logger.Logger) TrackingEventRepo {
  return &trackingEventRepo{db: db, log: baseLog.With("repo", "TrackingEventRepo")}
}

func (r *trackingEventRepo) conn(tx *gorm.DB) *gorm.DB {
  if tx != nil {
    return tx
  }
  return r.db
}

func (r *trackingEventRepo) InsertIgnore(ctx context.Context, tx *gorm.DB, event *types.TrackingEvent) (bool, error) {
  if event.ID == uuid.Nil {
    event.ID = uuid.New()
  }
  res := r.conn(tx).WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "test_id"}, {Name: "session_id"}, {Name: "event_type"}},
      DoNothing: true,
    }).
    Create(event)
  if res.Error != nil {
    return false, res.Error
  }
  return res.RowsAffected == 1, nil
}

func (r *trackingEventRepo) EarliestBySession(ctx context.Context, tx *gorm.DB, testID uuid.UUID, sessionID string) (*types.TrackingEvent, error) {
  var event types.TrackingEvent
  err := r.conn(tx).WithContext(ctx).
    Where("test_id = ? AND session_id = ?", testID, sessionID).
    Order("created_at ASC").
    First(&event).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &event, nil
}

func (r *trackingEventRepo) GetBySessionAndType(ctx context.Context, tx *gorm.DB, testID uuid.UUID, sessionID string, eventType types.EventType) (*types.TrackingEvent, error) {
  var event types.TrackingEvent
  err := r.conn(tx).WithContext(ctx).
    Where("test_id = ? AND session_id = ? AND event_type = ?", testID, sessionID, eventType).
    First(&event).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &event, nil
}

// FindPurchaseByOrderID looks an existing PURCHASE up by the order id carried
// in the jsonb metadata. forUpdate takes a row lock so the webhook/pixel race
// cannot enrich and insert at the same time.
func (r *trackingEventRepo) FindPurchaseByOrderID(ctx context.Context, tx *gorm.DB, testID uuid.UUID, orderID string, forUpdate bool) (*types.TrackingEvent, error) {
  q := r.conn(tx).WithContext(ctx).
    Where("test_id = ? AND event_type = ?", testID, types.EventPurchase).
    Where(datatypes.JSONQuery("metadata").Equals(orderID, "orderId"))
  if forUpdate && q.Dialector.Name() == "postgres" {
    q = q.Clauses(clause.Locking{Strength: "UPDATE"})
  }
  var event types.TrackingEvent
  err := q.First(&event).Error
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &event, nil
}

func (r *trackingEventRepo) Save(ctx context.Context, tx *gorm.DB, event *types.TrackingEvent) error {
  return r.conn(tx).WithContext(ctx).Save(event).Error
}

func (r *trackingEventRepo) ListByTestID(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]*types.TrackingEvent, error) {
  var results []*types.TrackingEvent
  if err := r.conn(tx).WithContext(ctx).
    Where("test_id = ?", testID).
    Order("created_at ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
