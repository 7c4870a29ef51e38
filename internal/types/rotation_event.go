package types

import (
	"time"

	"github.com/google/uuid"
)

type RotationTrigger string

const (
	TriggerManual RotationTrigger = "MANUAL"
	TriggerCron   RotationTrigger = "CRON"
	TriggerSystem RotationTrigger = "SYSTEM"
)

// RotationEvent is the append-only audit row written for every rotation
// attempt, failed ones included.
type RotationEvent struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID uuid.UUID `gorm:"type:uuid;not null;index" json:"test_id"`
	Test   *Test     `gorm:"constraint:OnDelete:CASCADE;foreignKey:TestID;references:ID" json:"test,omitempty"`

	FromCase    TestCase        `gorm:"column:from_case;not null" json:"from_case"`
	ToCase      TestCase        `gorm:"column:to_case;not null" json:"to_case"`
	TriggeredBy RotationTrigger `gorm:"column:triggered_by;not null" json:"triggered_by"`
	Success     bool            `gorm:"column:success;not null" json:"success"`
	Error       *string         `gorm:"column:error" json:"error,omitempty"`
	DurationMs  int64           `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (RotationEvent) TableName() string { return "rotation_event" }
