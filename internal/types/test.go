package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusRunning   TestStatus = "RUNNING"
	TestStatusPaused    TestStatus = "PAUSED"
	TestStatusCompleted TestStatus = "COMPLETED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

type TestCase string

const (
	CaseBase TestCase = "BASE"
	CaseTest TestCase = "TEST"
)

func (c TestCase) Toggle() TestCase {
	if c == CaseBase {
		return CaseTest
	}
	return CaseBase
}

type VariantScope string

const (
	ScopeProduct VariantScope = "PRODUCT"
	ScopeVariant VariantScope = "VARIANT"
)

// Test is one image experiment on a single product. At most one test per
// (shop, product_id) may be RUNNING or PAUSED at a time; the partial unique
// index idx_test_active_product backs the service-level conflict check so a
// race between two Start calls cannot activate both.
type Test struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Shop      string    `gorm:"column:shop;not null;index:idx_test_shop_product,priority:1;index:idx_test_active_product,unique,priority:1,where:(status = 'RUNNING' OR status = 'PAUSED') AND deleted_at IS NULL" json:"shop"`
	ProductID string    `gorm:"column:product_id;not null;index:idx_test_shop_product,priority:2;index:idx_test_active_product,unique,priority:2" json:"product_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`

	Status      TestStatus `gorm:"column:status;not null;default:'DRAFT'" json:"status"`
	CurrentCase TestCase   `gorm:"column:current_case;not null;default:'BASE'" json:"current_case"`

	// TrafficSplit is the percentage of sessions assigned to variant A (BASE).
	TrafficSplit int `gorm:"column:traffic_split;not null;default:50" json:"traffic_split"`

	// RotationHours nil means manual-only rotation.
	RotationHours  *int       `gorm:"column:rotation_hours" json:"rotation_hours,omitempty"`
	NextRotationAt *time.Time `gorm:"column:next_rotation_at;index" json:"next_rotation_at,omitempty"`

	StartDate *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`

	VariantScope VariantScope `gorm:"column:variant_scope;not null;default:'PRODUCT'" json:"variant_scope"`

	// Version guards the rotate compare-and-swap. Incremented on every case flip.
	Version int64 `gorm:"column:version;not null;default:0" json:"version"`

	Variants []TestVariant `gorm:"foreignKey:TestID;references:ID" json:"variants,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Test) TableName() string { return "test" }

// IsActive reports whether the test occupies its product's experiment slot.
func (t *Test) IsActive() bool {
	return t.Status == TestStatusRunning || t.Status == TestStatusPaused
}
