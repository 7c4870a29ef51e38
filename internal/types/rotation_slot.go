package types

import (
	"time"

	"github.com/google/uuid"
)

// SlotCase is the rotation-store label for what a slot currently displays.
// It is deliberately distinct from the per-test A/B tags: a slot outlives any
// single test, and the tag mapping (CONTROL->A, TEST->B) goes through the
// test's variant records.
type SlotCase string

const (
	SlotControl SlotCase = "CONTROL"
	SlotTest    SlotCase = "TEST"
)

func (c SlotCase) Toggle() SlotCase {
	if c == SlotControl {
		return SlotTest
	}
	return SlotControl
}

// RotationSlot is the durable "what is active" unit, keyed by shop + product
// and optionally a single product variant. The variant scope is stored as an
// empty string rather than NULL for a product-wide slot: both Postgres and
// sqlite treat NULLs as distinct in unique indexes, which would let racing
// creators insert duplicate product-wide rows past idx_slot_key.
type RotationSlot struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Shop             string    `gorm:"column:shop;not null;index:idx_slot_key,unique,priority:1" json:"shop"`
	ProductID        string    `gorm:"column:product_id;not null;index:idx_slot_key,unique,priority:2" json:"product_id"`
	ShopifyVariantID string    `gorm:"column:shopify_variant_id;not null;default:'';index:idx_slot_key,unique,priority:3" json:"shopify_variant_id,omitempty"`

	ActiveCase SlotCase `gorm:"column:active_case;not null;default:'CONTROL'" json:"active_case"`
	Version    int64    `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RotationSlot) TableName() string { return "rotation_slot" }

// SlotRotation is one transition in a slot's history. The history answers
// "what was active at time T" for late event attribution.
type SlotRotation struct {
	ID     uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SlotID uuid.UUID     `gorm:"type:uuid;not null;index:idx_slot_rotation_time,priority:1" json:"slot_id"`
	Slot   *RotationSlot `gorm:"constraint:OnDelete:CASCADE;foreignKey:SlotID;references:ID" json:"slot,omitempty"`

	FromCase  SlotCase  `gorm:"column:from_case;not null" json:"from_case"`
	ToCase    SlotCase  `gorm:"column:to_case;not null" json:"to_case"`
	RotatedAt time.Time `gorm:"column:rotated_at;not null;index:idx_slot_rotation_time,priority:2" json:"rotated_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SlotRotation) TableName() string { return "slot_rotation" }

// ActiveCaseAt walks an ascending rotation history and returns the case that
// was active at t. Before the first recorded transition the slot is CONTROL.
func ActiveCaseAt(history []*SlotRotation, t time.Time) SlotCase {
	active := SlotControl
	for _, r := range history {
		if r.RotatedAt.After(t) {
			break
		}
		active = r.ToCase
	}
	return active
}
