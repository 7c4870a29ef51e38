package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VariantTagA = "A" // control image set (BASE)
	VariantTagB = "B" // challenger image set (TEST)
)

// TestVariant holds one of the two image sets of a test. For VARIANT-scoped
// tests the records are grouped by shopify_variant_id and a group is only
// usable when it contains both an A and a B row.
type TestVariant struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID uuid.UUID `gorm:"type:uuid;not null;index:idx_test_variant_tag,priority:1" json:"test_id"`
	Test   *Test     `gorm:"constraint:OnDelete:CASCADE;foreignKey:TestID;references:ID" json:"test,omitempty"`

	Variant          string         `gorm:"column:variant;not null;index:idx_test_variant_tag,priority:2" json:"variant"` // A|B
	ImageURLs        datatypes.JSON `gorm:"column:image_urls;type:jsonb;not null" json:"image_urls"`                      // []string, display order
	ShopifyVariantID *string        `gorm:"column:shopify_variant_id;index:idx_test_variant_tag,priority:3" json:"shopify_variant_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TestVariant) TableName() string { return "test_variant" }

func (v *TestVariant) ImageList() ([]string, error) {
	var urls []string
	if len(v.ImageURLs) == 0 {
		return urls, nil
	}
	if err := json.Unmarshal(v.ImageURLs, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

func ImageURLsJSON(urls []string) (datatypes.JSON, error) {
	raw, err := json.Marshal(urls)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
