package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventImpression EventType = "IMPRESSION"
	EventAddToCart  EventType = "ADD_TO_CART"
	EventPurchase   EventType = "PURCHASE"
)

func (e EventType) Valid() bool {
	switch e {
	case EventImpression, EventAddToCart, EventPurchase:
		return true
	}
	return false
}

type EventSource string

const (
	SourcePixel   EventSource = "pixel"
	SourceWebhook EventSource = "webhook"
)

// EventMetadata is the typed payload attached to an event. The fields the
// dedup/enrichment logic reads are explicit; anything else a caller sends
// survives round-trips through Extra.
type EventMetadata struct {
	OrderID           string      `json:"orderId,omitempty"`
	OrderNumber       string      `json:"orderNumber,omitempty"`
	Source            EventSource `json:"source,omitempty"`
	EnrichedByWebhook bool        `json:"enrichedByWebhook,omitempty"`
	OccurredAt        *time.Time  `json:"occurredAt,omitempty"`

	Extra map[string]any `json:"-"`
}

func (m EventMetadata) MarshalJSON() ([]byte, error) {
	type alias EventMetadata
	raw, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return raw, nil
	}
	merged := map[string]any{}
	for k, v := range m.Extra {
		merged[k] = v
	}
	var known map[string]any
	if err := json.Unmarshal(raw, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (m *EventMetadata) UnmarshalJSON(data []byte) error {
	type alias EventMetadata
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"orderId", "orderNumber", "source", "enrichedByWebhook", "occurredAt"} {
		delete(all, k)
	}
	*m = EventMetadata(known)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

func (m EventMetadata) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (m *EventMetadata) Scan(value any) error {
	if value == nil {
		*m = EventMetadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", value)
	}
	if len(raw) == 0 {
		*m = EventMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// TrackingEvent is an immutable storefront fact. TestID is nil when the event
// arrived for a product without an active experiment. The composite unique
// index is what makes "first event wins" and dedup atomic at the storage
// layer; purchases are enriched in place, never duplicated.
type TrackingEvent struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TestID *uuid.UUID `gorm:"type:uuid;index:idx_event_dedup,unique,priority:1" json:"test_id,omitempty"`
	Test   *Test      `gorm:"constraint:OnDelete:CASCADE;foreignKey:TestID;references:ID" json:"test,omitempty"`

	SessionID string    `gorm:"column:session_id;not null;index:idx_event_dedup,unique,priority:2" json:"session_id"`
	EventType EventType `gorm:"column:event_type;not null;index:idx_event_dedup,unique,priority:3" json:"event_type"`

	Variant          string  `gorm:"column:variant;not null" json:"variant"` // A|B
	ProductID        string  `gorm:"column:product_id;not null;index" json:"product_id"`
	ShopifyVariantID *string `gorm:"column:shopify_variant_id" json:"shopify_variant_id,omitempty"`

	Revenue  *float64 `gorm:"column:revenue" json:"revenue,omitempty"`
	Quantity *int     `gorm:"column:quantity" json:"quantity,omitempty"`

	Metadata EventMetadata `gorm:"column:metadata;type:jsonb" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (TrackingEvent) TableName() string { return "tracking_event" }
