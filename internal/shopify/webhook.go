package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// VerifyWebhookHMAC checks the X-Shopify-Hmac-Sha256 header against the raw
// request body. Shopify signs webhooks with HMAC-SHA256 over the body using
// the app's shared secret, base64-encoded.
func VerifyWebhookHMAC(secret string, body []byte, headerValue string) bool {
	if secret == "" || headerValue == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(headerValue))
}

// OrderWebhook is the subset of Shopify's orders/paid payload this service
// reads.
type OrderWebhook struct {
	ID             int64           `json:"id"`
	OrderNumber    int64           `json:"order_number"`
	TotalPrice     string          `json:"total_price"`
	Currency       string          `json:"currency"`
	LineItems      []OrderLineItem `json:"line_items"`
	NoteAttributes []NoteAttribute `json:"note_attributes"`
}

type OrderLineItem struct {
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func ParseOrderWebhook(body []byte) (*OrderWebhook, error) {
	var order OrderWebhook
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Attribute returns the named note attribute, or "" when absent. The
// storefront script stamps the cart with the test id and session id so the
// webhook can attribute the purchase.
func (o *OrderWebhook) Attribute(name string) string {
	for _, attr := range o.NoteAttributes {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

func (o *OrderWebhook) OrderIDString() string {
	return strconv.FormatInt(o.ID, 10)
}

// TotalRevenue parses the order total; malformed totals count as zero rather
// than failing attribution.
func (o *OrderWebhook) TotalRevenue() float64 {
	v, err := strconv.ParseFloat(o.TotalPrice, 64)
	if err != nil {
		return 0
	}
	return v
}

// TotalQuantity sums line item quantities.
func (o *OrderWebhook) TotalQuantity() int {
	total := 0
	for _, li := range o.LineItems {
		total += li.Quantity
	}
	return total
}
