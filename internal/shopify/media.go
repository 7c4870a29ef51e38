package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
)

// MediaSwapper is the commerce-platform collaborator invoked during rotate,
// pause and complete. Implementations must be idempotent under caller retry:
// swapping to an image set the product already shows is a no-op.
type MediaSwapper interface {
	SwapProductMedia(ctx context.Context, shop, productID string, shopifyVariantID *string, imageURLs []string) error
}

// TokenLookup resolves the Admin API access token for a shop.
type TokenLookup func(shop string) (string, error)

// AdminClient swaps product images through the Shopify Admin REST API.
type AdminClient struct {
	log        *logger.Logger
	httpClient *http.Client
	apiVersion string
	tokens     TokenLookup
}

func NewAdminClient(log *logger.Logger, apiVersion string, tokens TokenLookup) *AdminClient {
	if apiVersion == "" {
		apiVersion = "2024-10"
	}
	return &AdminClient{
		log:        log.With("service", "ShopifyAdminClient"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiVersion: apiVersion,
		tokens:     tokens,
	}
}

type productImagePayload struct {
	Src string `json:"src"`
	// VariantIDs scopes an image to specific product variants.
	VariantIDs []int64 `json:"variant_ids,omitempty"`
}

type productUpdatePayload struct {
	Product struct {
		ID     int64                 `json:"id"`
		Images []productImagePayload `json:"images"`
	} `json:"product"`
}

// SwapProductMedia replaces the product's displayed images with imageURLs.
// The PUT with a full image list is idempotent from the caller's retry
// perspective; repeating a successful swap does not duplicate media.
func (c *AdminClient) SwapProductMedia(ctx context.Context, shop, productID string, shopifyVariantID *string, imageURLs []string) error {
	token, err := c.tokens(shop)
	if err != nil {
		return fmt.Errorf("resolve admin token for %s: %w", shop, err)
	}

	numericID, err := NumericID(productID)
	if err != nil {
		return fmt.Errorf("parse product id %q: %w", productID, err)
	}

	var payload productUpdatePayload
	payload.Product.ID = numericID
	for _, url := range imageURLs {
		img := productImagePayload{Src: url}
		if shopifyVariantID != nil {
			if vid, vErr := NumericID(*shopifyVariantID); vErr == nil {
				img.VariantIDs = []int64{vid}
			}
		}
		payload.Product.Images = append(payload.Product.Images, img)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/products/%d.json", shop, c.apiVersion, numericID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify product update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn("Shopify media swap rejected", "shop", shop, "product_id", productID, "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("shopify product update returned %d", resp.StatusCode)
	}
	return nil
}
