package handlers

import (
  "io"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
  "github.com/pixelsplit/pixelsplit-backend/internal/shopify"
)

type WebhookHandler struct {
  log           *logger.Logger
  ingestSvc     services.IngestService
  webhookSecret string
}

func NewWebhookHandler(log *logger.Logger, ingestSvc services.IngestService, webhookSecret string) *WebhookHandler {
  return &WebhookHandler{
    log:           log.With("handler", "WebhookHandler"),
    ingestSvc:     ingestSvc,
    webhookSecret: webhookSecret,
  }
}

// POST /webhooks/orders/paid
// Shopify retries webhooks on non-2xx, so everything after HMAC verification
// answers 200: a processing failure here is logged and retried by the next
// delivery, and an unattributable order is simply not an experiment order.
func (h *WebhookHandler) OrdersPaid(c *gin.Context) {
  body, err := io.ReadAll(c.Request.Body)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "unreadable_body", err)
    return
  }

  hmacHeader := c.GetHeader("X-Shopify-Hmac-Sha256")
  if !shopify.VerifyWebhookHMAC(h.webhookSecret, body, hmacHeader) {
    h.log.Warn("Webhook HMAC verification failed")
    c.Status(http.StatusUnauthorized)
    return
  }

  shop := c.GetHeader("X-Shopify-Shop-Domain")
  order, err := shopify.ParseOrderWebhook(body)
  if err != nil {
    h.log.Warn("Unparseable order webhook", "shop", shop, "error", err)
    c.Status(http.StatusOK)
    return
  }

  result, err := h.ingestSvc.ProcessOrderPaid(c.Request.Context(), shop, order)
  if err != nil {
    h.log.Error("Order webhook processing failed", "shop", shop, "order_id", order.ID, "error", err)
    c.Status(http.StatusOK)
    return
  }
  RespondOK(c, gin.H{"success": true, "result": result})
}
