package handlers

import (
  "errors"
  "net/http"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

type TrackingHandler struct {
  log       *logger.Logger
  ingestSvc services.IngestService
}

func NewTrackingHandler(log *logger.Logger, ingestSvc services.IngestService) *TrackingHandler {
  return &TrackingHandler{
    log:       log.With("handler", "TrackingHandler"),
    ingestSvc: ingestSvc,
  }
}

type trackRequest struct {
  Shop             string         `json:"shop"`
  TestID           string         `json:"testId,omitempty"`
  SessionID        string         `json:"sessionId"`
  EventType        string         `json:"eventType"`
  ProductID        string         `json:"productId"`
  ShopifyVariantID *string        `json:"shopifyVariantId,omitempty"`
  Variant          string         `json:"variant,omitempty"`
  Revenue          *float64       `json:"revenue,omitempty"`
  Quantity         *int           `json:"quantity,omitempty"`
  OrderID          string         `json:"orderId,omitempty"`
  OccurredAt       *time.Time     `json:"occurredAt,omitempty"`
  Metadata         map[string]any `json:"metadata,omitempty"`
}

type trackResponse struct {
  Success bool                   `json:"success"`
  Result  *services.IngestResult `json:"result,omitempty"`
}

// POST /api/track
// Public storefront ingress. Pages without an active experiment get a neutral
// success, never an error.
func (h *TrackingHandler) Track(c *gin.Context) {
  var req trackRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_json", err)
    return
  }

  in := services.IngestInput{
    Shop:             req.Shop,
    SessionID:        req.SessionID,
    EventType:        types.EventType(req.EventType),
    ProductID:        req.ProductID,
    ShopifyVariantID: req.ShopifyVariantID,
    Variant:          req.Variant,
    Revenue:          req.Revenue,
    Quantity:         req.Quantity,
    Source:           types.SourcePixel,
    OccurredAt:       req.OccurredAt,
    OrderID:          req.OrderID,
    Extra:            req.Metadata,
  }
  if req.TestID != "" {
    parsed, err := uuid.Parse(req.TestID)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_test_id", err)
      return
    }
    in.TestID = &parsed
  }

  result, err := h.ingestSvc.Ingest(c.Request.Context(), in)
  if err != nil {
    if errors.Is(err, services.ErrInvalidEvent) {
      RespondError(c, http.StatusBadRequest, "invalid_event", err)
      return
    }
    h.log.Error("Event ingestion failed", "error", err)
    RespondError(c, http.StatusInternalServerError, "internal", err)
    return
  }
  RespondOK(c, trackResponse{Success: true, Result: result})
}
