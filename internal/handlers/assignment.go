package handlers

import (
  "fmt"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
)

type AssignmentHandler struct {
  log           *logger.Logger
  assignmentSvc services.AssignmentService
}

func NewAssignmentHandler(log *logger.Logger, assignmentSvc services.AssignmentService) *AssignmentHandler {
  return &AssignmentHandler{
    log:           log.With("handler", "AssignmentHandler"),
    assignmentSvc: assignmentSvc,
  }
}

// GET /api/assignment?shop=&productId=&shopifyVariantId=&force=
// Public read-only rotation-state query. force=A|B is a QA override that
// never writes state.
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
  shop := c.Query("shop")
  productID := c.Query("productId")
  if shop == "" || productID == "" {
    RespondError(c, http.StatusBadRequest, "missing_params", fmt.Errorf("shop and productId are required"))
    return
  }
  var shopifyVariantID *string
  if v := c.Query("shopifyVariantId"); v != "" {
    shopifyVariantID = &v
  }

  state, err := h.assignmentSvc.GetAssignment(c.Request.Context(), shop, productID, shopifyVariantID, c.Query("force"))
  if err != nil {
    // Storefront pages must keep working; degrade to "no experiment".
    h.log.Warn("Assignment lookup failed", "shop", shop, "product_id", productID, "error", err)
    RespondOK(c, gin.H{"test_id": nil, "active_case": "BASE"})
    return
  }
  RespondOK(c, state)
}

// POST /api/assignment/resolve
// Binds (or recalls) the session's variant for a known test.
func (h *AssignmentHandler) ResolveVariant(c *gin.Context) {
  var req struct {
    TestID    string `json:"testId"`
    SessionID string `json:"sessionId"`
    Force     string `json:"force,omitempty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_json", err)
    return
  }
  testID, err := uuid.Parse(req.TestID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_test_id", err)
    return
  }

  resolution, err := h.assignmentSvc.ResolveVariant(c.Request.Context(), testID, req.SessionID, req.Force)
  if err != nil {
    h.log.Warn("Variant resolution failed", "test_id", testID, "error", err)
    RespondOK(c, gin.H{"variant": nil})
    return
  }
  if resolution == nil {
    RespondOK(c, gin.H{"variant": nil})
    return
  }
  RespondOK(c, resolution)
}
