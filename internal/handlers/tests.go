package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// TestHandler is the admin surface: CRUD plus the lifecycle actions.
type TestHandler struct {
  log         *logger.Logger
  adminSvc    services.TestAdminService
  rotationSvc services.RotationService
  resultsSvc  services.ResultsService
}

func NewTestHandler(log *logger.Logger, adminSvc services.TestAdminService, rotationSvc services.RotationService, resultsSvc services.ResultsService) *TestHandler {
  return &TestHandler{
    log:         log.With("handler", "TestHandler"),
    adminSvc:    adminSvc,
    rotationSvc: rotationSvc,
    resultsSvc:  resultsSvc,
  }
}

// POST /api/tests
func (h *TestHandler) Create(c *gin.Context) {
  var req services.CreateTestInput
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_json", err)
    return
  }
  test, err := h.adminSvc.Create(c.Request.Context(), req)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  c.JSON(http.StatusCreated, gin.H{"test": test})
}

// GET /api/tests?shop=
func (h *TestHandler) List(c *gin.Context) {
  tests, err := h.adminSvc.ListByShop(c.Request.Context(), c.Query("shop"))
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"tests": tests})
}

// GET /api/tests/:id
func (h *TestHandler) Get(c *gin.Context) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  test, err := h.adminSvc.Get(c.Request.Context(), id)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"test": test})
}

// GET /api/tests/:id/results
func (h *TestHandler) Results(c *gin.Context) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  results, err := h.resultsSvc.GetResults(c.Request.Context(), id)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, results)
}

// GET /api/tests/:id/rotations
func (h *TestHandler) Rotations(c *gin.Context) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  rotations, err := h.rotationSvc.ListRotations(c.Request.Context(), id)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"rotations": rotations})
}

// PUT /api/tests/:id/variants
func (h *TestHandler) ReplaceVariants(c *gin.Context) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  var req struct {
    Variants []services.VariantInput `json:"variants"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_json", err)
    return
  }
  test, err := h.adminSvc.ReplaceVariants(c.Request.Context(), id, req.Variants)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"test": test})
}

// POST /api/tests/:id/start
func (h *TestHandler) Start(c *gin.Context) {
  h.lifecycle(c, func(id uuid.UUID) (*types.Test, error) {
    return h.rotationSvc.Start(c.Request.Context(), id)
  })
}

// POST /api/tests/:id/rotate
func (h *TestHandler) Rotate(c *gin.Context) {
  h.lifecycle(c, func(id uuid.UUID) (*types.Test, error) {
    return h.rotationSvc.Rotate(c.Request.Context(), id, types.TriggerManual)
  })
}

// POST /api/tests/:id/pause
func (h *TestHandler) Pause(c *gin.Context) {
  h.lifecycle(c, func(id uuid.UUID) (*types.Test, error) {
    return h.rotationSvc.Pause(c.Request.Context(), id)
  })
}

// POST /api/tests/:id/complete
func (h *TestHandler) Complete(c *gin.Context) {
  h.lifecycle(c, func(id uuid.UUID) (*types.Test, error) {
    return h.rotationSvc.Complete(c.Request.Context(), id)
  })
}

// POST /api/tests/:id/archive
func (h *TestHandler) Archive(c *gin.Context) {
  h.lifecycle(c, func(id uuid.UUID) (*types.Test, error) {
    return h.adminSvc.Archive(c.Request.Context(), id)
  })
}

// DELETE /api/tests/:id
func (h *TestHandler) Delete(c *gin.Context) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  if err := h.rotationSvc.Delete(c.Request.Context(), id); err != nil {
    RespondServiceError(c, err)
    return
  }
  c.Status(http.StatusNoContent)
}

func (h *TestHandler) lifecycle(c *gin.Context, action func(uuid.UUID) (*types.Test, error)) {
  id, ok := h.testID(c)
  if !ok {
    return
  }
  test, err := action(id)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"test": test})
}

func (h *TestHandler) testID(c *gin.Context) (uuid.UUID, bool) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_test_id", err)
    return uuid.Nil, false
  }
  return id, true
}
