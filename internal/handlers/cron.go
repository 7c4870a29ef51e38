package handlers

import (
  "net/http"
  "time"

  "github.com/gin-gonic/gin"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
)

type CronHandler struct {
  log          *logger.Logger
  schedulerSvc services.SchedulerService
}

func NewCronHandler(log *logger.Logger, schedulerSvc services.SchedulerService) *CronHandler {
  return &CronHandler{
    log:          log.With("handler", "CronHandler"),
    schedulerSvc: schedulerSvc,
  }
}

// POST /api/cron/rotate
// Authenticated by the cron middleware. No body; returns the batch summary.
func (h *CronHandler) Rotate(c *gin.Context) {
  summary, err := h.schedulerSvc.RunDue(c.Request.Context(), time.Now().UTC())
  if err != nil {
    h.log.Error("Cron pass failed", "error", err)
    RespondError(c, http.StatusInternalServerError, "cron_failed", err)
    return
  }
  RespondOK(c, summary)
}
