package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/pixelsplit/pixelsplit-backend/internal/services"
)

type APIError struct {
  Message string `json:"message"`
  Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service sentinels onto HTTP statuses. Admin
// surfaces use this; storefront surfaces deliberately do not (they degrade to
// neutral responses instead of exposing errors to shopper pages).
func RespondServiceError(c *gin.Context, err error) {
  switch {
  case errors.Is(err, services.ErrTestNotFound):
    RespondError(c, http.StatusNotFound, "test_not_found", err)
  case errors.Is(err, services.ErrTestConflict):
    RespondError(c, http.StatusConflict, "test_conflict", err)
  case errors.Is(err, services.ErrInvalidTransition):
    RespondError(c, http.StatusConflict, "invalid_transition", err)
  case errors.Is(err, services.ErrIncompleteVariants):
    RespondError(c, http.StatusUnprocessableEntity, "incomplete_variants", err)
  case errors.Is(err, services.ErrStaleRotation), errors.Is(err, services.ErrRotationInProgress):
    RespondError(c, http.StatusConflict, "rotation_conflict", err)
  case errors.Is(err, services.ErrMediaSwap):
    RespondError(c, http.StatusBadGateway, "media_swap_failed", err)
  case errors.Is(err, services.ErrInvalidEvent):
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
  default:
    RespondError(c, http.StatusInternalServerError, "internal", err)
  }
}
