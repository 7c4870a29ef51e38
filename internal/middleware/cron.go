package middleware

import (
  "crypto/subtle"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
)

// CronMiddleware guards the scheduler trigger with a shared secret, sent
// either as the platform cron header or as a bearer token.
type CronMiddleware struct {
  log    *logger.Logger
  secret string
}

func NewCronMiddleware(log *logger.Logger, secret string) *CronMiddleware {
  return &CronMiddleware{
    log:    log.With("middleware", "CronMiddleware"),
    secret: secret,
  }
}

func (cm *CronMiddleware) RequireCronSecret() gin.HandlerFunc {
  return func(c *gin.Context) {
    provided := c.GetHeader("X-Cron-Secret")
    if provided == "" {
      provided = extractBearer(c)
    }
    if cm.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(cm.secret)) != 1 {
      cm.log.Warn("Rejected cron trigger", "remote", c.ClientIP())
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
      return
    }
    c.Next()
  }
}
