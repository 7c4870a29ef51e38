package middleware

import (
  "fmt"
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/golang-jwt/jwt/v5"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
)

// AuthMiddleware guards the admin API. Tokens are HS256 JWTs issued by the
// dashboard's embedded-app session exchange; the shop claim scopes every
// admin request to one store.
type AuthMiddleware struct {
  log       *logger.Logger
  jwtSecret []byte
}

func NewAuthMiddleware(log *logger.Logger, jwtSecret string) *AuthMiddleware {
  return &AuthMiddleware{
    log:       log.With("middleware", "AuthMiddleware"),
    jwtSecret: []byte(jwtSecret),
  }
}

func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractBearer(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }

    claims := jwt.MapClaims{}
    token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
      if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
        return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
      }
      return am.jwtSecret, nil
    })
    if err != nil || !token.Valid {
      am.log.Debug("Rejected admin token", "error", err)
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
      return
    }

    if shop, ok := claims["shop"].(string); ok && shop != "" {
      c.Set("shop", shop)
    }
    c.Next()
  }
}

func extractBearer(c *gin.Context) string {
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return c.Query("token")
}
