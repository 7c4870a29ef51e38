package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pixelsplit/pixelsplit-backend/internal/logger"
)

func cronRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cm := NewCronMiddleware(logger.NewNop(), secret)
	r.POST("/cron", cm.RequireCronSecret(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireCronSecret(t *testing.T) {
	r := cronRouter("s3cret")

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"cron header", "X-Cron-Secret", "s3cret", http.StatusOK},
		{"bearer token", "Authorization", "Bearer s3cret", http.StatusOK},
		{"wrong secret", "X-Cron-Secret", "nope", http.StatusUnauthorized},
		{"missing secret", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/cron", nil)
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestRequireCronSecret_EmptyConfiguredSecretRejectsEverything(t *testing.T) {
	r := cronRouter("")

	req := httptest.NewRequest(http.MethodPost, "/cron", nil)
	req.Header.Set("X-Cron-Secret", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unset secret must fail closed, got %d", w.Code)
	}
}

func authRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	am := NewAuthMiddleware(logger.NewNop(), secret)
	r.GET("/admin", am.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"shop": c.GetString("shop")})
	})
	return r
}

func signToken(t *testing.T, secret, shop string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"shop": shop})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireAdmin(t *testing.T) {
	r := authRouter("jwt-secret")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "jwt-secret", "demo.myshopify.com"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "demo.myshopify.com"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("token from wrong secret accepted: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token accepted: %d", w.Code)
	}
}
