package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/pixelsplit/pixelsplit-backend/internal/handlers"
  "github.com/pixelsplit/pixelsplit-backend/internal/middleware"
)

type RouterConfig struct {
  TrackingHandler   *handlers.TrackingHandler
  AssignmentHandler *handlers.AssignmentHandler
  WebhookHandler    *handlers.WebhookHandler
  CronHandler       *handlers.CronHandler
  TestHandler       *handlers.TestHandler
  AuthMiddleware    *middleware.AuthMiddleware
  CronMiddleware    *middleware.CronMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  // The tracking and assignment endpoints are called from storefront pages
  // on arbitrary shop domains.
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{"*"},
    AllowMethods: []string{"GET", "POST", "OPTIONS"},
    AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
  }))

  // ===============
  // || Public    ||
  // ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.POST("/track", cfg.TrackingHandler.Track)
    api.GET("/assignment", cfg.AssignmentHandler.GetAssignment)
    api.POST("/assignment/resolve", cfg.AssignmentHandler.ResolveVariant)
  }

  // Webhook HMAC is verified inside the handler against the raw body.
  router.POST("/webhooks/orders/paid", cfg.WebhookHandler.OrdersPaid)

  // ===============
  // || Cron      ||
  // ===============
  cron := router.Group("/api/cron")
  cron.Use(cfg.CronMiddleware.RequireCronSecret())
  cron.POST("/rotate", cfg.CronHandler.Rotate)

  // ===============
  // || Admin     ||
  // ===============
  admin := router.Group("/api/tests")
  admin.Use(cfg.AuthMiddleware.RequireAdmin())
  admin.POST("", cfg.TestHandler.Create)
  admin.GET("", cfg.TestHandler.List)
  admin.GET("/:id", cfg.TestHandler.Get)
  admin.GET("/:id/results", cfg.TestHandler.Results)
  admin.GET("/:id/rotations", cfg.TestHandler.Rotations)
  admin.PUT("/:id/variants", cfg.TestHandler.ReplaceVariants)
  admin.POST("/:id/start", cfg.TestHandler.Start)
  admin.POST("/:id/rotate", cfg.TestHandler.Rotate)
  admin.POST("/:id/pause", cfg.TestHandler.Pause)
  admin.POST("/:id/complete", cfg.TestHandler.Complete)
  admin.POST("/:id/archive", cfg.TestHandler.Archive)
  admin.DELETE("/:id", cfg.TestHandler.Delete)

  return router
}
