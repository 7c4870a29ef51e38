package main

import (
  "fmt"
  "os"

  redisclient "github.com/pixelsplit/pixelsplit-backend/internal/clients/redis"
  "github.com/pixelsplit/pixelsplit-backend/internal/db"
  "github.com/pixelsplit/pixelsplit-backend/internal/handlers"
  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/middleware"
  "github.com/pixelsplit/pixelsplit-backend/internal/repos"
  "github.com/pixelsplit/pixelsplit-backend/internal/server"
  "github.com/pixelsplit/pixelsplit-backend/internal/services"
  "github.com/pixelsplit/pixelsplit-backend/internal/shopify"
  "github.com/pixelsplit/pixelsplit-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  port := utils.GetEnv("PORT", "8080", log)
  jwtSecret := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  cronSecret := utils.GetEnv("CRON_SECRET", "", log)
  webhookSecret := utils.GetEnv("SHOPIFY_WEBHOOK_SECRET", "", log)
  shopifyAPIVersion := utils.GetEnv("SHOPIFY_API_VERSION", "2024-10", log)
  shopifyToken := utils.GetEnv("SHOPIFY_ACCESS_TOKEN", "", log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Redis (optional: lock falls back to the database CAS, cache is skipped)
  redisClient, err := redisclient.NewClient(log)
  if err != nil {
    log.Warn("Redis init failed, continuing without locks/cache", "error", err)
    redisClient = nil
  }

  // Repos
  log.Info("Setting up Repos from main...")
  testRepo := repos.NewTestRepo(thePG, log)
  testVariantRepo := repos.NewTestVariantRepo(thePG, log)
  slotRepo := repos.NewRotationSlotRepo(thePG, log)
  eventRepo := repos.NewTrackingEventRepo(thePG, log)
  rotationEventRepo := repos.NewRotationEventRepo(thePG, log)

  // Shopify Admin client
  mediaClient := shopify.NewAdminClient(log, shopifyAPIVersion, func(shop string) (string, error) {
    if shopifyToken == "" {
      return "", fmt.Errorf("SHOPIFY_ACCESS_TOKEN not configured for shop %s", shop)
    }
    return shopifyToken, nil
  })

  // Services
  log.Info("Setting up Services from main...")
  assignmentService := services.NewAssignmentService(thePG, log, testRepo, eventRepo, slotRepo, redisClient, services.SystemRand())
  rotationService := services.NewRotationService(thePG, log, testRepo, slotRepo, rotationEventRepo, mediaClient, redisClient, assignmentService)
  ingestService := services.NewIngestService(thePG, log, testRepo, eventRepo, slotRepo)
  resultsService := services.NewResultsService(thePG, log, testRepo, eventRepo)
  schedulerService := services.NewSchedulerService(thePG, log, testRepo, rotationService)
  testAdminService := services.NewTestAdminService(thePG, log, testRepo, testVariantRepo)

  // Handlers
  log.Info("Setting up Handlers from main...")
  trackingHandler := handlers.NewTrackingHandler(log, ingestService)
  assignmentHandler := handlers.NewAssignmentHandler(log, assignmentService)
  webhookHandler := handlers.NewWebhookHandler(log, ingestService, webhookSecret)
  cronHandler := handlers.NewCronHandler(log, schedulerService)
  testHandler := handlers.NewTestHandler(log, testAdminService, rotationService, resultsService)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, jwtSecret)
  cronMiddleware := middleware.NewCronMiddleware(log, cronSecret)

  // Router
  router := server.NewRouter(server.RouterConfig{
    TrackingHandler:   trackingHandler,
    AssignmentHandler: assignmentHandler,
    WebhookHandler:    webhookHandler,
    CronHandler:       cronHandler,
    TestHandler:       testHandler,
    AuthMiddleware:    authMiddleware,
    CronMiddleware:    cronMiddleware,
  })

  log.Info("Starting server...", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server exited", "error", err)
  }
}
