package db

import (
  "fmt"

  "gorm.io/driver/postgres"
  "gorm.io/gorm"

  "github.com/pixelsplit/pixelsplit-backend/internal/logger"
  "github.com/pixelsplit/pixelsplit-backend/internal/types"
  "github.com/pixelsplit/pixelsplit-backend/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "pixelsplit", log)

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  serviceLog.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    serviceLog.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("failed to connect to postgres: %w", err)
  }

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Test{},
    &types.TestVariant{},
    &types.RotationSlot{},
    &types.SlotRotation{},
    &types.TrackingEvent{},
    &types.RotationEvent{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }

  s.log.Info("Configuring foreign key relationships for postgres tables...")
  constraints := []struct {
    name string
    stmt string
  }{
    {
      name: "fk_test_variant_test_id",
      stmt: `ALTER TABLE "test_variant" ADD CONSTRAINT "fk_test_variant_test_id" FOREIGN KEY ("test_id") REFERENCES "test"("id") ON DELETE CASCADE`,
    },
    {
      name: "fk_slot_rotation_slot_id",
      stmt: `ALTER TABLE "slot_rotation" ADD CONSTRAINT "fk_slot_rotation_slot_id" FOREIGN KEY ("slot_id") REFERENCES "rotation_slot"("id") ON DELETE CASCADE`,
    },
    {
      name: "fk_tracking_event_test_id",
      stmt: `ALTER TABLE "tracking_event" ADD CONSTRAINT "fk_tracking_event_test_id" FOREIGN KEY ("test_id") REFERENCES "test"("id") ON DELETE CASCADE`,
    },
    {
      name: "fk_rotation_event_test_id",
      stmt: `ALTER TABLE "rotation_event" ADD CONSTRAINT "fk_rotation_event_test_id" FOREIGN KEY ("test_id") REFERENCES "test"("id") ON DELETE CASCADE`,
    },
  }
  for _, c := range constraints {
    var exists bool
    s.db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name).Scan(&exists)
    if exists {
      continue
    }
    if err := s.db.Exec(c.stmt).Error; err != nil {
      return fmt.Errorf("failed to add %s: %w", c.name, err)
    }
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
