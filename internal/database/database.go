package database

import (
	"context"
	"fmt"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the postgres connection pool
func NewConnection(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info().
		Str("host", cfg.Database.Host).
		Str("db", cfg.Database.DBName).
		Msg("Connected to database")

	return db, nil
}

// AutoMigrate runs schema migrations and creates the partial indexes gorm tags cannot express
func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations")

	modelsToMigrate := []interface{}{
		&models.Tenant{},
		&models.DomainBinding{},
		&models.DomainActivity{},
		&models.ProcessedBillingEvent{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return createIndexes(db)
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// One in-flight binding attempt per tenant
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_domain_bindings_tenant_in_flight
		 ON domain_bindings (tenant_id)
		 WHERE status IN ('requested', 'provider_registering', 'pending_verification')`,

		`CREATE INDEX IF NOT EXISTS idx_domain_bindings_pending_checked
		 ON domain_bindings (status, last_checked_at)`,

		`CREATE INDEX IF NOT EXISTS idx_tenants_active_period_end
		 ON tenants (subscription_status, current_period_end)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Checker pings the database for readiness probes
type Checker struct {
	db *gorm.DB
}

// NewChecker creates a readiness checker for db
func NewChecker(db *gorm.DB) *Checker {
	return &Checker{db: db}
}

// Ping verifies database connectivity
func (c *Checker) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
