package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

// Open connects to Postgres. Driver errors are translated so unique violations
// surface as gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	return db, nil
}

// All persisted entities, in dependency order.
var Entities = []any{
	&models.User{},
	&models.Case{}, &models.CaseFile{}, &models.CaseDeadline{}, &models.CaseNote{},
	&models.Bid{},
	&models.Appointment{},
	&models.Rating{},
	&models.Notification{}, &models.NotificationRead{},
}

// Indexes AutoMigrate cannot express.
var indexes = []string{
	// At most one accepted bid per case, whatever path wrote it.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_accepted ON bids (case_id) WHERE status = 'accepted'`,
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	// gen_random_uuid() lives in pgcrypto on Postgres < 13
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("database: pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(Entities...); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("database: index: %w", err)
		}
	}
	return nil
}
