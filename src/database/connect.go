package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"autotrader/src/model"
)

// Open connects to the configured database, runs migrations, and seeds the
// singleton trading state row (unpaused, cash = initialCash) if it does not
// exist yet. The returned handle is passed explicitly to every component;
// there is no package-level connection.
func Open(config Config, initialCash decimal.Decimal) (*gorm.DB, error) {
	dialector, err := dialectorFor(config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.WithField("url", config.DatabaseURL).Info("[database] connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedTradingState(db, initialCash); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs AutoMigrate for every persisted entity.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Signal{},
		&model.Position{},
		&model.Trade{},
		&model.PortfolioSnapshot{},
		&model.TradingState{},
		&model.AuditLogEntry{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("[database] migrations completed")
	return nil
}

func dialectorFor(url string) (gorm.Dialector, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Open(url), nil
	}

	if dir := filepath.Dir(url); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return sqlite.Open(url), nil
}

func seedTradingState(db *gorm.DB, initialCash decimal.Decimal) error {
	var state model.TradingState
	err := db.First(&state, model.TradingStateID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to read trading state: %w", err)
	}

	state = model.TradingState{
		ID:   model.TradingStateID,
		Cash: initialCash,
	}
	if err := db.Create(&state).Error; err != nil {
		return fmt.Errorf("failed to seed trading state: %w", err)
	}

	logrus.WithField("cash", initialCash.String()).Info("[database] trading state initialized")
	return nil
}
