package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// dialectorFor picks the driver from the DSN: "sqlite://<path>" opens a
// sqlite file (or ":memory:"), anything else is a PostgreSQL DSN.
func dialectorFor(dsn string) (gorm.Dialector, bool) {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		return sqlite.Open(path), path == ":memory:"
	}
	return postgres.Open(dsn), false
}

// Connect opens the history database
func Connect(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	dialector, inMemory := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// every new connection to :memory: is a fresh empty database
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&AlertRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
