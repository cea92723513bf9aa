// Package repo implements the persistence layer of the bot, backed by GORM.
// Complaint state lives in memory; the database holds only the update log
// used to drop re-delivered transport updates. This file contains the SQLite
// bootstrapping helpers and schema migration.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// MemoryDSN is used when no database path is configured. The shared cache
// keeps a single database across the pool's connections.
const MemoryDSN = "file:hr-intake?mode=memory&cache=shared"

// IsMemory reports whether path selects an in-memory database.
func IsMemory(path string) bool {
	p := strings.TrimSpace(path)
	return p == "" || p == ":memory:" || strings.Contains(p, "mode=memory")
}

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs and
// registers the OpenTelemetry tracing plugin. An empty path or ":memory:"
// opens MemoryDSN.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	switch strings.TrimSpace(path) {
	case "", ":memory:":
		dsn = MemoryDSN
	}
	if !IsMemory(dsn) {
		// Fail early if the parent directory does not exist instead of
		// surfacing sqlite's "out of memory (14)".
		if dir := filepath.Dir(dsn); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		if !IsMemory(dsn) {
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
		}
	}

	return db, nil
}

// AutoMigrate creates or updates the update log table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.ProcessedUpdate{})
}
