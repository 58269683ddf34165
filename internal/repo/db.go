// Package repo implements the interaction ledger on GORM over SQLite (pure
// Go driver). The default DSN is ":memory:", which keeps the ledger volatile
// per the campaign's demo storage model: records live only for the process
// lifetime and vanish on restart. Pointing DB_PATH at a file yields an
// inspectable local database with identical semantics.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-discount-agent/internal/domain"
)

// MemoryDSN is the volatile default database location.
const MemoryDSN = ":memory:"

// Open opens (or creates) the ledger database, applies PRAGMAs, configures
// the pool, and installs the GORM OpenTelemetry plugin.
func Open(dsn string) (*gorm.DB, error) {
	inMemory := dsn == MemoryDSN || strings.HasPrefix(dsn, "file::memory:")

	// Fail early if the parent directory does not exist (instead of a cryptic
	// sqlite "out of memory (14)").
	if !inMemory {
		if dir := filepath.Dir(dsn); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		if inMemory {
			// Every new connection to ":memory:" gets its own empty database;
			// pin the pool to a single connection so all queries share one.
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxOpenConns(10)
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetConnMaxIdleTime(5 * time.Minute)
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
		}
	}

	return db, nil
}

// AutoMigrate creates or updates the ledger schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.InteractionRecord{})
}
