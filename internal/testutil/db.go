// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"sinew-backend/internal/client"
	"sinew-backend/internal/config"

	"gorm.io/gorm"
)

// NewDB opens a migrated sqlite database in a per-test temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "sinew.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := client.InitDBClient(&config.Database{Driver: "sqlite", URL: dsn})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := client.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
