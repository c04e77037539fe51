package services

import (
	"testing"

	"github.com/tenantcore/configvault/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB returns a fresh in-memory database with the schema migrated.
// Every call gets its own database, so tests never share state.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&model.Project{}, &model.SystemConfig{}, &model.Secret{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}
