// Package testutil holds the database and auth fixtures shared by the HTTP tests.
package testutil

import (
	"strings"
	"testing"

	"github.com/kendall-kelly/marketplace-orders/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens a migrated in-memory database. The pool is pinned to one
// connection because every connection to :memory: is a separate database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// SeedUser inserts a user with a derived email address
func SeedUser(t *testing.T, db *gorm.DB, auth0ID, name, role string) models.User {
	t.Helper()

	u := models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:    role,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("Failed to seed user %s: %v", auth0ID, err)
	}
	return u
}
