// Package testutil opens isolated in-memory databases for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pgstay/internal/database"
	"pgstay/internal/domain"
)

// NewDB returns a migrated sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := database.ConnectWithConfig(dsn, database.Silent())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedProperty inserts an active property with owner contact details.
func SeedProperty(t *testing.T, db *gorm.DB, id, ownerUserID string) *domain.Property {
	t.Helper()
	p := &domain.Property{
		ID:          id,
		Name:        "Property " + id,
		City:        "Bengaluru",
		OwnerUserID: ownerUserID,
		OwnerName:   "Owner " + ownerUserID,
		OwnerPhone:  "+919876543210",
		OwnerEmail:  "owner@example.com",
		IsActive:    true,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(p).Error)
	return p
}

// SeedRoom inserts a room with the given capacity, all beds free.
func SeedRoom(t *testing.T, db *gorm.DB, id, propertyID string, beds int) *domain.Room {
	t.Helper()
	r := &domain.Room{
		ID:            id,
		PropertyID:    propertyID,
		Name:          "Room " + id,
		SharingType:   "double",
		TotalBeds:     beds,
		AvailableBeds: beds,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(r).Error)
	return r
}

// Beds reads the current available_beds of a room.
func Beds(t *testing.T, db *gorm.DB, roomID string) int {
	t.Helper()
	var r domain.Room
	require.NoError(t, db.Where("id = ?", roomID).First(&r).Error)
	return r.AvailableBeds
}

// Quiet is a loggerf that discards output.
func Quiet(string, ...interface{}) {}
