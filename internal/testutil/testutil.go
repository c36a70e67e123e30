// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/database"
	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Epoch is the instant returned by Clock
var Epoch = time.Date(2024, 8, 21, 9, 30, 0, 0, time.UTC)

// Clock returns a fixed clock at Epoch
func Clock() func() time.Time {
	return func() time.Time { return Epoch }
}

// OpenTestDB opens a private in-memory sqlite database with the schema applied.
// A single connection keeps every query on the same in-memory database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), config.DatabaseConfig{MaxOpenConns: 1}, metrics.NewMetrics())
	require.NoError(t, err)
	require.NoError(t, models.SetupModels(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active user with the given role
func CreateUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Name:         string(role) + " user",
		Phone:        "+8801" + uuid.NewString()[:9],
		PasswordHash: "not-a-real-hash",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateDonation inserts a donation in the given status
func CreateDonation(t *testing.T, db *gorm.DB, donorID uuid.UUID, status models.DonationStatus) *models.Donation {
	t.Helper()

	donation := &models.Donation{
		DonorID:           donorID,
		ItemName:          "Rice",
		Category:          "food",
		Quantity:          50,
		Unit:              "kg",
		Urgency:           "high",
		PickupAddress:     "Zindabazar, Sylhet",
		PickupCoordinates: &models.Point{Lat: 24.8949, Lng: 91.8687},
		Status:            status,
	}
	require.NoError(t, db.Create(donation).Error)
	return donation
}

// CreateRequest inserts a relief request in the given status
func CreateRequest(t *testing.T, db *gorm.DB, requesterID uuid.UUID, status models.RequestStatus) *models.ReliefRequest {
	t.Helper()

	request := &models.ReliefRequest{
		RequesterID:         requesterID,
		ItemName:            "Rice",
		Category:            "food",
		Quantity:            40,
		Unit:                "kg",
		Urgency:             "critical",
		BeneficiariesCount:  120,
		DeliveryAddress:     "Companiganj relief camp",
		DeliveryCoordinates: &models.Point{Lat: 25.0573, Lng: 91.7550},
		Status:              status,
	}
	require.NoError(t, db.Create(request).Error)
	return request
}

// CreateVolunteer inserts a volunteer user with an available profile
func CreateVolunteer(t *testing.T, db *gorm.DB) (*models.User, *models.VolunteerProfile) {
	t.Helper()

	user := CreateUser(t, db, models.RoleVolunteer)
	profile := &models.VolunteerProfile{
		UserID:        user.ID,
		VehicleType:   "motorcycle",
		MaxCapacityKg: 80,
		IsAvailable:   true,
	}
	require.NoError(t, db.Create(profile).Error)
	return user, profile
}

// Count returns the number of rows of a model
func Count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
