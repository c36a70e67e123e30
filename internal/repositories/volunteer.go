package repositories

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VolunteerRepository provides access to volunteer profiles
type VolunteerRepository struct {
	handles
}

// NewVolunteerRepository creates a new volunteer profile repository
func NewVolunteerRepository(db, readOnlyDB *gorm.DB) *VolunteerRepository {
	return &VolunteerRepository{handles: newHandles(db, readOnlyDB)}
}

// GetByID gets a profile by profile ID with its user loaded
func (r *VolunteerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VolunteerProfile, error) {
	var profile models.VolunteerProfile
	err := r.readOnlyDB.WithContext(ctx).Preload("User").First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get volunteer profile by ID")
	}
	return &profile, nil
}

// GetByUserID gets the profile owned by a user with the user loaded
func (r *VolunteerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.VolunteerProfile, error) {
	var profile models.VolunteerProfile
	err := r.readOnlyDB.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, translate(err, "failed to get volunteer profile by user")
	}
	return &profile, nil
}

// Create inserts a profile; a second profile for the same user yields ErrDuplicateKey
func (r *VolunteerRepository) Create(ctx context.Context, profile *models.VolunteerProfile) error {
	return translate(r.db.WithContext(ctx).Omit("User").Create(profile).Error, "failed to create volunteer profile")
}

// Update writes the editable columns of an existing profile
func (r *VolunteerRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.VolunteerProfile{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update volunteer profile")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "failed to update volunteer profile")
	}
	return nil
}

// ListAvailable returns profiles flagged available, optionally by vehicle type
func (r *VolunteerRepository) ListAvailable(ctx context.Context, vehicleType string, page Page) ([]models.VolunteerProfile, error) {
	q := r.readOnlyDB.WithContext(ctx).Preload("User").Where("is_available = ?", true)
	if vehicleType != "" {
		q = q.Where("vehicle_type = ?", vehicleType)
	}

	var profiles []models.VolunteerProfile
	err := page.apply(q.Order("created_at DESC")).Find(&profiles).Error
	return profiles, translate(err, "failed to list available volunteers")
}
