package repositories

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository provides access to user accounts
type UserRepository struct {
	handles
}

// NewUserRepository creates a new user repository
func NewUserRepository(db, readOnlyDB *gorm.DB) *UserRepository {
	return &UserRepository{handles: newHandles(db, readOnlyDB)}
}

// Create inserts a user; a taken phone yields ErrDuplicateKey
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error, "failed to create user")
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get user by ID")
	}
	return &user, nil
}

// GetByPhone gets a user by phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	// Login must see freshly registered accounts, so read the primary
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
	if err != nil {
		return nil, translate(err, "failed to get user by phone")
	}
	return &user, nil
}

// UpdateProfile updates the editable profile columns
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update user profile")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "failed to update user profile")
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.UpdateProfile(ctx, id, map[string]interface{}{"password_hash": hash})
}
