package repositories

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchFilter narrows a match listing
type MatchFilter struct {
	Status      models.MatchStatus
	DonationID  *uuid.UUID
	RequestID   *uuid.UUID
	VolunteerID *uuid.UUID
}

// MatchRepository provides access to matches
type MatchRepository struct {
	handles
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db, readOnlyDB *gorm.DB) *MatchRepository {
	return &MatchRepository{handles: newHandles(db, readOnlyDB)}
}

// Create inserts a match
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) error {
	return translate(r.db.WithContext(ctx).Create(match).Error, "failed to create match")
}

// GetByID gets a match by ID
func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var match models.Match
	err := r.readOnlyDB.WithContext(ctx).First(&match, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get match by ID")
	}
	return &match, nil
}

// GetWithParties gets a match with its donation and request loaded
func (r *MatchRepository) GetWithParties(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	var match models.Match
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Donation").
		Preload("Request").
		First(&match, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get match with parties")
	}
	return &match, nil
}

// List returns matches matching the filter, newest first
func (r *MatchRepository) List(ctx context.Context, filter MatchFilter, page Page) ([]models.Match, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.Match{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DonationID != nil {
		q = q.Where("donation_id = ?", *filter.DonationID)
	}
	if filter.RequestID != nil {
		q = q.Where("request_id = ?", *filter.RequestID)
	}
	if filter.VolunteerID != nil {
		q = q.Where("assigned_volunteer_id = ?", *filter.VolunteerID)
	}

	var matches []models.Match
	err := page.apply(q.Order("created_at DESC")).Find(&matches).Error
	return matches, translate(err, "failed to list matches")
}

// UpdateWhereStatus applies updates only while the match status is one of from.
// ErrStaleStatus is returned when no row qualified.
func (r *MatchRepository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, from []models.MatchStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Match{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update match")
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}
