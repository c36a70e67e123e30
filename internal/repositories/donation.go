package repositories

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DonationFilter narrows a donation listing
type DonationFilter struct {
	Status   models.DonationStatus
	Category string
	Urgency  string
	DonorID  *uuid.UUID
}

// DonationRepository provides access to donations
type DonationRepository struct {
	handles
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db, readOnlyDB *gorm.DB) *DonationRepository {
	return &DonationRepository{handles: newHandles(db, readOnlyDB)}
}

// Create inserts a donation
func (r *DonationRepository) Create(ctx context.Context, donation *models.Donation) error {
	return translate(r.db.WithContext(ctx).Create(donation).Error, "failed to create donation")
}

// GetByID gets a donation by ID
func (r *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation models.Donation
	err := r.readOnlyDB.WithContext(ctx).First(&donation, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get donation by ID")
	}
	return &donation, nil
}

// GetByIDs gets several donations at once, in no particular order
func (r *DonationRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Donation, error) {
	var donations []models.Donation
	if len(ids) == 0 {
		return donations, nil
	}
	err := r.readOnlyDB.WithContext(ctx).Where("id IN ?", ids).Find(&donations).Error
	return donations, translate(err, "failed to get donations by IDs")
}

// List returns donations matching the filter, newest first
func (r *DonationRepository) List(ctx context.Context, filter DonationFilter, page Page) ([]models.Donation, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.Donation{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Urgency != "" {
		q = q.Where("urgency = ?", filter.Urgency)
	}
	if filter.DonorID != nil {
		q = q.Where("donor_id = ?", *filter.DonorID)
	}

	var donations []models.Donation
	err := page.apply(q.Order("created_at DESC")).Find(&donations).Error
	return donations, translate(err, "failed to list donations")
}

// TransitionStatus moves a donation to a new status only while its current status is one of from.
// ErrStaleStatus is returned when no row qualified.
func (r *DonationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.DonationStatus, to models.DonationStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update donation status")
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ListBatch pages through all donations in id order for reindexing
func (r *DonationRepository) ListBatch(ctx context.Context, after uuid.UUID, limit int) ([]models.Donation, error) {
	var donations []models.Donation
	err := r.readOnlyDB.WithContext(ctx).
		Where("id > ?", after).
		Order("id").
		Limit(limit).
		Find(&donations).Error
	return donations, translate(err, "failed to list donation batch")
}
