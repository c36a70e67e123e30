package repositories

import (
	"context"
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryFilter narrows a delivery listing
type DeliveryFilter struct {
	Status      models.DeliveryStatus
	VolunteerID *uuid.UUID
	MatchID     *uuid.UUID
}

// DeliveryRepository provides access to deliveries
type DeliveryRepository struct {
	handles
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db, readOnlyDB *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{handles: newHandles(db, readOnlyDB)}
}

// Create inserts a delivery
func (r *DeliveryRepository) Create(ctx context.Context, delivery *models.Delivery) error {
	return translate(r.db.WithContext(ctx).Create(delivery).Error, "failed to create delivery")
}

// GetByID gets a delivery by ID
func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.readOnlyDB.WithContext(ctx).First(&delivery, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get delivery by ID")
	}
	return &delivery, nil
}

// List returns deliveries matching the filter, newest first
func (r *DeliveryRepository) List(ctx context.Context, filter DeliveryFilter, page Page) ([]models.Delivery, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.Delivery{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.VolunteerID != nil {
		q = q.Where("volunteer_id = ?", *filter.VolunteerID)
	}
	if filter.MatchID != nil {
		q = q.Where("match_id = ?", *filter.MatchID)
	}

	var deliveries []models.Delivery
	err := page.apply(q.Order("created_at DESC")).Find(&deliveries).Error
	return deliveries, translate(err, "failed to list deliveries")
}

// UpdateWhereStatus applies updates only while the delivery is still in status from.
// ErrStaleStatus is returned when no row qualified.
func (r *DeliveryRepository) UpdateWhereStatus(ctx context.Context, id uuid.UUID, from models.DeliveryStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update delivery")
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetProofURL records a proof photo URL without touching the status
func (r *DeliveryRepository) SetProofURL(ctx context.Context, id uuid.UUID, column, url string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ?", id).
		Update(column, url)
	if result.Error != nil {
		return translate(result.Error, "failed to store delivery proof")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "failed to store delivery proof")
	}
	return nil
}

// CancelOpenForMatch cancels every delivery of a match that is not yet terminal
func (r *DeliveryRepository) CancelOpenForMatch(ctx context.Context, matchID uuid.UUID, notes *string, now time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":     models.DeliveryCancelled,
		"updated_at": now,
	}
	if notes != nil {
		updates["notes"] = *notes
	}

	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("match_id = ? AND status NOT IN ?", matchID,
			[]models.DeliveryStatus{models.DeliveryCompleted, models.DeliveryCancelled}).
		Updates(updates)
	return result.RowsAffected, translate(result.Error, "failed to cancel deliveries for match")
}
