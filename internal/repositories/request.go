package repositories

import (
	"context"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestFilter narrows a request listing
type RequestFilter struct {
	Status      models.RequestStatus
	Category    string
	Urgency     string
	RequesterID *uuid.UUID
}

// RequestRepository provides access to relief requests
type RequestRepository struct {
	handles
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db, readOnlyDB *gorm.DB) *RequestRepository {
	return &RequestRepository{handles: newHandles(db, readOnlyDB)}
}

// Create inserts a relief request
func (r *RequestRepository) Create(ctx context.Context, request *models.ReliefRequest) error {
	return translate(r.db.WithContext(ctx).Create(request).Error, "failed to create request")
}

// GetByID gets a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReliefRequest, error) {
	var request models.ReliefRequest
	err := r.readOnlyDB.WithContext(ctx).First(&request, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to get request by ID")
	}
	return &request, nil
}

// GetByIDs gets several requests at once, in no particular order
func (r *RequestRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ReliefRequest, error) {
	var requests []models.ReliefRequest
	if len(ids) == 0 {
		return requests, nil
	}
	err := r.readOnlyDB.WithContext(ctx).Where("id IN ?", ids).Find(&requests).Error
	return requests, translate(err, "failed to get requests by IDs")
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter RequestFilter, page Page) ([]models.ReliefRequest, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.ReliefRequest{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Urgency != "" {
		q = q.Where("urgency = ?", filter.Urgency)
	}
	if filter.RequesterID != nil {
		q = q.Where("requester_id = ?", *filter.RequesterID)
	}

	var requests []models.ReliefRequest
	err := page.apply(q.Order("created_at DESC")).Find(&requests).Error
	return requests, translate(err, "failed to list requests")
}

// TransitionStatus moves a request to a new status only while its current status is one of from.
// ErrStaleStatus is returned when no row qualified.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.RequestStatus, to models.RequestStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.ReliefRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update request status")
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ListBatch pages through all requests in id order for reindexing
func (r *RequestRepository) ListBatch(ctx context.Context, after uuid.UUID, limit int) ([]models.ReliefRequest, error) {
	var requests []models.ReliefRequest
	err := r.readOnlyDB.WithContext(ctx).
		Where("id > ?", after).
		Order("id").
		Limit(limit).
		Find(&requests).Error
	return requests, translate(err, "failed to list request batch")
}
