package services

import (
	"context"
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RequestService handles relief requests posted by NGOs
type RequestService struct {
	base
	indexer Indexer
}

// NewRequestService creates a new relief request service
func NewRequestService(deps Dependencies) *RequestService {
	return &RequestService{base: newBase(deps), indexer: deps.Indexer}
}

// CreateRequestInput holds an NGO's need
type CreateRequestInput struct {
	ItemName            string
	Description         *string
	Category            string
	Quantity            float64
	Unit                string
	Urgency             string
	BeneficiariesCount  int
	DeliveryAddress     string
	DeliveryCoordinates *models.Point
	Deadline            *time.Time
}

// Create records a relief request awaiting validation
func (s *RequestService) Create(ctx context.Context, requester Actor, in CreateRequestInput) (*models.ReliefRequest, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("create-relief-request")
	defer s.tracer.EndTransaction(txn)

	if in.Quantity <= 0 {
		return nil, &ValidationError{Message: "quantity must be greater than 0"}
	}
	if in.BeneficiariesCount <= 0 {
		return nil, &ValidationError{Message: "beneficiaries_count must be greater than 0"}
	}
	if in.DeliveryCoordinates != nil {
		if err := in.DeliveryCoordinates.Validate(); err != nil {
			return nil, &ValidationError{Message: err.Error(), Details: map[string]interface{}{"field": "delivery_coordinates"}}
		}
	}
	if in.Urgency == "" {
		in.Urgency = "medium"
	}

	request := &models.ReliefRequest{
		RequesterID:         requester.UserID,
		ItemName:            in.ItemName,
		Description:         in.Description,
		Category:            in.Category,
		Quantity:            in.Quantity,
		Unit:                in.Unit,
		Urgency:             in.Urgency,
		BeneficiariesCount:  in.BeneficiariesCount,
		DeliveryAddress:     in.DeliveryAddress,
		DeliveryCoordinates: in.DeliveryCoordinates,
		Deadline:            in.Deadline,
		Status:              models.RequestPendingValidation,
	}
	err := s.repos.Requests.Create(ctx, request)
	s.metrics.RecordOperation("create_request", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, upstream("failed to create relief request", err)
	}
	s.count("requests_created")

	log.Info().
		Str("request_id", request.ID.String()).
		Str("category", request.Category).
		Int("beneficiaries", request.BeneficiariesCount).
		Msg("Relief request created")

	s.index(ctx, request)
	return request, nil
}

// Get gets a relief request
func (s *RequestService) Get(ctx context.Context, id uuid.UUID) (*models.ReliefRequest, error) {
	request, err := s.repos.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("relief_request", id, err)
	}
	return request, nil
}

// List lists relief requests by filter
func (s *RequestService) List(ctx context.Context, filter repositories.RequestFilter, page repositories.Page) ([]models.ReliefRequest, error) {
	requests, err := s.repos.Requests.List(ctx, filter, page)
	if err != nil {
		return nil, upstream("failed to list relief requests", err)
	}
	return requests, nil
}

// Validate activates a pending request or rejects it with a reason
func (s *RequestService) Validate(ctx context.Context, id uuid.UUID, approved bool, reason *string) (*models.ReliefRequest, error) {
	to := models.RequestActive
	extra := map[string]interface{}{"updated_at": s.now()}
	if !approved {
		to = models.RequestRejected
		if reason == nil || *reason == "" {
			return nil, &ValidationError{Message: "a reason is required when rejecting"}
		}
		extra["rejection_reason"] = *reason
	}

	request, err := s.transition(ctx, id, to, extra)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.Event{
		Type:       notify.RequestValidated,
		EntityID:   request.ID,
		Status:     string(request.Status),
		Previous:   string(models.RequestPendingValidation),
		Recipients: notify.Recipients(&request.RequesterID),
	})
	return request, nil
}

// UpdateStatus lets the requester or an admin mark a request fulfilled or cancelled
func (s *RequestService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status string) (*models.ReliefRequest, error) {
	to, err := models.ParseRequestStatus(status)
	if err != nil || (to != models.RequestFulfilled && to != models.RequestCancelled) {
		return nil, &ValidationError{
			Message: "Invalid status",
			Details: map[string]interface{}{"allowed": []models.RequestStatus{models.RequestFulfilled, models.RequestCancelled}},
		}
	}

	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && request.RequesterID != actor.UserID {
		return nil, &AuthError{Message: "only the requester or an admin can change this request", Forbidden: true}
	}
	return s.transition(ctx, id, to, map[string]interface{}{"updated_at": s.now()})
}

func (s *RequestService) transition(ctx context.Context, id uuid.UUID, to models.RequestStatus, extra map[string]interface{}) (*models.ReliefRequest, error) {
	var from models.RequestStatus
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		request, err := repos.Requests.GetByID(ctx, id)
		if err != nil {
			return lookup("relief_request", id, err)
		}
		from = request.Status
		allowed := models.RequestStatusesAllowing(to)
		if !from.CanTransition(to) {
			return precondition("relief_request", from, allowed, "")
		}
		err = repos.Requests.TransitionStatus(ctx, id, allowed, to, extra)
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("relief_request", from, allowed, "status changed concurrently")
		}
		return upstream("failed to update request status", err)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("request", string(from), string(to))

	request, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.index(ctx, request)
	return request, nil
}

func (s *RequestService) index(ctx context.Context, request *models.ReliefRequest) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexRequest(ctx, request); err != nil {
		log.Warn().Err(err).Str("request_id", request.ID.String()).Msg("Failed to index request")
	}
}

// Reindex pushes every relief request to the search index in id order
func (s *RequestService) Reindex(ctx context.Context, batch int) (int, error) {
	if s.indexer == nil {
		return 0, nil
	}
	if batch <= 0 {
		batch = 500
	}

	var (
		after uuid.UUID
		total int
	)
	for {
		requests, err := s.repos.Requests.ListBatch(ctx, after, batch)
		if err != nil {
			return total, upstream("failed to read requests for reindex", err)
		}
		for i := range requests {
			if err := s.indexer.IndexRequest(ctx, &requests[i]); err != nil {
				return total, upstream("failed to index request", err)
			}
			total++
		}
		if len(requests) < batch {
			return total, nil
		}
		after = requests[len(requests)-1].ID
	}
}
