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

// DonationService handles donation intake, validation and cancellation
type DonationService struct {
	base
	indexer  Indexer
	searcher Searcher
}

// NewDonationService creates a new donation service
func NewDonationService(deps Dependencies) *DonationService {
	return &DonationService{base: newBase(deps), indexer: deps.Indexer, searcher: deps.Searcher}
}

// CreateDonationInput holds a donor's offer
type CreateDonationInput struct {
	ItemName          string
	Description       *string
	Category          string
	Quantity          float64
	Unit              string
	Urgency           string
	PickupAddress     string
	PickupCoordinates *models.Point
	AvailableUntil    *time.Time
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uuid.UUID
	Role   models.Role
}

// IsAdmin reports whether the actor is an administrator
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Create records a donation awaiting validation
func (s *DonationService) Create(ctx context.Context, donor Actor, in CreateDonationInput) (*models.Donation, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("create-donation")
	defer s.tracer.EndTransaction(txn)

	if in.Quantity <= 0 {
		return nil, &ValidationError{Message: "quantity must be greater than 0"}
	}
	if in.PickupCoordinates != nil {
		if err := in.PickupCoordinates.Validate(); err != nil {
			return nil, &ValidationError{Message: err.Error(), Details: map[string]interface{}{"field": "pickup_coordinates"}}
		}
	}
	if in.Urgency == "" {
		in.Urgency = "medium"
	}

	donation := &models.Donation{
		DonorID:           donor.UserID,
		ItemName:          in.ItemName,
		Description:       in.Description,
		Category:          in.Category,
		Quantity:          in.Quantity,
		Unit:              in.Unit,
		Urgency:           in.Urgency,
		PickupAddress:     in.PickupAddress,
		PickupCoordinates: in.PickupCoordinates,
		AvailableUntil:    in.AvailableUntil,
		Status:            models.DonationPendingValidation,
	}
	err := s.repos.Donations.Create(ctx, donation)
	s.metrics.RecordOperation("create_donation", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, upstream("failed to create donation", err)
	}
	s.count("donations_created")

	log.Info().
		Str("donation_id", donation.ID.String()).
		Str("category", donation.Category).
		Float64("quantity", donation.Quantity).
		Msg("Donation created")

	s.index(ctx, donation)
	return donation, nil
}

// Get gets a donation
func (s *DonationService) Get(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	donation, err := s.repos.Donations.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("donation", id, err)
	}
	return donation, nil
}

// List lists donations by filter
func (s *DonationService) List(ctx context.Context, filter repositories.DonationFilter, page repositories.Page) ([]models.Donation, error) {
	donations, err := s.repos.Donations.List(ctx, filter, page)
	if err != nil {
		return nil, upstream("failed to list donations", err)
	}
	return donations, nil
}

// Search runs a free-text query and returns the matching donations from the store
func (s *DonationService) Search(ctx context.Context, query string, limit int) ([]models.Donation, error) {
	if query == "" {
		return nil, &ValidationError{Message: "query parameter q is required"}
	}
	if s.searcher == nil {
		return nil, &UpstreamError{Op: "search donations", Err: errors.New("search is not configured")}
	}

	ids, err := s.searcher.SearchDonations(ctx, query, limit)
	if err != nil {
		return nil, &UpstreamError{Op: "search donations", Err: err}
	}
	donations, err := s.repos.Donations.GetByIDs(ctx, ids)
	if err != nil {
		return nil, upstream("failed to load search results", err)
	}

	// keep the relevance order of the index
	byID := make(map[uuid.UUID]models.Donation, len(donations))
	for _, d := range donations {
		byID[d.ID] = d
	}
	ordered := make([]models.Donation, 0, len(donations))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

// Validate approves a pending donation, making it available, or rejects it with a reason
func (s *DonationService) Validate(ctx context.Context, id uuid.UUID, approved bool, reason *string) (*models.Donation, error) {
	to := models.DonationAvailable
	extra := map[string]interface{}{"updated_at": s.now()}
	if !approved {
		to = models.DonationRejected
		if reason == nil || *reason == "" {
			return nil, &ValidationError{Message: "a reason is required when rejecting"}
		}
		extra["rejection_reason"] = *reason
	}

	donation, err := s.transition(ctx, id, to, extra)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.Event{
		Type:       notify.DonationValidated,
		EntityID:   donation.ID,
		Status:     string(donation.Status),
		Previous:   string(models.DonationPendingValidation),
		Recipients: notify.Recipients(&donation.DonorID),
	})
	return donation, nil
}

// Cancel withdraws a donation; only its donor or an admin may do so
func (s *DonationService) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*models.Donation, error) {
	donation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && donation.DonorID != actor.UserID {
		return nil, &AuthError{Message: "only the donor or an admin can cancel this donation", Forbidden: true}
	}
	return s.transition(ctx, id, models.DonationCancelled, map[string]interface{}{"updated_at": s.now()})
}

func (s *DonationService) transition(ctx context.Context, id uuid.UUID, to models.DonationStatus, extra map[string]interface{}) (*models.Donation, error) {
	var from models.DonationStatus
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		donation, err := repos.Donations.GetByID(ctx, id)
		if err != nil {
			return lookup("donation", id, err)
		}
		from = donation.Status
		allowed := models.DonationStatusesAllowing(to)
		if !from.CanTransition(to) {
			return precondition("donation", from, allowed, "")
		}
		err = repos.Donations.TransitionStatus(ctx, id, allowed, to, extra)
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("donation", from, allowed, "status changed concurrently")
		}
		return upstream("failed to update donation status", err)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("donation", string(from), string(to))

	donation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.index(ctx, donation)
	return donation, nil
}

func (s *DonationService) index(ctx context.Context, donation *models.Donation) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexDonation(ctx, donation); err != nil {
		log.Warn().Err(err).Str("donation_id", donation.ID.String()).Msg("Failed to index donation")
	}
}

// Reindex pushes every donation to the search index in id order and returns how many were sent
func (s *DonationService) Reindex(ctx context.Context, batch int) (int, error) {
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
		donations, err := s.repos.Donations.ListBatch(ctx, after, batch)
		if err != nil {
			return total, upstream("failed to read donations for reindex", err)
		}
		for i := range donations {
			if err := s.indexer.IndexDonation(ctx, &donations[i]); err != nil {
				return total, upstream("failed to index donation", err)
			}
			total++
		}
		if len(donations) < batch {
			return total, nil
		}
		after = donations[len(donations)-1].ID
	}
}
