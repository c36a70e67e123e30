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

// MatchingService pairs donations with relief requests
type MatchingService struct {
	base
	volunteers *VolunteerService
	indexer    Indexer
}

// NewMatchingService creates a new matching service
func NewMatchingService(deps Dependencies, volunteers *VolunteerService) *MatchingService {
	return &MatchingService{
		base:       newBase(deps),
		volunteers: volunteers,
		indexer:    deps.Indexer,
	}
}

// CreateMatchInput describes a proposed pairing
type CreateMatchInput struct {
	DonationID         uuid.UUID
	RequestID          uuid.UUID
	Volunteer          models.VolunteerRef
	CompatibilityScore *float64
	MatchedBy          models.MatchedBy
	Reasoning          *string
}

// MatchResult is a match and, when a volunteer was attached, its delivery
type MatchResult struct {
	Match    *models.Match    `json:"match"`
	Delivery *models.Delivery `json:"delivery,omitempty"`
}

func (in *CreateMatchInput) validate() error {
	if in.DonationID == uuid.Nil || in.RequestID == uuid.Nil {
		return &ValidationError{Message: "donation_id and request_id are required"}
	}
	if in.CompatibilityScore != nil && (*in.CompatibilityScore < 0 || *in.CompatibilityScore > 1) {
		return &ValidationError{
			Message: "compatibility_score must be between 0 and 1",
			Details: map[string]interface{}{"compatibility_score": *in.CompatibilityScore},
		}
	}
	switch in.MatchedBy {
	case "":
		in.MatchedBy = models.MatchedByManual
	case models.MatchedByManual, models.MatchedByAIAgent:
	default:
		return &ValidationError{
			Message: "unknown matched_by " + string(in.MatchedBy),
			Details: map[string]interface{}{"allowed": []models.MatchedBy{models.MatchedByAIAgent, models.MatchedByManual}},
		}
	}
	return nil
}

// CreateMatch links a donation to a request in one transaction. The donation
// moves to matched, the request to partially_matched, and when a volunteer is
// given an assigned delivery is created for them.
func (s *MatchingService) CreateMatch(ctx context.Context, in CreateMatchInput) (*MatchResult, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("create-match")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "donation_id", in.DonationID.String())
	s.tracer.AddAttribute(txn, "request_id", in.RequestID.String())

	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		result   MatchResult
		donation *models.Donation
		request  *models.ReliefRequest
	)
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		var err error

		span := s.tracer.StartSpan("load-match-parties", txn)
		donation, err = repos.Donations.GetByID(ctx, in.DonationID)
		if err != nil {
			span.End()
			return lookup("donation", in.DonationID, err)
		}
		request, err = repos.Requests.GetByID(ctx, in.RequestID)
		span.End()
		if err != nil {
			return lookup("relief_request", in.RequestID, err)
		}

		donationFrom := models.DonationStatusesAllowing(models.DonationMatched)
		if !donation.Status.CanTransition(models.DonationMatched) {
			return precondition("donation", donation.Status, donationFrom, "")
		}
		requestFrom := models.RequestStatusesAllowing(models.RequestPartiallyMatched)
		if !request.Status.CanTransition(models.RequestPartiallyMatched) {
			return precondition("relief_request", request.Status, requestFrom, "")
		}

		var profile *models.VolunteerProfile
		if !in.Volunteer.IsZero() {
			profile, err = s.volunteers.resolve(ctx, repos.Volunteers, in.Volunteer)
			if err != nil {
				return err
			}
		}

		now := s.now()
		match := &models.Match{
			DonationID:         donation.ID,
			RequestID:          request.ID,
			Status:             models.MatchSuggested,
			CompatibilityScore: in.CompatibilityScore,
			MatchedBy:          in.MatchedBy,
			Reasoning:          in.Reasoning,
		}
		if profile != nil {
			match.Status = models.MatchAssigned
			match.AssignedVolunteerID = &profile.ID
			match.AssignedAt = &now
		}
		if err := repos.Matches.Create(ctx, match); err != nil {
			return upstream("failed to create match", err)
		}

		// Re-check under the write: a concurrent match on the same donation loses here
		err = repos.Donations.TransitionStatus(ctx, donation.ID, donationFrom, models.DonationMatched,
			map[string]interface{}{"updated_at": now})
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("donation", donation.Status, donationFrom, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to update donation status", err)
		}
		err = repos.Requests.TransitionStatus(ctx, request.ID, requestFrom, models.RequestPartiallyMatched,
			map[string]interface{}{"updated_at": now})
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("relief_request", request.Status, requestFrom, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to update request status", err)
		}

		result.Match = match
		if profile == nil {
			return nil
		}

		delivery := &models.Delivery{
			MatchID:             match.ID,
			VolunteerID:         &profile.ID,
			Status:              models.DeliveryAssigned,
			PickupAddress:       donation.PickupAddress,
			PickupCoordinates:   donation.PickupCoordinates,
			DeliveryAddress:     request.DeliveryAddress,
			DeliveryCoordinates: request.DeliveryCoordinates,
		}
		if err := repos.Deliveries.Create(ctx, delivery); err != nil {
			return upstream("failed to create delivery", err)
		}
		result.Delivery = delivery
		return nil
	})
	s.metrics.RecordOperation("create_match", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.RecordTransition("donation", string(donation.Status), string(models.DonationMatched))
	s.metrics.RecordTransition("request", string(request.Status), string(models.RequestPartiallyMatched))
	s.count("matches_created")

	log.Info().
		Str("match_id", result.Match.ID.String()).
		Str("donation_id", donation.ID.String()).
		Str("request_id", request.ID.String()).
		Str("status", string(result.Match.Status)).
		Msg("Match created")

	donation.Status = models.DonationMatched
	request.Status = models.RequestPartiallyMatched
	s.reindex(ctx, donation, request)

	var volunteerUserID *uuid.UUID
	if result.Delivery != nil {
		if profile, err := s.repos.Volunteers.GetByID(ctx, *result.Delivery.VolunteerID); err == nil {
			volunteerUserID = &profile.UserID
		}
	}
	s.publish(ctx, notify.Event{
		Type:       notify.MatchCreated,
		EntityID:   result.Match.ID,
		MatchID:    &result.Match.ID,
		Status:     string(result.Match.Status),
		Recipients: notify.Recipients(&donation.DonorID, &request.RequesterID, volunteerUserID),
		Data: map[string]interface{}{
			"donation_id": donation.ID,
			"request_id":  request.ID,
			"item_name":   donation.ItemName,
		},
	})

	return &result, nil
}

// AssignVolunteer attaches a volunteer profile to a match. Deliveries of the
// match that have not started yet follow the match.
func (s *MatchingService) AssignVolunteer(ctx context.Context, matchID, profileID uuid.UUID) (*models.Match, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("assign-match-volunteer")
	defer s.tracer.EndTransaction(txn)

	if profileID == uuid.Nil {
		return nil, &ValidationError{Message: "volunteer_id is required"}
	}

	var previous models.MatchStatus
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		match, err := repos.Matches.GetByID(ctx, matchID)
		if err != nil {
			return lookup("match", matchID, err)
		}
		previous = match.Status
		from := models.MatchStatusesAllowing(models.MatchAssigned)
		if !match.Status.CanTransition(models.MatchAssigned) {
			return precondition("match", match.Status, from, "")
		}

		profile, err := s.volunteers.resolve(ctx, repos.Volunteers, models.VolunteerRef{ProfileID: &profileID})
		if err != nil {
			return err
		}

		now := s.now()
		err = repos.Matches.UpdateWhereStatus(ctx, matchID, from, map[string]interface{}{
			"assigned_volunteer_id": profile.ID,
			"status":                models.MatchAssigned,
			"assigned_at":           now,
			"updated_at":            now,
		})
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("match", match.Status, from, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to assign volunteer to match", err)
		}

		return s.followMatchVolunteer(ctx, repos, matchID, profile.ID, now)
	})
	s.metrics.RecordOperation("assign_match_volunteer", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	s.metrics.RecordTransition("match", string(previous), string(models.MatchAssigned))

	match, err := s.repos.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, lookup("match", matchID, err)
	}
	s.publish(ctx, notify.Event{
		Type:       notify.MatchVolunteerAssigned,
		EntityID:   match.ID,
		MatchID:    &match.ID,
		Status:     string(match.Status),
		Previous:   string(previous),
		Recipients: s.parties(ctx, match.ID),
		Data:       map[string]interface{}{"volunteer_id": profileID},
	})
	return match, nil
}

// followMatchVolunteer moves deliveries that have not started onto the match's volunteer
func (s *MatchingService) followMatchVolunteer(ctx context.Context, repos *repositories.Repositories, matchID, profileID uuid.UUID, now time.Time) error {
	deliveries, err := repos.Deliveries.List(ctx, repositories.DeliveryFilter{MatchID: &matchID}, repositories.Page{Limit: 200})
	if err != nil {
		return upstream("failed to load match deliveries", err)
	}
	for _, d := range deliveries {
		if d.Status != models.DeliveryPendingAssignment && d.Status != models.DeliveryAssigned {
			continue
		}
		err := repos.Deliveries.UpdateWhereStatus(ctx, d.ID, d.Status, map[string]interface{}{
			"volunteer_id": profileID,
			"status":       models.DeliveryAssigned,
			"updated_at":   now,
		})
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("delivery", d.Status,
				[]models.DeliveryStatus{models.DeliveryPendingAssignment, models.DeliveryAssigned}, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to assign volunteer to delivery", err)
		}
	}
	return nil
}

// CancelMatch cancels a match and every delivery of it that has not finished.
// The donation stays matched.
func (s *MatchingService) CancelMatch(ctx context.Context, matchID uuid.UUID, reason *string) (*models.Match, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("cancel-match")
	defer s.tracer.EndTransaction(txn)

	var (
		previous  models.MatchStatus
		cancelled int64
	)
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		match, err := repos.Matches.GetByID(ctx, matchID)
		if err != nil {
			return lookup("match", matchID, err)
		}
		previous = match.Status
		from := models.MatchStatusesAllowing(models.MatchCancelled)
		if !match.Status.CanTransition(models.MatchCancelled) {
			return precondition("match", match.Status, from, "")
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":     models.MatchCancelled,
			"updated_at": now,
		}
		if reason != nil {
			updates["reasoning"] = *reason
		}
		err = repos.Matches.UpdateWhereStatus(ctx, matchID, from, updates)
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("match", match.Status, from, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to cancel match", err)
		}

		cancelled, err = repos.Deliveries.CancelOpenForMatch(ctx, matchID, reason, now)
		if err != nil {
			return upstream("failed to cancel deliveries", err)
		}
		return nil
	})
	s.metrics.RecordOperation("cancel_match", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	s.metrics.RecordTransition("match", string(previous), string(models.MatchCancelled))

	match, err := s.repos.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, lookup("match", matchID, err)
	}
	s.publish(ctx, notify.Event{
		Type:       notify.MatchCancelled,
		EntityID:   match.ID,
		MatchID:    &match.ID,
		Status:     string(match.Status),
		Previous:   string(previous),
		Recipients: s.parties(ctx, match.ID),
		Data:       map[string]interface{}{"cancelled_deliveries": cancelled},
	})
	return match, nil
}

// GetMatch gets a match with its donation and request
func (s *MatchingService) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	match, err := s.repos.Matches.GetWithParties(ctx, id)
	if err != nil {
		return nil, lookup("match", id, err)
	}
	return match, nil
}

// ListMatches lists matches by filter
func (s *MatchingService) ListMatches(ctx context.Context, filter repositories.MatchFilter, page repositories.Page) ([]models.Match, error) {
	matches, err := s.repos.Matches.List(ctx, filter, page)
	if err != nil {
		return nil, upstream("failed to list matches", err)
	}
	return matches, nil
}

func (s *MatchingService) reindex(ctx context.Context, donation *models.Donation, request *models.ReliefRequest) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexDonation(ctx, donation); err != nil {
		log.Warn().Err(err).Str("donation_id", donation.ID.String()).Msg("Failed to index donation")
	}
	if err := s.indexer.IndexRequest(ctx, request); err != nil {
		log.Warn().Err(err).Str("request_id", request.ID.String()).Msg("Failed to index request")
	}
}
