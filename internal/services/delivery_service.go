package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProofStage selects which proof photo is being uploaded
type ProofStage string

const (
	ProofPickup   ProofStage = "pickup"
	ProofDelivery ProofStage = "delivery"
)

// DeliveryService drives deliveries through their lifecycle
type DeliveryService struct {
	base
	volunteers *VolunteerService
	proofs     ProofStore
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(deps Dependencies, volunteers *VolunteerService) *DeliveryService {
	return &DeliveryService{
		base:       newBase(deps),
		volunteers: volunteers,
		proofs:     deps.Proofs,
	}
}

// CreateDeliveryInput describes a delivery for an existing match
type CreateDeliveryInput struct {
	MatchID             uuid.UUID
	Volunteer           models.VolunteerRef
	PickupAddress       *string
	PickupCoordinates   *models.Point
	DeliveryAddress     *string
	DeliveryCoordinates *models.Point
	PickupScheduledAt   *time.Time
	DeliveryScheduledAt *time.Time
	Notes               *string
}

// StatusUpdate is a status change reported by a volunteer or coordinator
type StatusUpdate struct {
	Status   string
	Location *models.Point
	Notes    *string
}

// CreateDelivery opens a delivery for a match. Without a volunteer, and when
// the match has none either, it waits in pending_assignment.
func (s *DeliveryService) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (*models.Delivery, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("create-delivery")
	defer s.tracer.EndTransaction(txn)

	if in.MatchID == uuid.Nil {
		return nil, &ValidationError{Message: "match_id is required"}
	}
	for field, p := range map[string]*models.Point{
		"pickup_coordinates":   in.PickupCoordinates,
		"delivery_coordinates": in.DeliveryCoordinates,
	} {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, &ValidationError{Message: err.Error(), Details: map[string]interface{}{"field": field}}
		}
	}

	var delivery *models.Delivery
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		match, err := repos.Matches.GetByID(ctx, in.MatchID)
		if err != nil {
			return lookup("match", in.MatchID, err)
		}
		if match.Status.IsTerminal() {
			return precondition("match", match.Status, []models.MatchStatus{models.MatchSuggested, models.MatchAssigned}, "")
		}

		donation, err := repos.Donations.GetByID(ctx, match.DonationID)
		if err != nil {
			return lookup("donation", match.DonationID, err)
		}
		request, err := repos.Requests.GetByID(ctx, match.RequestID)
		if err != nil {
			return lookup("relief_request", match.RequestID, err)
		}

		delivery = &models.Delivery{
			MatchID:             match.ID,
			Status:              models.DeliveryPendingAssignment,
			PickupAddress:       stringOr(in.PickupAddress, donation.PickupAddress),
			PickupCoordinates:   pointOr(in.PickupCoordinates, donation.PickupCoordinates),
			DeliveryAddress:     stringOr(in.DeliveryAddress, request.DeliveryAddress),
			DeliveryCoordinates: pointOr(in.DeliveryCoordinates, request.DeliveryCoordinates),
			PickupScheduledAt:   in.PickupScheduledAt,
			DeliveryScheduledAt: in.DeliveryScheduledAt,
			Notes:               in.Notes,
		}

		ref := in.Volunteer
		if ref.IsZero() && match.AssignedVolunteerID != nil {
			ref = models.VolunteerRef{ProfileID: match.AssignedVolunteerID}
		}
		if !ref.IsZero() {
			profile, err := s.volunteers.resolve(ctx, repos.Volunteers, ref)
			if err != nil {
				return err
			}
			now := s.now()
			from := models.MatchStatusesAllowing(models.MatchAssigned)
			err = repos.Matches.UpdateWhereStatus(ctx, match.ID, from, map[string]interface{}{
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
			delivery.VolunteerID = &profile.ID
			delivery.Status = models.DeliveryAssigned
		}

		if err := repos.Deliveries.Create(ctx, delivery); err != nil {
			return upstream("failed to create delivery", err)
		}
		return nil
	})
	s.metrics.RecordOperation("create_delivery", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	s.count("deliveries_created")

	s.publish(ctx, notify.Event{
		Type:       notify.DeliveryCreated,
		EntityID:   delivery.ID,
		MatchID:    &delivery.MatchID,
		Status:     string(delivery.Status),
		Recipients: s.parties(ctx, delivery.MatchID),
	})
	return delivery, nil
}

// UpdateStatus moves a delivery forward, records timestamps and the reported
// location, and completes the parent match when the delivery completes.
func (s *DeliveryService) UpdateStatus(ctx context.Context, id uuid.UUID, in StatusUpdate) (*models.Delivery, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("update-delivery-status")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "delivery_id", id.String())
	s.tracer.AddAttribute(txn, "status", in.Status)

	to, err := models.ParseDeliveryStatus(in.Status)
	if err != nil {
		var unknown *models.UnknownStatusError
		details := map[string]interface{}{}
		if errors.As(err, &unknown) {
			details["allowed"] = unknown.Allowed
		}
		return nil, &ValidationError{Message: "Invalid status", Details: details}
	}
	if in.Location != nil {
		if err := in.Location.Validate(); err != nil {
			return nil, &ValidationError{Message: err.Error(), Details: map[string]interface{}{"field": "location"}}
		}
	}

	var (
		from           models.DeliveryStatus
		matchID        uuid.UUID
		matchCompleted bool
	)
	err = s.inTx(ctx, func(repos *repositories.Repositories) error {
		delivery, err := repos.Deliveries.GetByID(ctx, id)
		if err != nil {
			return lookup("delivery", id, err)
		}
		from, matchID = delivery.Status, delivery.MatchID

		if !from.CanTransition(to) {
			return precondition("delivery", from, from.NextDeliveryStatuses(), "")
		}
		if to != models.DeliveryCancelled && to.Rank() >= models.DeliveryAssigned.Rank() && delivery.VolunteerID == nil {
			return precondition("delivery", from,
				[]models.DeliveryStatus{models.DeliveryPendingAssignment, models.DeliveryCancelled}, "no volunteer assigned")
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": now,
		}
		entering := from != to
		switch to {
		case models.DeliveryPickedUp:
			if entering {
				updates["pickup_actual_at"] = now
			}
			if in.Notes != nil {
				updates["pickup_notes"] = *in.Notes
			}
		case models.DeliveryDelivered, models.DeliveryCompleted:
			if entering {
				updates["delivery_actual_at"] = now
			}
			if in.Notes != nil {
				updates["delivery_notes"] = *in.Notes
			}
		default:
			if in.Notes != nil {
				updates["notes"] = *in.Notes
			}
		}
		if in.Location != nil {
			updates["current_location"] = *in.Location
			updates["last_location_update"] = now
		}

		err = repos.Deliveries.UpdateWhereStatus(ctx, id, from, updates)
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("delivery", from, from.NextDeliveryStatuses(), "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to update delivery status", err)
		}

		if to != models.DeliveryCompleted {
			return nil
		}
		matchFrom := models.MatchStatusesAllowing(models.MatchCompleted)
		err = repos.Matches.UpdateWhereStatus(ctx, delivery.MatchID, matchFrom, map[string]interface{}{
			"status":     models.MatchCompleted,
			"updated_at": now,
		})
		if errors.Is(err, repositories.ErrStaleStatus) {
			match, loadErr := repos.Matches.GetByID(ctx, delivery.MatchID)
			if loadErr != nil {
				return lookup("match", delivery.MatchID, loadErr)
			}
			// a sibling delivery already completed the match
			if match.Status == models.MatchCompleted {
				return nil
			}
			return precondition("match", match.Status, matchFrom, "cannot complete delivery")
		}
		if err != nil {
			return upstream("failed to complete match", err)
		}
		matchCompleted = true
		return nil
	})
	s.metrics.RecordOperation("update_delivery_status", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if from != to {
		s.metrics.RecordTransition("delivery", string(from), string(to))
		if to == models.DeliveryCompleted {
			s.count("deliveries_completed")
		}
		if matchCompleted {
			s.metrics.RecordTransition("match", string(models.MatchAssigned), string(models.MatchCompleted))
		}
	}

	delivery, err := s.repos.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("delivery", id, err)
	}

	log.Info().
		Str("delivery_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Bool("location", in.Location != nil).
		Msg("Delivery status updated")

	data := map[string]interface{}{}
	if delivery.CurrentLocation != nil {
		data["current_location"] = delivery.CurrentLocation
	}
	s.publish(ctx, notify.Event{
		Type:       notify.DeliveryStatusChanged,
		EntityID:   id,
		MatchID:    &matchID,
		Status:     string(to),
		Previous:   string(from),
		Recipients: s.parties(ctx, matchID),
		Data:       data,
	})
	return delivery, nil
}

// AssignVolunteer binds a volunteer to a delivery that has not started and to
// its match. Re-assigning the same profile only refreshes updated_at.
func (s *DeliveryService) AssignVolunteer(ctx context.Context, id uuid.UUID, ref models.VolunteerRef) (*models.Delivery, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("assign-delivery-volunteer")
	defer s.tracer.EndTransaction(txn)

	if ref.IsZero() {
		return nil, &ValidationError{Message: "volunteer_id is required"}
	}

	var (
		from    models.DeliveryStatus
		matchID uuid.UUID
	)
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		delivery, err := repos.Deliveries.GetByID(ctx, id)
		if err != nil {
			return lookup("delivery", id, err)
		}
		from, matchID = delivery.Status, delivery.MatchID
		assignable := []models.DeliveryStatus{models.DeliveryPendingAssignment, models.DeliveryAssigned}
		if from != models.DeliveryPendingAssignment && from != models.DeliveryAssigned {
			return precondition("delivery", from, assignable, "volunteer can only change before pickup starts")
		}

		profile, err := s.volunteers.resolve(ctx, repos.Volunteers, ref)
		if err != nil {
			return err
		}

		now := s.now()
		err = repos.Deliveries.UpdateWhereStatus(ctx, id, from, map[string]interface{}{
			"volunteer_id": profile.ID,
			"status":       models.DeliveryAssigned,
			"updated_at":   now,
		})
		if errors.Is(err, repositories.ErrStaleStatus) {
			return precondition("delivery", from, assignable, "status changed concurrently")
		}
		if err != nil {
			return upstream("failed to assign volunteer to delivery", err)
		}

		matchFrom := models.MatchStatusesAllowing(models.MatchAssigned)
		err = repos.Matches.UpdateWhereStatus(ctx, delivery.MatchID, matchFrom, map[string]interface{}{
			"assigned_volunteer_id": profile.ID,
			"status":                models.MatchAssigned,
			"assigned_at":           now,
			"updated_at":            now,
		})
		if errors.Is(err, repositories.ErrStaleStatus) {
			match, loadErr := repos.Matches.GetByID(ctx, delivery.MatchID)
			if loadErr != nil {
				return lookup("match", delivery.MatchID, loadErr)
			}
			return precondition("match", match.Status, matchFrom, "")
		}
		if err != nil {
			return upstream("failed to assign volunteer to match", err)
		}
		return nil
	})
	s.metrics.RecordOperation("assign_delivery_volunteer", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if from != models.DeliveryAssigned {
		s.metrics.RecordTransition("delivery", string(from), string(models.DeliveryAssigned))
	}

	delivery, err := s.repos.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("delivery", id, err)
	}
	s.publish(ctx, notify.Event{
		Type:       notify.DeliveryVolunteerAssigned,
		EntityID:   id,
		MatchID:    &matchID,
		Status:     string(delivery.Status),
		Previous:   string(from),
		Recipients: s.parties(ctx, matchID),
		Data:       map[string]interface{}{"volunteer_id": delivery.VolunteerID},
	})
	return delivery, nil
}

// UploadProof stores a proof photo for the pickup or delivery stage
func (s *DeliveryService) UploadProof(ctx context.Context, id uuid.UUID, stage ProofStage, body io.Reader, contentType string) (*models.Delivery, error) {
	txn := s.tracer.StartTransaction("upload-delivery-proof")
	defer s.tracer.EndTransaction(txn)

	var column string
	switch stage {
	case ProofPickup:
		column = "pickup_proof_url"
	case ProofDelivery:
		column = "delivery_proof_url"
	default:
		return nil, &ValidationError{
			Message: "unknown proof stage " + string(stage),
			Details: map[string]interface{}{"allowed": []ProofStage{ProofPickup, ProofDelivery}},
		}
	}
	if s.proofs == nil {
		return nil, &UpstreamError{Op: "upload proof", Err: errors.New("proof storage is not configured")}
	}

	delivery, err := s.repos.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("delivery", id, err)
	}
	if delivery.Status == models.DeliveryCancelled {
		return nil, &PreconditionFailedError{Entity: "delivery", Status: string(delivery.Status), Reason: "cancelled deliveries take no proof"}
	}

	key := fmt.Sprintf("deliveries/%s/%s-%d", id, stage, s.now().Unix())
	span := s.tracer.StartSpan("s3-upload", txn)
	url, err := s.proofs.Upload(ctx, key, body, contentType)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, &UpstreamError{Op: "upload proof", Err: err}
	}

	if err := s.repos.Deliveries.SetProofURL(ctx, id, column, url); err != nil {
		return nil, lookup("delivery", id, err)
	}
	s.count("delivery_proofs_uploaded")

	return s.GetDelivery(ctx, id)
}

// GetDelivery gets a delivery
func (s *DeliveryService) GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.repos.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("delivery", id, err)
	}
	return delivery, nil
}

// ListDeliveries lists deliveries by filter
func (s *DeliveryService) ListDeliveries(ctx context.Context, filter repositories.DeliveryFilter, page repositories.Page) ([]models.Delivery, error) {
	deliveries, err := s.repos.Deliveries.List(ctx, filter, page)
	if err != nil {
		return nil, upstream("failed to list deliveries", err)
	}
	return deliveries, nil
}

func stringOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}

func pointOr(v, fallback *models.Point) *models.Point {
	if v != nil {
		return v
	}
	return fallback
}
