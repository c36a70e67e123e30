package services

import (
	"context"
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

// VolunteerService owns volunteer profiles and the user id to profile id conversion
type VolunteerService struct {
	base
	cache VolunteerCache
}

// NewVolunteerService creates a new volunteer service
func NewVolunteerService(deps Dependencies) *VolunteerService {
	return &VolunteerService{base: newBase(deps), cache: deps.Cache}
}

// ProfileInput holds the editable fields of a volunteer profile
type ProfileInput struct {
	VehicleType   string
	MaxCapacityKg float64
	Coordinates   *models.Point
	ServiceArea   *string
	IsAvailable   *bool
	Availability  datatypes.JSON
}

// ResolveVolunteer converts a user id or profile id into the volunteer profile.
// The profile's user must have the volunteer role.
func (s *VolunteerService) ResolveVolunteer(ctx context.Context, ref models.VolunteerRef) (*models.VolunteerProfile, error) {
	return s.resolve(ctx, s.repos.Volunteers, ref)
}

// resolve runs against the given repository so callers inside a transaction see their own writes
func (s *VolunteerService) resolve(ctx context.Context, repo *repositories.VolunteerRepository, ref models.VolunteerRef) (*models.VolunteerProfile, error) {
	var (
		profile *models.VolunteerProfile
		err     error
	)

	switch {
	case ref.ProfileID != nil:
		profile, err = repo.GetByID(ctx, *ref.ProfileID)
		if err != nil {
			return nil, lookup("volunteer_profile", ref.ProfileID, err)
		}
	case ref.UserID != nil:
		if id, ok := s.cachedProfileID(ctx, *ref.UserID); ok {
			profile, err = repo.GetByID(ctx, id)
			if err == nil && profile.UserID == *ref.UserID {
				break
			}
		}
		profile, err = repo.GetByUserID(ctx, *ref.UserID)
		if err != nil {
			return nil, lookup("volunteer_profile for user", ref.UserID, err)
		}
		if s.cache != nil {
			s.cache.SetVolunteerProfileID(ctx, profile.UserID, profile.ID)
		}
	default:
		return nil, &ValidationError{Message: "volunteer id is required"}
	}

	if profile.User == nil {
		return nil, lookup("user", profile.UserID, repositories.ErrNotFound)
	}
	if profile.User.Role != models.RoleVolunteer {
		return nil, precondition("volunteer user", profile.User.Role, []models.Role{models.RoleVolunteer}, "")
	}
	return profile, nil
}

func (s *VolunteerService) cachedProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool) {
	if s.cache == nil {
		return uuid.Nil, false
	}
	return s.cache.GetVolunteerProfileID(ctx, userID)
}

// UpsertProfile creates or updates the caller's profile; one profile per user
func (s *VolunteerService) UpsertProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*models.VolunteerProfile, bool, error) {
	start := time.Now()
	txn := s.tracer.StartTransaction("upsert-volunteer-profile")
	defer s.tracer.EndTransaction(txn)

	if in.Coordinates != nil {
		if err := in.Coordinates.Validate(); err != nil {
			return nil, false, &ValidationError{Message: err.Error()}
		}
	}
	if in.MaxCapacityKg < 0 {
		return nil, false, &ValidationError{Message: "max_capacity_kg must not be negative"}
	}

	var (
		profileID uuid.UUID
		created   bool
	)
	err := s.inTx(ctx, func(repos *repositories.Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return lookup("user", userID, err)
		}
		if user.Role != models.RoleVolunteer {
			return precondition("user", user.Role, []models.Role{models.RoleVolunteer}, "only volunteers have a volunteer profile")
		}

		existing, err := repos.Volunteers.GetByUserID(ctx, userID)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			profile := &models.VolunteerProfile{
				UserID:        userID,
				VehicleType:   in.VehicleType,
				MaxCapacityKg: in.MaxCapacityKg,
				Coordinates:   in.Coordinates,
				ServiceArea:   in.ServiceArea,
				IsAvailable:   in.IsAvailable == nil || *in.IsAvailable,
				Availability:  in.Availability,
			}
			if err := repos.Volunteers.Create(ctx, profile); err != nil {
				return upstream("failed to create volunteer profile", err)
			}
			profileID, created = profile.ID, true
			return nil
		case err != nil:
			return upstream("failed to load volunteer profile", err)
		}

		updates := map[string]interface{}{
			"vehicle_type":    in.VehicleType,
			"max_capacity_kg": in.MaxCapacityKg,
			"coordinates":     in.Coordinates,
			"service_area":    in.ServiceArea,
			"updated_at":      s.now(),
		}
		if in.IsAvailable != nil {
			updates["is_available"] = *in.IsAvailable
		}
		if in.Availability != nil {
			updates["availability"] = in.Availability
		}
		if err := repos.Volunteers.Update(ctx, existing.ID, updates); err != nil {
			return upstream("failed to update volunteer profile", err)
		}
		profileID = existing.ID
		return nil
	})
	s.metrics.RecordOperation("upsert_volunteer_profile", start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, false, err
	}

	if s.cache != nil {
		s.cache.SetVolunteerProfileID(ctx, userID, profileID)
	}

	profile, err := s.repos.Volunteers.GetByID(ctx, profileID)
	if err != nil {
		return nil, false, lookup("volunteer_profile", profileID, err)
	}
	return profile, created, nil
}

// GetProfile gets a profile by profile id
func (s *VolunteerService) GetProfile(ctx context.Context, id uuid.UUID) (*models.VolunteerProfile, error) {
	profile, err := s.repos.Volunteers.GetByID(ctx, id)
	if err != nil {
		return nil, lookup("volunteer_profile", id, err)
	}
	return profile, nil
}

// GetProfileByUser gets the profile owned by a user
func (s *VolunteerService) GetProfileByUser(ctx context.Context, userID uuid.UUID) (*models.VolunteerProfile, error) {
	profile, err := s.repos.Volunteers.GetByUserID(ctx, userID)
	if err != nil {
		return nil, lookup("volunteer_profile for user", userID, err)
	}
	return profile, nil
}

// ListAvailable lists volunteers currently accepting deliveries
func (s *VolunteerService) ListAvailable(ctx context.Context, vehicleType string, page repositories.Page) ([]models.VolunteerProfile, error) {
	profiles, err := s.repos.Volunteers.ListAvailable(ctx, vehicleType, page)
	if err != nil {
		return nil, upstream("failed to list volunteers", err)
	}
	return profiles, nil
}
