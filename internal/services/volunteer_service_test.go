package services

import (
	"context"
	"testing"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type mapCache struct {
	ids  map[uuid.UUID]uuid.UUID
	hits int
}

func (c *mapCache) GetVolunteerProfileID(_ context.Context, userID uuid.UUID) (uuid.UUID, bool) {
	id, ok := c.ids[userID]
	if ok {
		c.hits++
	}
	return id, ok
}

func (c *mapCache) SetVolunteerProfileID(_ context.Context, userID, profileID uuid.UUID) {
	c.ids[userID] = profileID
}

func TestUpsertProfileCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, models.RoleVolunteer)
	ctx := context.Background()

	area := "Sylhet Sadar"
	profile, created, err := f.volunteers.UpsertProfile(ctx, user.ID, ProfileInput{
		VehicleType:   "bicycle",
		MaxCapacityKg: 20,
		ServiceArea:   &area,
		Availability:  datatypes.JSON(`{"weekdays":["sat","sun"]}`),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, profile.IsAvailable)
	assert.Equal(t, "bicycle", profile.VehicleType)

	off := false
	updated, created, err := f.volunteers.UpsertProfile(ctx, user.ID, ProfileInput{
		VehicleType:   "truck",
		MaxCapacityKg: 900,
		IsAvailable:   &off,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, profile.ID, updated.ID)
	assert.Equal(t, "truck", updated.VehicleType)
	assert.False(t, updated.IsAvailable)
	assert.JSONEq(t, `{"weekdays":["sat","sun"]}`, string(updated.Availability))

	assert.Equal(t, int64(1), testutil.Count(t, f.db, &models.VolunteerProfile{}))
}

func TestUpsertProfileRejectsNonVolunteer(t *testing.T) {
	f := newFixture(t)
	donor := testutil.CreateUser(t, f.db, models.RoleDonor)

	_, _, err := f.volunteers.UpsertProfile(context.Background(), donor.ID, ProfileInput{VehicleType: "car"})
	requireAs[*PreconditionFailedError](t, err)
}

func TestResolveVolunteerByUserOrProfile(t *testing.T) {
	f := newFixture(t)
	user, profile := testutil.CreateVolunteer(t, f.db)
	ctx := context.Background()

	byUser, err := f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, byUser.ID)

	byProfile, err := f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{ProfileID: &profile.ID})
	require.NoError(t, err)
	assert.Equal(t, user.ID, byProfile.UserID)

	_, err = f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{})
	requireAs[*ValidationError](t, err)

	missing := uuid.New()
	_, err = f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{UserID: &missing})
	requireAs[*NotFoundError](t, err)
}

func TestResolveVolunteerUsesCache(t *testing.T) {
	f := newFixture(t)
	user, profile := testutil.CreateVolunteer(t, f.db)
	cache := &mapCache{ids: map[uuid.UUID]uuid.UUID{}}
	f.volunteers.cache = cache
	ctx := context.Background()

	_, err := f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, cache.ids[user.ID])
	assert.Zero(t, cache.hits)

	got, err := f.volunteers.ResolveVolunteer(ctx, models.VolunteerRef{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)
	assert.Equal(t, 1, cache.hits)
}

func TestListAvailableFiltersVehicle(t *testing.T) {
	f := newFixture(t)
	_, bike := testutil.CreateVolunteer(t, f.db)
	_, moto := testutil.CreateVolunteer(t, f.db)
	require.NoError(t, f.db.Model(bike).Update("vehicle_type", "bicycle").Error)
	require.NoError(t, f.db.Model(&models.VolunteerProfile{}).Where("id = ?", moto.ID).Update("is_available", false).Error)

	all, err := f.volunteers.ListAvailable(context.Background(), "", repositories.Page{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, bike.ID, all[0].ID)

	trucks, err := f.volunteers.ListAvailable(context.Background(), "truck", repositories.Page{})
	require.NoError(t, err)
	assert.Empty(t, trucks)
}
