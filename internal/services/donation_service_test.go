package services

import (
	"context"
	"testing"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	donations map[uuid.UUID]models.DonationStatus
	requests  map[uuid.UUID]models.RequestStatus
	hits      []uuid.UUID
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{donations: map[uuid.UUID]models.DonationStatus{}, requests: map[uuid.UUID]models.RequestStatus{}}
}

func (f *fakeIndex) IndexDonation(_ context.Context, d *models.Donation) error {
	f.donations[d.ID] = d.Status
	return nil
}

func (f *fakeIndex) IndexRequest(_ context.Context, r *models.ReliefRequest) error {
	f.requests[r.ID] = r.Status
	return nil
}

func (f *fakeIndex) SearchDonations(context.Context, string, int) ([]uuid.UUID, error) {
	return f.hits, nil
}

func TestCreateDonationStartsPendingAndIsIndexed(t *testing.T) {
	f := newFixture(t)
	index := newFakeIndex()
	f.donations.indexer = index
	donor := testutil.CreateUser(t, f.db, models.RoleDonor)

	donation, err := f.donations.Create(context.Background(), Actor{UserID: donor.ID, Role: models.RoleDonor}, CreateDonationInput{
		ItemName:      "Blankets",
		Category:      "blankets",
		Quantity:      30,
		Unit:          "pcs",
		PickupAddress: "Ambarkhana",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DonationPendingValidation, donation.Status)
	assert.Equal(t, "medium", donation.Urgency)
	assert.Equal(t, models.DonationPendingValidation, index.donations[donation.ID])
}

func TestCreateDonationValidatesInput(t *testing.T) {
	f := newFixture(t)
	actor := Actor{UserID: uuid.New(), Role: models.RoleDonor}
	ctx := context.Background()

	_, err := f.donations.Create(ctx, actor, CreateDonationInput{ItemName: "Rice", Quantity: 0})
	requireAs[*ValidationError](t, err)

	_, err = f.donations.Create(ctx, actor, CreateDonationInput{
		ItemName:          "Rice",
		Quantity:          1,
		PickupCoordinates: &models.Point{Lat: 120, Lng: 90},
	})
	v := requireAs[*ValidationError](t, err)
	assert.Equal(t, "pickup_coordinates", v.Details["field"])
}

func TestValidateDonation(t *testing.T) {
	f := newFixture(t)
	donor := testutil.CreateUser(t, f.db, models.RoleDonor)
	ctx := context.Background()

	approved := testutil.CreateDonation(t, f.db, donor.ID, models.DonationPendingValidation)
	got, err := f.donations.Validate(ctx, approved.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DonationAvailable, got.Status)
	assert.Equal(t, []notify.EventType{notify.DonationValidated}, f.events.types())

	_, err = f.donations.Validate(ctx, approved.ID, true, nil)
	requireAs[*PreconditionFailedError](t, err)

	rejected := testutil.CreateDonation(t, f.db, donor.ID, models.DonationPendingValidation)
	_, err = f.donations.Validate(ctx, rejected.ID, false, nil)
	requireAs[*ValidationError](t, err)

	reason := "expired food"
	got, err = f.donations.Validate(ctx, rejected.ID, false, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.DonationRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, reason, *got.RejectionReason)
}

func TestCancelDonationOwnership(t *testing.T) {
	f := newFixture(t)
	donor := testutil.CreateUser(t, f.db, models.RoleDonor)
	donation := testutil.CreateDonation(t, f.db, donor.ID, models.DonationAvailable)
	ctx := context.Background()

	_, err := f.donations.Cancel(ctx, Actor{UserID: uuid.New(), Role: models.RoleDonor}, donation.ID)
	authErr := requireAs[*AuthError](t, err)
	assert.True(t, authErr.Forbidden)

	got, err := f.donations.Cancel(ctx, Actor{UserID: donor.ID, Role: models.RoleDonor}, donation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationCancelled, got.Status)
}

func TestSearchKeepsIndexOrder(t *testing.T) {
	f := newFixture(t)
	donor := testutil.CreateUser(t, f.db, models.RoleDonor)
	first := testutil.CreateDonation(t, f.db, donor.ID, models.DonationAvailable)
	second := testutil.CreateDonation(t, f.db, donor.ID, models.DonationAvailable)

	index := newFakeIndex()
	index.hits = []uuid.UUID{second.ID, uuid.New(), first.ID}
	f.donations.searcher = index

	got, err := f.donations.Search(context.Background(), "rice", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	_, err = f.donations.Search(context.Background(), "", 10)
	requireAs[*ValidationError](t, err)
}

func TestReindexWalksEveryRow(t *testing.T) {
	f := newFixture(t)
	index := newFakeIndex()
	f.donations.indexer = index
	f.requests.indexer = index

	donor := testutil.CreateUser(t, f.db, models.RoleDonor)
	ngo := testutil.CreateUser(t, f.db, models.RoleNGO)
	for i := 0; i < 5; i++ {
		testutil.CreateDonation(t, f.db, donor.ID, models.DonationAvailable)
	}
	testutil.CreateRequest(t, f.db, ngo.ID, models.RequestActive)

	n, err := f.donations.Reindex(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, index.donations, 5)

	n, err = f.requests.Reindex(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
