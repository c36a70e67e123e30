package services

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) assignedDelivery(t *testing.T) (scenario, *MatchResult) {
	t.Helper()

	s := f.scenario(t)
	result, err := f.matching.CreateMatch(context.Background(), CreateMatchInput{
		DonationID: s.donation.ID,
		RequestID:  s.request.ID,
		Volunteer:  models.VolunteerRef{ProfileID: &s.profile.ID},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Delivery)
	return s, result
}

func TestUpdateStatusRejectsUnknownStatusWithoutWriting(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	_, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "teleported"})
	v := requireAs[*ValidationError](t, err)
	assert.Equal(t, "Invalid status", v.Message)
	assert.Contains(t, v.Details["allowed"], "in_transit_to_delivery")

	delivery, err := f.deliveries.GetDelivery(ctx, result.Delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAssigned, delivery.Status)
	assert.Nil(t, delivery.PickupActualAt)
}

func TestUpdateStatusUnknownStatusBeatsUnknownDelivery(t *testing.T) {
	f := newFixture(t)

	_, err := f.deliveries.UpdateStatus(context.Background(), uuid.New(), StatusUpdate{Status: "bogus"})
	requireAs[*ValidationError](t, err)
}

func TestUpdateStatusPickedUpStampsClockAndLocation(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	notes := "two sacks loaded"
	loc := &models.Point{Lat: 24.9, Lng: 91.87}
	delivery, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{
		Status:   "picked_up",
		Location: loc,
		Notes:    &notes,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DeliveryPickedUp, delivery.Status)
	require.NotNil(t, delivery.PickupActualAt)
	assert.True(t, testutil.Epoch.Equal(*delivery.PickupActualAt), "pickup at %v", delivery.PickupActualAt)
	require.NotNil(t, delivery.PickupNotes)
	assert.Equal(t, notes, *delivery.PickupNotes)
	require.NotNil(t, delivery.CurrentLocation)
	assert.Equal(t, *loc, *delivery.CurrentLocation)
	require.NotNil(t, delivery.LastLocationUpdate)

	assert.Contains(t, f.events.types(), notify.DeliveryStatusChanged)
}

func TestUpdateStatusRejectsMovingBackward(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	_, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "picked_up"})
	require.NoError(t, err)

	_, err = f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "assigned"})
	pre := requireAs[*PreconditionFailedError](t, err)
	assert.Equal(t, "picked_up", pre.Status)
	assert.NotContains(t, pre.Allowed, "assigned")
}

func TestUpdateStatusSameStatusKeepsFirstTimestamp(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	_, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "picked_up"})
	require.NoError(t, err)

	later := testutil.Epoch.Add(30 * time.Minute)
	f.deliveries.now = func() time.Time { return later }

	loc := &models.Point{Lat: 24.95, Lng: 91.8}
	delivery, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "picked_up", Location: loc})
	require.NoError(t, err)
	assert.True(t, testutil.Epoch.Equal(*delivery.PickupActualAt))
	assert.True(t, later.Equal(*delivery.LastLocationUpdate))
}

func TestCompletingDeliveryCompletesMatch(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	delivery, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCompleted, delivery.Status)
	require.NotNil(t, delivery.DeliveryActualAt)

	match, err := f.matching.GetMatch(ctx, result.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, match.Status)
	assert.Equal(t, int64(1), f.metrics.GetCounters()["deliveries_completed"])

	_, err = f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "cancelled"})
	requireAs[*PreconditionFailedError](t, err)
}

func TestCompletingDeliveryStampsDeliveryTimeOnEachEntry(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	delivered, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "delivered"})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveryActualAt)
	assert.True(t, testutil.Epoch.Equal(*delivered.DeliveryActualAt))

	later := testutil.Epoch.Add(time.Hour)
	f.deliveries.now = func() time.Time { return later }

	completed, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "completed"})
	require.NoError(t, err)
	require.NotNil(t, completed.DeliveryActualAt)
	assert.True(t, later.Equal(*completed.DeliveryActualAt), "delivered at %v", completed.DeliveryActualAt)
}

func TestMatchWithSeveralDeliveriesCompletesEach(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	second, err := f.deliveries.CreateDelivery(ctx, CreateDeliveryInput{MatchID: result.Match.ID})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAssigned, second.Status)
	assert.Equal(t, int64(2), testutil.Count(t, f.db, &models.Delivery{}))

	_, err = f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "completed"})
	require.NoError(t, err)
	match, err := f.matching.GetMatch(ctx, result.Match.ID)
	require.NoError(t, err)
	require.Equal(t, models.MatchCompleted, match.Status)

	delivery, err := f.deliveries.UpdateStatus(ctx, second.ID, StatusUpdate{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCompleted, delivery.Status)
	require.NotNil(t, delivery.DeliveryActualAt)

	match, err = f.matching.GetMatch(ctx, result.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, match.Status)
	assert.Equal(t, int64(2), f.metrics.GetCounters()["deliveries_completed"])

	_, err = f.deliveries.CreateDelivery(ctx, CreateDeliveryInput{MatchID: result.Match.ID})
	requireAs[*PreconditionFailedError](t, err)
}

func TestUpdateStatusRequiresVolunteerBeyondPending(t *testing.T) {
	f := newFixture(t)
	s := f.scenario(t)
	ctx := context.Background()

	result, err := f.matching.CreateMatch(ctx, CreateMatchInput{DonationID: s.donation.ID, RequestID: s.request.ID})
	require.NoError(t, err)
	delivery, err := f.deliveries.CreateDelivery(ctx, CreateDeliveryInput{MatchID: result.Match.ID})
	require.NoError(t, err)

	_, err = f.deliveries.UpdateStatus(ctx, delivery.ID, StatusUpdate{Status: "picked_up"})
	pre := requireAs[*PreconditionFailedError](t, err)
	assert.Equal(t, "no volunteer assigned", pre.Reason)

	cancelled, err := f.deliveries.UpdateStatus(ctx, delivery.ID, StatusUpdate{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryCancelled, cancelled.Status)
}

func TestCreateDeliveryInheritsMatchVolunteer(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)

	delivery, err := f.deliveries.CreateDelivery(context.Background(), CreateDeliveryInput{MatchID: result.Match.ID})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAssigned, delivery.Status)
	require.NotNil(t, delivery.VolunteerID)
	assert.Equal(t, *result.Match.AssignedVolunteerID, *delivery.VolunteerID)
}

func TestCreateDeliveryForUnknownMatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.deliveries.CreateDelivery(context.Background(), CreateDeliveryInput{MatchID: uuid.New()})
	nf := requireAs[*NotFoundError](t, err)
	assert.Equal(t, "match", nf.Entity)
}

func TestAssignVolunteerToDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s, result := f.assignedDelivery(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		delivery, err := f.deliveries.AssignVolunteer(ctx, result.Delivery.ID, models.VolunteerRef{UserID: &s.volunteer.ID})
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryAssigned, delivery.Status)
		assert.Equal(t, s.profile.ID, *delivery.VolunteerID)
	}

	match, err := f.matching.GetMatch(ctx, result.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, s.profile.ID, *match.AssignedVolunteerID)
}

func TestAssignVolunteerAfterPickupFails(t *testing.T) {
	f := newFixture(t)
	s, result := f.assignedDelivery(t)
	ctx := context.Background()

	_, err := f.deliveries.UpdateStatus(ctx, result.Delivery.ID, StatusUpdate{Status: "in_transit_to_pickup"})
	require.NoError(t, err)

	_, err = f.deliveries.AssignVolunteer(ctx, result.Delivery.ID, models.VolunteerRef{ProfileID: &s.profile.ID})
	requireAs[*PreconditionFailedError](t, err)
}

type fakeProofs struct {
	key  string
	body []byte
	err  error
}

func (p *fakeProofs) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.key = key
	p.body, _ = io.ReadAll(body)
	return "https://cdn.example.com/" + key, nil
}

func TestUploadProofStoresURL(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	proofs := &fakeProofs{}
	f.deliveries.proofs = proofs

	delivery, err := f.deliveries.UploadProof(context.Background(), result.Delivery.ID, ProofPickup,
		bytes.NewReader([]byte("jpeg")), "image/jpeg")
	require.NoError(t, err)
	require.NotNil(t, delivery.PickupProofURL)
	assert.Equal(t, "https://cdn.example.com/"+proofs.key, *delivery.PickupProofURL)
	assert.Contains(t, proofs.key, result.Delivery.ID.String())
	assert.Equal(t, []byte("jpeg"), proofs.body)
	assert.Nil(t, delivery.DeliveryProofURL)
}

func TestUploadProofErrors(t *testing.T) {
	f := newFixture(t)
	_, result := f.assignedDelivery(t)
	ctx := context.Background()

	_, err := f.deliveries.UploadProof(ctx, result.Delivery.ID, ProofPickup, bytes.NewReader(nil), "image/jpeg")
	requireAs[*UpstreamError](t, err)

	f.deliveries.proofs = &fakeProofs{err: errors.New("s3 down")}
	_, err = f.deliveries.UploadProof(ctx, result.Delivery.ID, "selfie", bytes.NewReader(nil), "image/jpeg")
	requireAs[*ValidationError](t, err)

	_, err = f.deliveries.UploadProof(ctx, result.Delivery.ID, ProofDelivery, bytes.NewReader(nil), "image/jpeg")
	requireAs[*UpstreamError](t, err)
}
