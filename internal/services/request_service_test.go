package services

import (
	"context"
	"testing"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestValidatesCounts(t *testing.T) {
	f := newFixture(t)
	ngo := Actor{UserID: uuid.New(), Role: models.RoleNGO}
	ctx := context.Background()

	_, err := f.requests.Create(ctx, ngo, CreateRequestInput{ItemName: "Water", Quantity: 10, BeneficiariesCount: 0})
	requireAs[*ValidationError](t, err)

	request, err := f.requests.Create(ctx, ngo, CreateRequestInput{
		ItemName:           "Water",
		Category:           "water",
		Quantity:           10,
		Unit:               "l",
		BeneficiariesCount: 25,
		DeliveryAddress:    "Chhatak",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPendingValidation, request.Status)
	assert.Equal(t, ngo.UserID, request.RequesterID)
}

func TestRequestStatusUpdate(t *testing.T) {
	f := newFixture(t)
	ngo := testutil.CreateUser(t, f.db, models.RoleNGO)
	request := testutil.CreateRequest(t, f.db, ngo.ID, models.RequestActive)
	owner := Actor{UserID: ngo.ID, Role: models.RoleNGO}
	ctx := context.Background()

	_, err := f.requests.UpdateStatus(ctx, owner, request.ID, "active")
	v := requireAs[*ValidationError](t, err)
	assert.Equal(t, "Invalid status", v.Message)

	_, err = f.requests.UpdateStatus(ctx, Actor{UserID: uuid.New(), Role: models.RoleNGO}, request.ID, "fulfilled")
	requireAs[*AuthError](t, err)

	got, err := f.requests.UpdateStatus(ctx, owner, request.ID, "fulfilled")
	require.NoError(t, err)
	assert.Equal(t, models.RequestFulfilled, got.Status)

	_, err = f.requests.UpdateStatus(ctx, Actor{UserID: uuid.New(), Role: models.RoleAdmin}, request.ID, "cancelled")
	requireAs[*PreconditionFailedError](t, err)
}

func TestValidateRequest(t *testing.T) {
	f := newFixture(t)
	ngo := testutil.CreateUser(t, f.db, models.RoleNGO)
	request := testutil.CreateRequest(t, f.db, ngo.ID, models.RequestPendingValidation)

	got, err := f.requests.Validate(context.Background(), request.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestActive, got.Status)

	_, err = f.requests.Validate(context.Background(), uuid.New(), true, nil)
	requireAs[*NotFoundError](t, err)
}
