package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) UpdateStatus(ctx context.Context, id uuid.UUID, in services.StatusUpdate) (*models.Delivery, error) {
	args := m.Called(ctx, id, in)
	d, _ := args.Get(0).(*models.Delivery)
	return d, args.Error(1)
}

func ping(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandlePingAppliesStatusAndLocation(t *testing.T) {
	updater := new(mockUpdater)
	id := uuid.New()
	lat, lng := 23.7, 90.4
	updater.On("UpdateStatus", mock.Anything, id, services.StatusUpdate{
		Status:   "in_transit_to_pickup",
		Location: &models.Point{Lat: lat, Lng: lng},
	}).Return(&models.Delivery{}, nil)

	h := NewLocationHandler(updater, metrics.NewMetrics())
	err := h.Handle(context.Background(), ping(t, LocationPing{DeliveryID: id, Status: "in_transit_to_pickup", Lat: &lat, Lng: &lng}))
	require.NoError(t, err)
	updater.AssertExpectations(t)
}

func TestHandlePingPoison(t *testing.T) {
	h := NewLocationHandler(new(mockUpdater), nil)

	err := h.Handle(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, ErrPoison)

	err = h.Handle(context.Background(), ping(t, map[string]string{"status": "picked_up"}))
	assert.ErrorIs(t, err, ErrPoison)
}

func TestHandlePingClassifiesServiceErrors(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name   string
		err    error
		poison bool
	}{
		{"validation", &services.ValidationError{Message: "Invalid status"}, true},
		{"not found", &services.NotFoundError{Entity: "delivery", ID: id.String()}, true},
		{"precondition", &services.PreconditionFailedError{Entity: "delivery", Status: "completed"}, true},
		{"upstream", &services.UpstreamError{Op: "update", Err: errors.New("connection reset")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updater := new(mockUpdater)
			updater.On("UpdateStatus", mock.Anything, id, mock.Anything).Return(nil, tc.err)

			err := NewLocationHandler(updater, nil).Handle(context.Background(), ping(t, LocationPing{DeliveryID: id, Status: "bogus"}))
			require.Error(t, err)
			assert.Equal(t, tc.poison, errors.Is(err, ErrPoison))
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("always")
	})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryWithBackoff(ctx, 5, time.Hour, func() error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}
