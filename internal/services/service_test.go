package services

import (
	"context"
	"sync"
	"testing"

	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db         *gorm.DB
	events     *recorder
	metrics    *metrics.Metrics
	donations  *DonationService
	requests   *RequestService
	volunteers *VolunteerService
	matching   *MatchingService
	deliveries *DeliveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.OpenTestDB(t)
	f := &fixture{db: db, events: &recorder{}, metrics: metrics.NewMetrics()}
	deps := Dependencies{
		DB:         db,
		ReadOnlyDB: db,
		Notifier:   f.events,
		Metrics:    f.metrics,
		Clock:      testutil.Clock(),
	}
	f.donations = NewDonationService(deps)
	f.requests = NewRequestService(deps)
	f.volunteers = NewVolunteerService(deps)
	f.matching = NewMatchingService(deps, f.volunteers)
	f.deliveries = NewDeliveryService(deps, f.volunteers)
	return f
}

// scenario is an available donation, an active request and a volunteer
type scenario struct {
	donor     *models.User
	ngo       *models.User
	donation  *models.Donation
	request   *models.ReliefRequest
	volunteer *models.User
	profile   *models.VolunteerProfile
}

func (f *fixture) scenario(t *testing.T) scenario {
	t.Helper()

	var s scenario
	s.donor = testutil.CreateUser(t, f.db, models.RoleDonor)
	s.ngo = testutil.CreateUser(t, f.db, models.RoleNGO)
	s.donation = testutil.CreateDonation(t, f.db, s.donor.ID, models.DonationAvailable)
	s.request = testutil.CreateRequest(t, f.db, s.ngo.ID, models.RequestActive)
	s.volunteer, s.profile = testutil.CreateVolunteer(t, f.db)
	return s
}

func requireAs[T error](t *testing.T, err error) T {
	t.Helper()

	var target T
	require.Error(t, err)
	require.True(t, errors.As(err, &target), "got %T: %v", err, err)
	return target
}
