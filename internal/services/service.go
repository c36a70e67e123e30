package services

import (
	"context"
	"io"
	"time"

	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/notify"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Indexer keeps the search index in step with the store
type Indexer interface {
	IndexDonation(ctx context.Context, donation *models.Donation) error
	IndexRequest(ctx context.Context, request *models.ReliefRequest) error
}

// Searcher runs free-text queries against the index
type Searcher interface {
	SearchDonations(ctx context.Context, query string, limit int) ([]uuid.UUID, error)
}

// VolunteerCache remembers which profile belongs to which volunteer user
type VolunteerCache interface {
	GetVolunteerProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool)
	SetVolunteerProfileID(ctx context.Context, userID, profileID uuid.UUID)
}

// ProofStore persists delivery proof photos and returns a public URL
type ProofStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Dependencies are the collaborators shared by every service
type Dependencies struct {
	DB         *gorm.DB // Write database
	ReadOnlyDB *gorm.DB // Read-only database
	Notifier   notify.Notifier
	Indexer    Indexer
	Searcher   Searcher
	Cache      VolunteerCache
	Proofs     ProofStore
	Metrics    *metrics.Metrics
	Tracer     tracing.Tracer
	Clock      func() time.Time
}

// base holds what every service needs; it is embedded by value
type base struct {
	db       *gorm.DB
	repos    *repositories.Repositories
	notifier notify.Notifier
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
	now      func() time.Time
}

func newBase(deps Dependencies) base {
	b := base{
		db:       deps.DB,
		repos:    repositories.New(deps.DB, deps.ReadOnlyDB),
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		now:      deps.Clock,
	}
	if b.notifier == nil {
		b.notifier = notify.Nop{}
	}
	if b.tracer == nil {
		b.tracer = tracing.NewNoopTracer()
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b
}

// inTx runs fn in one transaction with repositories bound to it
func (b base) inTx(ctx context.Context, fn func(repos *repositories.Repositories) error) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(b.repos.WithTx(tx))
	})
}

// publish sends an event after commit; failures are logged and never returned
func (b base) publish(ctx context.Context, event notify.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}
	if err := b.notifier.Notify(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("event", string(event.Type)).
			Str("entity_id", event.EntityID.String()).
			Msg("Notification not delivered")
		b.count("notifications_failed")
		return
	}
	b.count("notifications_sent")
}

// count increments a counter when metrics are enabled
func (b base) count(name string) {
	if b.metrics != nil {
		b.metrics.IncrementCounter(name)
	}
}

// parties returns the donor, requester and volunteer user of a match for notifications
func (b base) parties(ctx context.Context, matchID uuid.UUID) []uuid.UUID {
	match, err := b.repos.Matches.GetWithParties(ctx, matchID)
	if err != nil {
		log.Warn().Err(err).Str("match_id", matchID.String()).Msg("Could not load match parties for notification")
		return nil
	}

	var donorID, requesterID, volunteerUserID *uuid.UUID
	if match.Donation != nil {
		donorID = &match.Donation.DonorID
	}
	if match.Request != nil {
		requesterID = &match.Request.RequesterID
	}
	if match.AssignedVolunteerID != nil {
		if profile, err := b.repos.Volunteers.GetByID(ctx, *match.AssignedVolunteerID); err == nil {
			volunteerUserID = &profile.UserID
		}
	}
	return notify.Recipients(donorID, requesterID, volunteerUserID)
}
