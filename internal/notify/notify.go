package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventType names a lifecycle event
type EventType string

const (
	MatchCreated              EventType = "match.created"
	MatchVolunteerAssigned    EventType = "match.volunteer_assigned"
	MatchCancelled            EventType = "match.cancelled"
	DeliveryCreated           EventType = "delivery.created"
	DeliveryStatusChanged     EventType = "delivery.status_changed"
	DeliveryVolunteerAssigned EventType = "delivery.volunteer_assigned"
	DonationValidated         EventType = "donation.validated"
	RequestValidated          EventType = "request.validated"
)

// Event is published after a state change has committed
type Event struct {
	Type       EventType              `json:"type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	MatchID    *uuid.UUID             `json:"match_id,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Previous   string                 `json:"previous_status,omitempty"`
	Recipients []uuid.UUID            `json:"recipients"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Notifier delivers events to interested users
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers and joins their failures
type Multi struct {
	sinks []namedSink
}

type namedSink struct {
	name     string
	notifier Notifier
}

// NewMulti creates an empty fan-out notifier
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under a name used in logs
func (m *Multi) Add(name string, n Notifier) *Multi {
	if n != nil {
		m.sinks = append(m.sinks, namedSink{name: name, notifier: n})
	}
	return m
}

// Len returns the number of registered sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Notify sends to every sink; one failing sink does not stop the others
func (m *Multi) Notify(ctx context.Context, event Event) error {
	var failed []string
	for _, s := range m.sinks {
		if err := s.notifier.Notify(ctx, event); err != nil {
			log.Warn().
				Err(err).
				Str("sink", s.name).
				Str("event", string(event.Type)).
				Str("entity_id", event.EntityID.String()).
				Msg("Failed to deliver notification")
			failed = append(failed, s.name)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("notification failed on %d sink(s): %v", len(failed), failed)
	}
	return nil
}

// Recipients collects the non-nil user ids once each
func Recipients(ids ...*uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == nil || *id == uuid.Nil || seen[*id] {
			continue
		}
		seen[*id] = true
		out = append(out, *id)
	}
	return out
}
