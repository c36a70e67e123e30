package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LocationPing is a volunteer app's status and position report for a delivery
type LocationPing struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Status     string    `json:"status"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
}

// StatusUpdater applies a delivery status change
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, in services.StatusUpdate) (*models.Delivery, error)
}

// ErrPoison marks a message that can never succeed and must not be redelivered
var ErrPoison = errors.New("message cannot be processed")

// LocationHandler turns pings into delivery status updates
type LocationHandler struct {
	deliveries StatusUpdater
	metrics    *metrics.Metrics
}

// NewLocationHandler creates a ping handler
func NewLocationHandler(deliveries StatusUpdater, m *metrics.Metrics) *LocationHandler {
	return &LocationHandler{deliveries: deliveries, metrics: m}
}

// Handle processes one message body. Errors wrapping ErrPoison are permanent.
func (h *LocationHandler) Handle(ctx context.Context, body []byte) error {
	start := time.Now()
	err := h.handle(ctx, body)
	h.metrics.RecordOperation("location_ping", start, err)
	return err
}

func (h *LocationHandler) handle(ctx context.Context, body []byte) error {
	var ping LocationPing
	if err := json.Unmarshal(body, &ping); err != nil {
		return errors.Wrapf(ErrPoison, "invalid ping payload: %v", err)
	}
	if ping.DeliveryID == uuid.Nil {
		return errors.Wrap(ErrPoison, "ping has no delivery_id")
	}

	update := services.StatusUpdate{Status: ping.Status, Notes: ping.Notes}
	if ping.Lat != nil && ping.Lng != nil {
		update.Location = &models.Point{Lat: *ping.Lat, Lng: *ping.Lng}
	}

	_, err := h.deliveries.UpdateStatus(ctx, ping.DeliveryID, update)
	if err == nil {
		return nil
	}

	var (
		verr *services.ValidationError
		nerr *services.NotFoundError
		perr *services.PreconditionFailedError
	)
	if errors.As(err, &verr) || errors.As(err, &nerr) || errors.As(err, &perr) {
		return errors.Wrapf(ErrPoison, "delivery %s: %v", ping.DeliveryID, err)
	}
	return err
}

// Consumer receives location pings in peek-lock mode
type Consumer struct {
	client    *azservicebus.Client
	queueName string
	handler   *LocationHandler
	batch     int
}

// NewConsumer creates a consumer for the location queue
func NewConsumer(client *azservicebus.Client, queueName string, handler *LocationHandler) *Consumer {
	return &Consumer{client: client, queueName: queueName, handler: handler, batch: 10}
}

// Run receives until ctx is cancelled. Poison messages are dead-lettered and
// transient failures are abandoned for redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	var receiver *azservicebus.Receiver
	err := RetryWithBackoff(ctx, 5, time.Second, func() error {
		var err error
		receiver, err = c.client.NewReceiverForQueue(c.queueName, &azservicebus.ReceiverOptions{
			ReceiveMode: azservicebus.ReceiveModePeekLock,
		})
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create receiver for queue %s", c.queueName)
	}
	defer receiver.Close(context.Background())

	log.Info().Str("queue", c.queueName).Msg("Location consumer started")
	for {
		messages, err := receiver.ReceiveMessages(ctx, c.batch, nil)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Str("queue", c.queueName).Msg("Location consumer stopped")
				return nil
			}
			log.Error().Err(err).Str("queue", c.queueName).Msg("Error receiving messages")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, message := range messages {
			c.settle(ctx, receiver, message)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, receiver *azservicebus.Receiver, message *azservicebus.ReceivedMessage) {
	err := c.handler.Handle(ctx, message.Body)
	switch {
	case err == nil:
		if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
		}
	case errors.Is(err, ErrPoison):
		log.Warn().Err(err).Str("message_id", message.MessageID).Msg("Dead-lettering location ping")
		reason := "unprocessable"
		desc := err.Error()
		if err := receiver.DeadLetterMessage(ctx, message, &azservicebus.DeadLetterOptions{Reason: &reason, ErrorDescription: &desc}); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to dead-letter message")
		}
	default:
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Error processing location ping")
		if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to abandon message")
		}
	}
}

// RetryWithBackoff retries fn with doubling delays until it succeeds, attempts run out or ctx ends
func RetryWithBackoff(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Dur("retry_in", delay).Msg("Operation failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
