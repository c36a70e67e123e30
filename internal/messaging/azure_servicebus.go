package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/notify"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// Publisher sends lifecycle events to the events queue; it is a notify sink
type Publisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
}

// NewClient creates a Service Bus client from the connection string
func NewClient(cfg config.AzureConfig) (*azservicebus.Client, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}
	return client, nil
}

// NewPublisher creates a sender for the events queue
func NewPublisher(client *azservicebus.Client, queueName, source string) (*Publisher, error) {
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}
	return &Publisher{client: client, sender: sender, queueName: queueName, source: source}, nil
}

// Notify implements notify.Notifier
func (p *Publisher) Notify(ctx context.Context, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := event.EntityID.String()
	msg := &azservicebus.Message{
		Body:        data,
		ContentType: to("application/json"),
		Subject:     to(string(event.Type)),
		ApplicationProperties: map[string]interface{}{
			"source":    p.source,
			"type":      string(event.Type),
			"entity_id": id,
			"time":      event.OccurredAt.UTC().Format(time.RFC3339),
		},
	}
	if event.MatchID != nil {
		msg.ApplicationProperties["match_id"] = event.MatchID.String()
	}

	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("failed to send event to %s: %w", p.queueName, err)
	}
	log.Debug().Str("queue", p.queueName).Str("event", string(event.Type)).Str("entity_id", id).Msg("Event published")
	return nil
}

// Close closes the sender
func (p *Publisher) Close(ctx context.Context) error {
	if p.sender != nil {
		return p.sender.Close(ctx)
	}
	return nil
}

func to[T any](v T) *T {
	return &v
}
