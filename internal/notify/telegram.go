package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts events that need a volunteer to the volunteer group chat
type Telegram struct {
	api    messageSender
	chatID int64
}

// NewTelegram connects the bot; the token is validated by the Telegram API
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Notify implements Notifier; events the group does not care about are skipped
func (t *Telegram) Notify(_ context.Context, event Event) error {
	text, ok := groupMessage(event)
	if !ok {
		return nil
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}
	return nil
}

func groupMessage(event Event) (string, bool) {
	short := event.EntityID.String()[:8]
	switch event.Type {
	case MatchCreated:
		if event.Status != "suggested" {
			return "", false
		}
		item, _ := event.Data["item_name"].(string)
		if item == "" {
			item = "relief goods"
		}
		return fmt.Sprintf("New match %s for %s needs a volunteer. Open the app to take the delivery.", short, item), true
	case DeliveryCreated:
		if event.Status != "pending_assignment" {
			return "", false
		}
		return fmt.Sprintf("Delivery %s is waiting for a volunteer.", short), true
	case MatchCancelled:
		return fmt.Sprintf("Match %s was cancelled; its open deliveries are called off.", short), true
	default:
		return "", false
	}
}
