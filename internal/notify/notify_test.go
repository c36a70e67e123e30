package notify

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMulti().Add("a", a).Add("b", b).Add("nil", nil)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.Notify(context.Background(), Event{Type: MatchCreated}))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestMultiKeepsGoingAfterFailure(t *testing.T) {
	bad, good := &recorder{err: errors.New("down")}, &recorder{}
	m := NewMulti().Add("bad", bad).Add("good", good)

	err := m.Notify(context.Background(), Event{Type: DeliveryStatusChanged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.events, 1)
}

func TestRecipientsDedupes(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	nilID := uuid.Nil
	got := Recipients(&a, nil, &b, &a, &nilID)
	assert.Equal(t, []uuid.UUID{a, b}, got)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestTelegramPostsOnlyGroupEvents(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{api: bot, chatID: -100}
	ctx := context.Background()

	require.NoError(t, tg.Notify(ctx, Event{Type: MatchCreated, EntityID: uuid.New(), Status: "suggested", Data: map[string]interface{}{"item_name": "Rice"}}))
	require.NoError(t, tg.Notify(ctx, Event{Type: MatchCreated, EntityID: uuid.New(), Status: "assigned"}))
	require.NoError(t, tg.Notify(ctx, Event{Type: DeliveryStatusChanged, EntityID: uuid.New(), Status: "picked_up"}))
	require.NoError(t, tg.Notify(ctx, Event{Type: DeliveryCreated, EntityID: uuid.New(), Status: "pending_assignment"}))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(-100), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "Rice")
	assert.Contains(t, bot.sent[1].Text, "waiting for a volunteer")
}
