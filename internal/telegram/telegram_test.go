package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/shopbot/internal/engine"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
	updates  chan tgbotapi.Update
	stopped  bool
	timeout  int
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 8)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, b.err
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: b.err == nil}, b.err
}

func (b *fakeBot) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	b.mu.Lock()
	b.timeout = cfg.Timeout
	b.mu.Unlock()
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

func TestTransport_SendTextWithKeyboard(t *testing.T) {
	bot := newFakeBot()
	tr := NewTransport(bot)
	kb := engine.Keyboard{}.
		Row(engine.KeyButton{Label: "Widget", Data: "product:7"}).
		Row(engine.KeyButton{Label: "Cart", Data: "cart"}, engine.KeyButton{Label: "Menu", Data: "menu"})

	require.NoError(t, tr.SendText(context.Background(), 10, "Products:", kb))

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, int64(10), msg.ChatID)
	require.Equal(t, "Products:", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[1], 2)
	require.Equal(t, "Cart", markup.InlineKeyboard[1][0].Text)
	require.Equal(t, "cart", *markup.InlineKeyboard[1][0].CallbackData)
}

func TestTransport_SendTextWithoutKeyboard(t *testing.T) {
	bot := newFakeBot()
	require.NoError(t, NewTransport(bot).SendText(context.Background(), 10, "hi", nil))

	msg := bot.sent[0].(tgbotapi.MessageConfig)
	require.Nil(t, msg.ReplyMarkup)
}

func TestTransport_SendPhoto(t *testing.T) {
	bot := newFakeBot()
	photo := []byte{0xff, 0xd8}

	require.NoError(t, NewTransport(bot).SendPhoto(context.Background(), 10, photo, "Widget", nil))

	msg, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	require.Equal(t, "Widget", msg.Caption)
	require.Equal(t, tgbotapi.FileBytes{Name: photoName, Bytes: photo}, msg.File)
}

func TestTransport_Requests(t *testing.T) {
	bot := newFakeBot()
	tr := NewTransport(bot)
	ctx := context.Background()

	require.NoError(t, tr.DeleteMessage(ctx, 10, 55))
	require.NoError(t, tr.AnswerCallback(ctx, "cb-1", ""))

	require.Equal(t, tgbotapi.NewDeleteMessage(10, 55), bot.requests[0])
	require.Equal(t, tgbotapi.NewCallback("cb-1", ""), bot.requests[1])
}

func TestTransport_Errors(t *testing.T) {
	bot := newFakeBot()
	bot.err = errors.New("Forbidden: bot was blocked by the user")
	tr := NewTransport(bot)

	err := tr.SendText(context.Background(), 10, "hi", nil)
	require.ErrorIs(t, err, bot.err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tr.DeleteMessage(ctx, 1, 2), context.Canceled)
	require.Empty(t, bot.requests)
}

func commandMessage(text string, length int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: 42},
		Chat:      &tgbotapi.Chat{ID: 4242},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestEventFromUpdate_Command(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{Message: commandMessage("/start", 6)})

	require.True(t, ok)
	require.Equal(t, engine.KindCommand, ev.Kind)
	require.Equal(t, "start", ev.Command)
	require.Equal(t, "42", ev.UserID)
	require.Equal(t, int64(4242), ev.ChatID)
	require.NotEmpty(t, ev.ID)
	require.True(t, ev.IsRestart())
}

func TestEventFromUpdate_Text(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 4242},
		Text: "buyer@example.com",
	}})

	require.True(t, ok)
	require.Equal(t, engine.KindText, ev.Kind)
	require.Equal(t, "buyer@example.com", ev.Text)
}

func TestEventFromUpdate_Callback(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-9",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 4242}},
		Data:    "add:7",
	}})

	require.True(t, ok)
	require.Equal(t, engine.KindButton, ev.Kind)
	require.Equal(t, "add:7", ev.Data)
	require.Equal(t, "cb-9", ev.CallbackID)
	require.Equal(t, 77, ev.MessageID)
	require.Equal(t, int64(4242), ev.ChatID)
}

func TestEventFromUpdate_Ignored(t *testing.T) {
	for name, u := range map[string]tgbotapi.Update{
		"empty":         {},
		"no text":       {Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}}},
		"no sender":     {Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}},
		"edited":        {EditedMessage: &tgbotapi.Message{Text: "hi"}},
		"anon callback": {CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", Data: "menu"}},
	} {
		_, ok := EventFromUpdate(u)
		require.False(t, ok, name)
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []engine.Event
	done   chan struct{}
}

func (d *recordingDispatcher) Handle(_ context.Context, ev engine.Event) error {
	d.mu.Lock()
	d.events = append(d.events, ev)
	n := len(d.events)
	d.mu.Unlock()
	if n == 2 {
		close(d.done)
	}
	return errors.New("backend down")
}

func TestPoller_Run(t *testing.T) {
	bot := newFakeBot()
	dispatcher := &recordingDispatcher{done: make(chan struct{})}
	p := NewPoller(bot, dispatcher, 30*time.Second)

	bot.updates <- tgbotapi.Update{UpdateID: 1, Message: commandMessage("/start", 6)}
	bot.updates <- tgbotapi.Update{UpdateID: 2}
	bot.updates <- tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "cb", From: &tgbotapi.User{ID: 42}, Data: "menu",
	}}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- p.Run(ctx) }()

	select {
	case <-dispatcher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("updates were not dispatched")
	}
	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.True(t, bot.stopped)
	require.Equal(t, 30, bot.timeout)
	require.Len(t, dispatcher.events, 2)
}

func TestPoller_ClosedChannel(t *testing.T) {
	bot := newFakeBot()
	close(bot.updates)

	err := NewPoller(bot, &recordingDispatcher{done: make(chan struct{})}, 0).Run(context.Background())

	require.Error(t, err)
}
