package telegram

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zjrosen/shopbot/internal/engine"
	"github.com/zjrosen/shopbot/internal/log"
)

// Dispatcher handles one normalized event. *engine.Engine implements it.
type Dispatcher interface {
	Handle(ctx context.Context, ev engine.Event) error
}

// Poller long-polls for updates and hands each one to the dispatcher in its
// own goroutine.
type Poller struct {
	bot         BotAPI
	dispatcher  Dispatcher
	pollTimeout time.Duration

	wg sync.WaitGroup
}

// NewPoller creates a poller. A zero pollTimeout uses 60s.
func NewPoller(bot BotAPI, dispatcher Dispatcher, pollTimeout time.Duration) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 60 * time.Second
	}
	return &Poller{bot: bot, dispatcher: dispatcher, pollTimeout: pollTimeout}
}

// Run receives updates until ctx is done, then waits for in-flight events.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(p.pollTimeout / time.Second)
	updates := p.bot.GetUpdatesChan(cfg)
	log.Info(log.CatBot, "Polling for updates", "timeout", p.pollTimeout)

	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			log.Info(log.CatBot, "Stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram: update channel closed")
			}
			ev, ok := EventFromUpdate(update)
			if !ok {
				log.Debug(log.CatBot, "Ignoring update", "update_id", update.UpdateID)
				continue
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.handle(ctx, ev)
			}()
		}
	}
}

func (p *Poller) handle(ctx context.Context, ev engine.Event) {
	// Events in flight at shutdown still finish against the backend.
	ctx = context.WithoutCancel(ctx)
	err := p.dispatcher.Handle(ctx, ev)
	switch {
	case err == nil, errors.Is(err, engine.ErrDuplicateEvent):
	default:
		log.Debug(log.CatBot, "Event not applied", "event_id", ev.ID, "user", ev.UserID, "error", err.Error())
	}
}

// EventFromUpdate normalizes an update. Updates the bot does not act on
// (edits, channel posts, messages without text) report false.
func EventFromUpdate(u tgbotapi.Update) (engine.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return engine.Event{}, false
		}
		ev := engine.Event{
			ID:         engine.NewEventID(),
			Kind:       engine.KindButton,
			UserID:     strconv.FormatInt(q.From.ID, 10),
			ChatID:     q.From.ID,
			CallbackID: q.ID,
			Data:       q.Data,
		}
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		return ev, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return engine.Event{}, false
		}
		ev := engine.Event{
			ID:     engine.NewEventID(),
			Kind:   engine.KindText,
			UserID: strconv.FormatInt(m.From.ID, 10),
			ChatID: m.Chat.ID,
			Text:   m.Text,
		}
		if m.IsCommand() {
			ev.Kind = engine.KindCommand
			ev.Command = m.Command()
		}
		return ev, true
	}
	return engine.Event{}, false
}
