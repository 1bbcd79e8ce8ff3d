// Package telegram connects the engine to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zjrosen/shopbot/internal/engine"
)

// photoName is the file name reported for uploaded thumbnails. Telegram
// sniffs the actual format.
const photoName = "product.jpg"

// BotAPI is the subset of *tgbotapi.BotAPI the package uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

// Transport implements engine.Transport on top of the Bot API.
type Transport struct {
	bot BotAPI
}

var _ engine.Transport = (*Transport)(nil)

// NewTransport wraps bot.
func NewTransport(bot BotAPI) *Transport {
	return &Transport{bot: bot}
}

// SendText sends a text message with an optional inline keyboard.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string, kb engine.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := inlineKeyboard(kb); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// SendPhoto uploads photo with caption as its text.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, kb engine.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: photoName, Bytes: photo})
	msg.Caption = caption
	if markup, ok := inlineKeyboard(kb); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	return nil
}

// DeleteMessage removes a message sent earlier by the bot.
func (t *Transport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func inlineKeyboard(kb engine.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
