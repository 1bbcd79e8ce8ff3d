package engine

import "context"

// KeyButton is one inline button.
type KeyButton struct {
	Label string
	Data  string
}

// Keyboard is a grid of inline buttons, row by row.
type Keyboard [][]KeyButton

// Row appends a row of buttons.
func (k Keyboard) Row(buttons ...KeyButton) Keyboard {
	return append(k, buttons)
}

// Transport performs the chat side effects requested by handlers.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
