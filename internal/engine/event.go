package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies an incoming event.
type Kind int

const (
	// KindText is free text typed by the user.
	KindText Kind = iota
	// KindCommand is a slash command such as /start.
	KindCommand
	// KindButton is a press on an inline button.
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCommand:
		return "command"
	case KindButton:
		return "button"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RestartCommand resets the conversation from any state.
const RestartCommand = "start"

// Event is a normalized update from the transport.
type Event struct {
	// ID identifies the event in logs and traces.
	ID     string
	Kind   Kind
	UserID string
	ChatID int64
	// MessageID is the message carrying the pressed button (KindButton only).
	MessageID int
	// CallbackID must be answered to stop the client spinner (KindButton only).
	CallbackID string
	// Command is the command name without the slash (KindCommand only).
	Command string
	// Text is the message text (KindText and KindCommand).
	Text string
	// Data is the raw button payload (KindButton only).
	Data string
}

// NewEventID returns a fresh event id.
func NewEventID() string {
	return uuid.NewString()
}

// IsRestart reports whether the event is the restart command.
func (e Event) IsRestart() bool {
	return e.Kind == KindCommand && e.Command == RestartCommand
}

// ErrUnknownButton is returned by ParseButton for a payload it cannot decode.
var ErrUnknownButton = errors.New("engine: unknown button")

// Action is what a button asks for.
type Action string

const (
	ActionMenu     Action = "menu"
	ActionCart     Action = "cart"
	ActionClear    Action = "clear"
	ActionCheckout Action = "checkout"
	ActionProduct  Action = "product"
	ActionAdd      Action = "add"
	ActionDelete   Action = "del"
)

// MaxButtonData is the Telegram limit for callback data.
const MaxButtonData = 64

// Button is a decoded button payload.
type Button struct {
	Action Action
	// ID is the product id (product, add) or cart item id (del).
	ID string
}

// IsGlobal reports whether the button is honoured in every state.
func (b Button) IsGlobal() bool {
	switch b.Action {
	case ActionMenu, ActionCart, ActionClear, ActionCheckout, ActionDelete:
		return true
	default:
		return false
	}
}

// Data encodes the button as callback data.
func (b Button) Data() string {
	if b.ID == "" {
		return string(b.Action)
	}
	return string(b.Action) + ":" + b.ID
}

// legacyMenu is the payload of "back to menu" buttons on messages sent by
// earlier bot versions; it still has to work when tapped.
const legacyMenu = "back_to_menu"

// ParseButton decodes callback data.
func ParseButton(data string) (Button, error) {
	if data == legacyMenu {
		return Button{Action: ActionMenu}, nil
	}

	action, id, hasID := strings.Cut(data, ":")
	switch Action(action) {
	case ActionMenu, ActionCart, ActionClear, ActionCheckout:
		if hasID {
			break
		}
		return Button{Action: Action(action)}, nil
	case ActionProduct, ActionAdd, ActionDelete:
		if id == "" {
			break
		}
		return Button{Action: Action(action), ID: id}, nil
	}
	return Button{}, fmt.Errorf("%w: %q", ErrUnknownButton, data)
}
