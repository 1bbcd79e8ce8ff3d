// Package session holds the per-user conversation state and the Store
// abstraction that persists it.
//
// The package has no infrastructure dependencies; the sqlite-backed Store
// lives in internal/infrastructure/sqlite.
package session

import "fmt"

// State is the position of a user in the conversation.
type State string

const (
	// StateStart is the initial state and the target of the restart command.
	StateStart State = "START"

	// StateBrowsingMenu shows the product list.
	StateBrowsingMenu State = "BROWSING_MENU"

	// StateViewingItem shows a single product.
	StateViewingItem State = "VIEWING_ITEM"

	// StateCartMenu shows the cart contents.
	StateCartMenu State = "CART_MENU"

	// StateAwaitingEmail waits for the user to type an email address.
	StateAwaitingEmail State = "AWAITING_EMAIL"
)

// States lists every valid state in conversation order.
var States = []State{
	StateStart,
	StateBrowsingMenu,
	StateViewingItem,
	StateCartMenu,
	StateAwaitingEmail,
}

// String returns the stored token for the state.
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized conversation state.
func (s State) IsValid() bool {
	switch s {
	case StateStart, StateBrowsingMenu, StateViewingItem, StateCartMenu, StateAwaitingEmail:
		return true
	default:
		return false
	}
}

// ParseState converts a stored token into a State.
func ParseState(token string) (State, error) {
	s := State(token)
	if !s.IsValid() {
		return "", &InvalidStateError{Token: token}
	}
	return s, nil
}

// InvalidStateError is returned when a stored or supplied token is not a State.
type InvalidStateError struct {
	Token string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid session state %q", e.Token)
}
