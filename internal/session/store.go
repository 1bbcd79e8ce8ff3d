package session

import "context"

// Store persists the state of each user. Writes are single-key overwrites;
// the last writer wins.
type Store interface {
	// Get returns the stored state for userID. found is false when the user
	// has never been seen. A stored token that is no longer a valid State is
	// reported as an *InvalidStateError together with found = true.
	Get(ctx context.Context, userID string) (state State, found bool, err error)

	// Set overwrites the state of userID.
	Set(ctx context.Context, userID string, state State) error

	// Delete forgets userID. Deleting an unknown user is not an error.
	Delete(ctx context.Context, userID string) error

	// Close releases any resources held by the store.
	Close() error
}
