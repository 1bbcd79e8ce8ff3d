package session

import (
	"context"
	"sync"
)

// MemoryStore is a Store that keeps state in process memory. State is lost
// on restart, so it suits tests and local runs only.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

var _ Store = (*MemoryStore)(nil)

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, userID string) (State, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[userID]
	return s, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, userID string, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !state.IsValid() {
		return &InvalidStateError{Token: string(state)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = state
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of users with a stored state.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
