package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestState_IsValid(t *testing.T) {
	for _, s := range States {
		require.True(t, s.IsValid(), "state %s should be valid", s)
	}
	require.False(t, State("").IsValid())
	require.False(t, State("HANDLE_MENU").IsValid())
	require.False(t, State("start").IsValid(), "tokens are case sensitive")
}

func TestParseState(t *testing.T) {
	s, err := ParseState("CART_MENU")
	require.NoError(t, err)
	require.Equal(t, StateCartMenu, s)

	_, err = ParseState("HANDLE_DESCRIPTION")
	var invalid *InvalidStateError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, "HANDLE_DESCRIPTION", invalid.Token)
	require.Contains(t, err.Error(), "HANDLE_DESCRIPTION")
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.Get(ctx, "1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "1", StateBrowsingMenu))
	s, found, err := store.Get(ctx, "1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, StateBrowsingMenu, s)

	require.NoError(t, store.Delete(ctx, "1"))
	require.NoError(t, store.Delete(ctx, "1"), "deleting twice is fine")
	_, found, err = store.Get(ctx, "1")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, store.Close())
}

func TestMemoryStore_RejectsInvalidState(t *testing.T) {
	store := NewMemoryStore()
	err := store.Set(context.Background(), "1", State("BOGUS"))
	require.Error(t, err)
	require.Equal(t, 0, store.Len())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Set(ctx, "1", StateStart), context.Canceled)
	_, _, err := store.Get(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
}

// TestMemoryStore_LastWriteWins checks that after any sequence of writes the
// stored state of each user is the last one written.
func TestMemoryStore_LastWriteWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := NewMemoryStore()
		users := []string{"a", "b", "c"}
		want := map[string]State{}

		n := rapid.IntRange(1, 50).Draw(t, "writes")
		for i := 0; i < n; i++ {
			u := rapid.SampledFrom(users).Draw(t, "user")
			s := rapid.SampledFrom(States).Draw(t, "state")
			if err := store.Set(ctx, u, s); err != nil {
				t.Fatalf("set: %v", err)
			}
			want[u] = s
		}

		for _, u := range users {
			got, found, err := store.Get(ctx, u)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			w, ok := want[u]
			if found != ok || got != w {
				t.Fatalf("user %s: got (%q, %v), want (%q, %v)", u, got, found, w, ok)
			}
		}
	})
}
