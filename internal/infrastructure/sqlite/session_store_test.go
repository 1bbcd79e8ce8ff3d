package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/shopbot/internal/session"
)

// setupTestStore creates a new DB and returns its session store.
func setupTestStore(t *testing.T) session.Store {
	t.Helper()
	db, _ := openTestDB(t)
	return db.SessionStore()
}

func TestSessionStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	state, found, err := store.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, state)
}

func TestSessionStore_SetOverwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "7", session.StateBrowsingMenu))
	require.NoError(t, store.Set(ctx, "7", session.StateAwaitingEmail))

	state, found, err := store.Get(ctx, "7")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, session.StateAwaitingEmail, state)
}

func TestSessionStore_UpdatedAt(t *testing.T) {
	db, _ := openTestDB(t)
	store := newSessionStore(db)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, store.Set(context.Background(), "7", session.StateCartMenu))

	var updatedAt int64
	require.NoError(t, db.conn.QueryRow("SELECT updated_at FROM sessions WHERE user_id = '7'").Scan(&updatedAt))
	require.Equal(t, int64(1700000000), updatedAt)
}

func TestSessionStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "7", session.StateCartMenu))
	require.NoError(t, store.Delete(ctx, "7"))
	require.NoError(t, store.Delete(ctx, "7"), "deleting a missing user is not an error")

	_, found, err := store.Get(ctx, "7")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSessionStore_RejectsInvalidState(t *testing.T) {
	store := setupTestStore(t)
	err := store.Set(context.Background(), "7", session.State("HANDLE_MENU"))
	var invalid *session.InvalidStateError
	require.True(t, errors.As(err, &invalid))
}

func TestSessionStore_StaleTokenReported(t *testing.T) {
	db, _ := openTestDB(t)
	_, err := db.conn.Exec(
		"INSERT INTO sessions (user_id, state, updated_at) VALUES ('7', 'HANDLE_DESCRIPTION', 0)",
	)
	require.NoError(t, err)

	_, found, err := db.SessionStore().Get(context.Background(), "7")
	require.True(t, found)
	var invalid *session.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "HANDLE_DESCRIPTION", invalid.Token)
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shopbot.db")
	ctx := context.Background()

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.SessionStore().Set(ctx, "7", session.StateViewingItem))
	require.NoError(t, db1.SessionStore().Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	state, found, err := db2.SessionStore().Get(ctx, "7")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, session.StateViewingItem, state)
}

// TestSessionStore_MatchesMemoryStore runs random operation sequences against
// both stores and requires identical observations.
func TestSessionStore_MatchesMemoryStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	users := []string{"1", "2", "3"}

	rapid.Check(t, func(rt *rapid.T) {
		for _, u := range users {
			if err := store.Delete(ctx, u); err != nil {
				rt.Fatalf("reset: %v", err)
			}
		}
		model := session.NewMemoryStore()

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			u := rapid.SampledFrom(users).Draw(rt, "user")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				s := rapid.SampledFrom(session.States).Draw(rt, "state")
				if err := store.Set(ctx, u, s); err != nil {
					rt.Fatalf("set: %v", err)
				}
				_ = model.Set(ctx, u, s)
			case 1:
				if err := store.Delete(ctx, u); err != nil {
					rt.Fatalf("delete: %v", err)
				}
				_ = model.Delete(ctx, u)
			case 2:
				got, gotFound, err := store.Get(ctx, u)
				if err != nil {
					rt.Fatalf("get: %v", err)
				}
				want, wantFound, _ := model.Get(ctx, u)
				if got != want || gotFound != wantFound {
					rt.Fatalf("user %s: sqlite (%q,%v) memory (%q,%v)", u, got, gotFound, want, wantFound)
				}
			}
		}
	})
}
