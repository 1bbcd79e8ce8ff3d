package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/catalog"
	"github.com/zjrosen/shopbot/internal/engine"
	"github.com/zjrosen/shopbot/internal/mocks"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/strapi"
	"github.com/zjrosen/shopbot/internal/testutil"
)

func newEngine(t *testing.T, transport engine.Transport) (*engine.Engine, *session.MemoryStore) {
	t.Helper()
	fake := testutil.NewFakeStrapi(t).WithProduct("7", "Widget", testutil.Price("10"))
	client, err := strapi.NewClient(strapi.Config{BaseURL: fake.URL(), Token: testutil.Token})
	require.NoError(t, err)

	store := session.NewMemoryStore()
	e := engine.New(engine.Deps{
		Store:     store,
		Catalog:   catalog.New(client, catalog.Config{}),
		Cart:      cart.New(client),
		Transport: transport,
	}, engine.DefaultConfig())
	t.Cleanup(e.Close)
	return e, store
}

func TestHandle_DeleteFailureIsIgnored(t *testing.T) {
	transport := mocks.NewMockTransport(t)
	e, store := newEngine(t, transport)
	ctx := context.Background()

	var shown string
	transport.EXPECT().SendText(mock.Anything, int64(5), mock.Anything, mock.Anything).
		Run(func(_ context.Context, _ int64, text string, _ engine.Keyboard) { shown = text }).
		Return(nil).Once()
	transport.EXPECT().AnswerCallback(mock.Anything, "cb-1", "").Return(errors.New("query is too old")).Once()
	transport.EXPECT().DeleteMessage(mock.Anything, int64(5), 77).Return(errors.New("message can't be deleted")).Once()

	err := e.Handle(ctx, engine.Event{
		Kind: engine.KindButton, UserID: "u1", ChatID: 5, MessageID: 77, CallbackID: "cb-1", Data: "cart",
	})

	require.NoError(t, err)
	require.Equal(t, "Your cart is empty.", shown)
	state, found, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, session.StateCartMenu, state)
}

func TestHandle_TextIsNeverDeleted(t *testing.T) {
	transport := mocks.NewMockTransport(t)
	e, _ := newEngine(t, transport)

	transport.EXPECT().SendText(mock.Anything, int64(5), mock.Anything, mock.Anything).Return(nil).Once()

	err := e.Handle(context.Background(), engine.Event{
		Kind: engine.KindCommand, UserID: "u1", ChatID: 5, MessageID: 12, Command: "start", Text: "/start",
	})

	require.NoError(t, err)
	transport.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_FailedSendSkipsDelete(t *testing.T) {
	transport := mocks.NewMockTransport(t)
	e, store := newEngine(t, transport)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", session.StateBrowsingMenu))

	transport.EXPECT().SendText(mock.Anything, int64(5), mock.Anything, mock.Anything).Return(errors.New("blocked by user")).Once()
	transport.EXPECT().AnswerCallback(mock.Anything, "cb-2", "").Return(nil).Once()

	err := e.Handle(ctx, engine.Event{
		Kind: engine.KindButton, UserID: "u1", ChatID: 5, MessageID: 78, CallbackID: "cb-2", Data: "checkout",
	})

	require.Error(t, err)
	state, _, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, session.StateBrowsingMenu, state)
}
