package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/catalog"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/strapi"
	"github.com/zjrosen/shopbot/internal/testutil"
)

const (
	testUser = "42"
	testChat = int64(4242)
)

type sentMessage struct {
	ChatID   int64
	Text     string
	Photo    []byte
	Keyboard Keyboard
}

// recordingTransport keeps every side effect the engine requested.
type recordingTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []int
	answered []string
	sendErr  error
	// photoErr fails SendPhoto only.
	photoErr error
}

func (r *recordingTransport) SendText(_ context.Context, chatID int64, text string, kb Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, sentMessage{ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (r *recordingTransport) SendPhoto(_ context.Context, chatID int64, photo []byte, caption string, kb Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	if r.photoErr != nil {
		return r.photoErr
	}
	r.sent = append(r.sent, sentMessage{ChatID: chatID, Text: caption, Photo: photo, Keyboard: kb})
	return nil
}

func (r *recordingTransport) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

func (r *recordingTransport) AnswerCallback(_ context.Context, callbackID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered = append(r.answered, callbackID)
	return nil
}

func (r *recordingTransport) last(t *testing.T) sentMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent, "nothing was sent")
	return r.sent[len(r.sent)-1]
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingTransport) deletedIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.deleted...)
}

type harness struct {
	engine    *Engine
	fake      *testutil.FakeStrapi
	store     *session.MemoryStore
	transport *recordingTransport
	nextMsg   int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fake := testutil.NewFakeStrapi(t).
		WithProduct("7", "Widget", testutil.Price("10"), testutil.Description("A fine widget")).
		WithProduct("8", "Gadget", testutil.NoPrice())
	client, err := strapi.NewClient(strapi.Config{BaseURL: fake.URL(), Token: testutil.Token})
	require.NoError(t, err)

	h := &harness{
		fake:      fake,
		store:     session.NewMemoryStore(),
		transport: &recordingTransport{},
		nextMsg:   100,
	}
	h.engine = New(Deps{
		Store:     h.store,
		Catalog:   catalog.New(client, catalog.Config{}),
		Cart:      cart.New(client),
		Transport: h.transport,
	}, cfg)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Handle(context.Background(), command(RestartCommand)))
	require.Equal(t, session.StateBrowsingMenu, h.state(t))
}

func (h *harness) press(data string) error {
	h.nextMsg++
	ev := Event{
		Kind:       KindButton,
		UserID:     testUser,
		ChatID:     testChat,
		MessageID:  h.nextMsg,
		CallbackID: "cb-" + data,
		Data:       data,
	}
	return h.engine.Handle(context.Background(), ev)
}

func (h *harness) say(text string) error {
	return h.engine.Handle(context.Background(), Event{Kind: KindText, UserID: testUser, ChatID: testChat, Text: text})
}

func (h *harness) state(t *testing.T) session.State {
	t.Helper()
	s, found, err := h.store.Get(context.Background(), testUser)
	require.NoError(t, err)
	if !found {
		return ""
	}
	return s
}

func (h *harness) cartID(t *testing.T) string {
	t.Helper()
	carts := h.fake.Carts(testUser)
	require.Len(t, carts, 1)
	return carts[0].ID
}

func command(name string) Event {
	return Event{Kind: KindCommand, UserID: testUser, ChatID: testChat, Command: name, Text: "/" + name}
}

func buttonData(kb Keyboard) []string {
	var out []string
	for _, row := range kb {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}
