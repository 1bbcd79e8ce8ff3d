// Package engine is the conversation state machine. It routes each event to
// a handler chosen by the user's stored state, and persists the state the
// handler returns only when the handler succeeded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/pubsub"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/strapi"
)

// ErrMalformedEvent is returned by Handle for an event without a user.
var ErrMalformedEvent = errors.New("engine: event has no user")

// Catalog is the product snapshot used by handlers. *catalog.Cache implements it.
type Catalog interface {
	Refresh(ctx context.Context) ([]strapi.Product, error)
	Products(ctx context.Context) ([]strapi.Product, error)
	Lookup(ctx context.Context, id string) (strapi.Product, bool, error)
	Thumbnail(ctx context.Context, p strapi.Product) ([]byte, error)
	ForgetThumbnail(ctx context.Context, p strapi.Product) error
}

// Cart is the cart protocol used by handlers. *cart.Protocol implements it.
type Cart interface {
	GetOrCreateClient(ctx context.Context, userID string) (strapi.Customer, error)
	EnsureCart(ctx context.Context, userID string) (strapi.Cart, error)
	FindCart(ctx context.Context, userID string) (strapi.Cart, bool, error)
	AddItem(ctx context.Context, cartID, productID string, quantity int) (strapi.CartItem, error)
	RemoveOneUnit(ctx context.Context, cartID, itemID string) (int, error)
	ClearCart(ctx context.Context, cartID string) error
	ListItems(ctx context.Context, cartID string) ([]cart.LineItem, error)
	SetClientEmail(ctx context.Context, userID, email string) (strapi.Customer, error)
}

var _ Cart = (*cart.Protocol)(nil)

// Config tunes the engine.
type Config struct {
	// HandlerTimeout bounds one handler run.
	HandlerTimeout time.Duration
	// SlowThreshold is the run time above which a warning is logged.
	SlowThreshold time.Duration
	// SerializePerUser processes events of the same user one at a time.
	SerializePerUser bool
	// DedupWindow drops a repeated identical button press inside the
	// window. Zero disables deduplication.
	DedupWindow time.Duration
	// Currency is appended to prices, e.g. "RUB". Empty shows bare amounts.
	Currency string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout:   DefaultHandlerTimeout,
		SlowThreshold:    DefaultSlowThreshold,
		SerializePerUser: true,
	}
}

// Deps are the collaborators of the engine.
type Deps struct {
	Store     session.Store
	Catalog   Catalog
	Cart      Cart
	Transport Transport
	// Tracer is optional; nil disables dispatch spans.
	Tracer trace.Tracer
}

// Transition describes one handled event. It is published after every
// dispatch, failed or not.
type Transition struct {
	EventID  string
	UserID   string
	From     session.State
	To       session.State
	Err      error
	Duration time.Duration
}

// Engine dispatches events. It is safe for concurrent use.
type Engine struct {
	store     session.Store
	catalog   Catalog
	cart      Cart
	transport Transport
	views     views
	cfg       Config

	chain  Handler
	locks  *userLocks
	dedup  *DeduplicationMiddleware
	events *pubsub.Broker[Transition]
}

// New builds an Engine with its middleware chain.
func New(deps Deps, cfg Config) *Engine {
	e := &Engine{
		store:     deps.Store,
		catalog:   deps.Catalog,
		cart:      deps.Cart,
		transport: deps.Transport,
		views:     views{currency: cfg.Currency},
		cfg:       cfg,
		locks:     newUserLocks(),
		events:    pubsub.NewBroker[Transition](),
	}

	middlewares := []Middleware{
		NewTracingMiddleware(deps.Tracer),
		NewLoggingMiddleware(),
	}
	if cfg.DedupWindow > 0 {
		e.dedup = NewDeduplicationMiddleware(cfg.DedupWindow)
		middlewares = append(middlewares, e.dedup.Middleware())
	}
	middlewares = append(middlewares,
		NewSlowHandlerMiddleware(cfg.SlowThreshold),
		NewDeadlineMiddleware(cfg.HandlerTimeout),
		NewRecoverMiddleware(),
	)
	e.chain = ChainMiddleware(HandlerFunc(e.dispatch), middlewares...)
	return e
}

// Subscribe returns a channel of transitions until ctx is done.
func (e *Engine) Subscribe(ctx context.Context) <-chan pubsub.Event[Transition] {
	return e.events.Subscribe(ctx)
}

// Close stops publishing transitions.
func (e *Engine) Close() {
	e.events.Close()
}

// Handle processes one event end to end: load state, dispatch, persist the
// next state on success, then clean up the answered message.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	if ev.UserID == "" {
		return ErrMalformedEvent
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}

	if e.cfg.SerializePerUser {
		unlock := e.locks.Lock(ev.UserID)
		defer unlock()
	}

	current, err := e.loadState(ctx, ev.UserID)
	if err != nil {
		return err
	}

	start := time.Now()
	req := &Request{Event: ev, State: current}
	next, err := e.chain.Handle(ctx, req)
	if err == nil {
		if serr := e.store.Set(ctx, ev.UserID, next); serr != nil {
			err = fmt.Errorf("persist state: %w", serr)
		}
	}
	e.publish(ev, current, next, err, time.Since(start))

	if ev.Kind == KindButton && ev.CallbackID != "" {
		if aerr := e.transport.AnswerCallback(ctx, ev.CallbackID, ""); aerr != nil {
			log.Debug(log.CatBot, "answer callback failed", "event_id", ev.ID, "error", aerr.Error())
		}
	}
	if err != nil {
		return err
	}

	if req.replaced && ev.MessageID != 0 {
		if derr := e.transport.DeleteMessage(ctx, ev.ChatID, ev.MessageID); derr != nil {
			log.Warn(log.CatBot, "delete previous message failed",
				"event_id", ev.ID, "chat", ev.ChatID, "message", ev.MessageID, "error", derr.Error())
		}
	}
	return nil
}

// Dispatch runs the handler chain for ev as if the user were in current,
// without touching the session store.
func (e *Engine) Dispatch(ctx context.Context, current session.State, ev Event) (session.State, error) {
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	return e.chain.Handle(ctx, &Request{Event: ev, State: current})
}

// loadState returns the stored state, or START for new users and for
// tokens that are no longer valid.
func (e *Engine) loadState(ctx context.Context, userID string) (session.State, error) {
	state, found, err := e.store.Get(ctx, userID)
	var invalid *session.InvalidStateError
	switch {
	case errors.As(err, &invalid):
		log.Warn(log.CatEngine, "stale session state, restarting", "user", userID, "token", invalid.Token)
		return session.StateStart, nil
	case err != nil:
		return "", fmt.Errorf("load state: %w", err)
	case !found:
		return session.StateStart, nil
	}
	return state, nil
}

func (e *Engine) publish(ev Event, from, to session.State, err error, d time.Duration) {
	t := Transition{EventID: ev.ID, UserID: ev.UserID, From: from, To: to, Err: err, Duration: d}
	if err != nil {
		t.To = from
		e.events.Publish(pubsub.FailureEvent, t)
		return
	}
	e.events.Publish(pubsub.TransitionEvent, t)
}

// dispatch routes the request: restart first, then global buttons, then the
// handler of the current state.
func (e *Engine) dispatch(ctx context.Context, req *Request) (session.State, error) {
	ev := req.Event
	state := req.State
	if ev.IsRestart() {
		state = session.StateStart
	}

	var btn Button
	if ev.Kind == KindButton {
		var err error
		btn, err = ParseButton(ev.Data)
		if err != nil {
			log.Warn(log.CatEngine, "unknown button", "event_id", ev.ID, "data", ev.Data)
			return state, e.show(ctx, req, e.views.notFound(textButtonMissing))
		}
		if btn.IsGlobal() {
			return e.handleGlobal(ctx, req, btn)
		}
	}

	switch state {
	case session.StateStart:
		return e.handleStart(ctx, req)
	case session.StateBrowsingMenu:
		return e.handleBrowsing(ctx, req, btn)
	case session.StateViewingItem:
		return e.handleViewing(ctx, req, btn)
	case session.StateCartMenu:
		return e.handleCartMenu(ctx, req, btn)
	case session.StateAwaitingEmail:
		return e.handleAwaitingEmail(ctx, req)
	default:
		return e.handleStart(ctx, req)
	}
}

func (e *Engine) handleGlobal(ctx context.Context, req *Request, btn Button) (session.State, error) {
	switch btn.Action {
	case ActionMenu:
		return e.showMenu(ctx, req)
	case ActionCart:
		return e.showCart(ctx, req, "")
	case ActionClear:
		return e.clearCart(ctx, req)
	case ActionCheckout:
		return e.checkout(ctx, req)
	case ActionDelete:
		return e.removeItem(ctx, req, btn.ID)
	default:
		return req.State, fmt.Errorf("%w: %s is not global", ErrUnknownButton, btn.Action)
	}
}

// show sends a screen to the chat of req, as a photo when it has one.
func (e *Engine) show(ctx context.Context, req *Request, s Screen) error {
	chatID := req.Event.ChatID
	var err error
	if len(s.Photo) > 0 {
		err = e.transport.SendPhoto(ctx, chatID, s.Photo, s.Text, s.Keyboard)
	} else {
		err = e.transport.SendText(ctx, chatID, s.Text, s.Keyboard)
	}
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if req.Event.Kind == KindButton {
		req.replaced = true
	}
	return nil
}

// fail tells the user the action did not complete and returns cause so the
// state is left unchanged.
func (e *Engine) fail(ctx context.Context, req *Request, cause error) (session.State, error) {
	var apiErr *strapi.APIError
	temporary := errors.As(cause, &apiErr) && apiErr.Temporary()
	screen := e.views.failed(temporary)
	if err := e.transport.SendText(ctx, req.Event.ChatID, screen.Text, screen.Keyboard); err != nil {
		log.Warn(log.CatBot, "send failure notice failed", "event_id", req.Event.ID, "error", err.Error())
	}
	return req.State, cause
}
