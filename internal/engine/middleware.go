package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/shopbot/internal/cachemanager"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/tracing"
)

// Request is what a Handler works on: the event and the state it arrived in.
type Request struct {
	Event Event
	State session.State

	// replaced is set once a handler has sent a new screen in answer to a
	// button, so the engine may delete the message that carried it.
	replaced bool
}

// Handler turns a request into the next state.
type Handler interface {
	Handle(ctx context.Context, req *Request) (session.State, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (session.State, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (session.State, error) {
	return f(ctx, req)
}

// Middleware wraps a Handler to add behavior around it.
type Middleware func(Handler) Handler

// ChainMiddleware applies middlewares so the first one is the outermost.
// ChainMiddleware(h, a, b) yields a(b(h)).
func ChainMiddleware(handler Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// ===========================================================================
// Logging
// ===========================================================================

// NewLoggingMiddleware logs every dispatched event with its outcome.
func NewLoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (session.State, error) {
			start := time.Now()
			state, err := next.Handle(ctx, req)
			duration := time.Since(start)

			ev := req.Event
			switch {
			case errors.Is(err, ErrDuplicateEvent):
				log.Debug(log.CatEngine, "event suppressed",
					"event_id", ev.ID, "user", ev.UserID, "data", ev.Data)
			case err != nil:
				log.Error(log.CatEngine, "handler failed",
					"event_id", ev.ID,
					"user", ev.UserID,
					"kind", ev.Kind.String(),
					"state", req.State.String(),
					"duration", duration,
					"error", err.Error(),
				)
			default:
				log.Debug(log.CatEngine, "handler completed",
					"event_id", ev.ID,
					"user", ev.UserID,
					"kind", ev.Kind.String(),
					"from", req.State.String(),
					"to", state.String(),
					"duration", duration,
				)
			}
			return state, err
		})
	}
}

// ===========================================================================
// Deadline
// ===========================================================================

// DefaultHandlerTimeout bounds one handler run when none is configured.
const DefaultHandlerTimeout = 15 * time.Second

// NewDeadlineMiddleware runs the handler under a context deadline so a hung
// backend call cannot stall a user forever.
func NewDeadlineMiddleware(timeout time.Duration) Middleware {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (session.State, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next.Handle(ctx, req)
		})
	}
}

// ===========================================================================
// Slow handler warning
// ===========================================================================

// DefaultSlowThreshold is the run time above which handlers are reported.
const DefaultSlowThreshold = 3 * time.Second

// NewSlowHandlerMiddleware logs a warning when a handler takes longer than
// threshold. It never aborts the handler.
func NewSlowHandlerMiddleware(threshold time.Duration) Middleware {
	if threshold <= 0 {
		threshold = DefaultSlowThreshold
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (session.State, error) {
			start := time.Now()
			state, err := next.Handle(ctx, req)
			if d := time.Since(start); d > threshold {
				log.Warn(log.CatEngine, "handler exceeded time threshold",
					"event_id", req.Event.ID,
					"user", req.Event.UserID,
					"state", req.State.String(),
					"duration", d,
					"threshold", threshold,
				)
			}
			return state, err
		})
	}
}

// ===========================================================================
// Recover
// ===========================================================================

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("engine: handler panicked")

// NewRecoverMiddleware turns a handler panic into an error so the state is
// left unchanged like for any other failure.
func NewRecoverMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (state session.State, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error(log.CatEngine, "handler panic",
						"event_id", req.Event.ID,
						"user", req.Event.UserID,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					state, err = req.State, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}

// ===========================================================================
// Deduplication
// ===========================================================================

// ErrDuplicateEvent is returned for a button press repeated inside the
// deduplication window.
var ErrDuplicateEvent = errors.New("engine: duplicate button press")

// DeduplicationMiddleware drops a button press when the same user pressed a
// button with the same payload within the window and that press succeeded.
type DeduplicationMiddleware struct {
	seen   cachemanager.CacheManager[string, time.Time]
	window time.Duration
}

// NewDeduplicationMiddleware creates the middleware. The window must be positive.
func NewDeduplicationMiddleware(window time.Duration) *DeduplicationMiddleware {
	return &DeduplicationMiddleware{
		seen:   cachemanager.NewInMemoryCacheManager[string, time.Time]("dedup", window, 2*window),
		window: window,
	}
}

// Middleware returns the middleware function.
func (m *DeduplicationMiddleware) Middleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (session.State, error) {
			ev := req.Event
			if ev.Kind != KindButton {
				return next.Handle(ctx, req)
			}
			key := contentHash(ev)
			if _, dup := m.seen.Get(ctx, key); dup {
				return req.State, ErrDuplicateEvent
			}
			m.seen.Set(ctx, key, time.Now(), m.window)
			state, err := next.Handle(ctx, req)
			if err != nil {
				// A failed press must stay retryable.
				_ = m.seen.Delete(ctx, key)
			}
			return state, err
		})
	}
}

// contentHash identifies a press by user and payload, ignoring event and
// message ids so a double tap on two copies of a keyboard still matches.
func contentHash(ev Event) string {
	h := sha256.New()
	h.Write([]byte(ev.UserID))
	h.Write([]byte{0})
	h.Write([]byte(ev.Data))
	return hex.EncodeToString(h.Sum(nil))
}

// ===========================================================================
// Tracing
// ===========================================================================

// NewTracingMiddleware opens one span per dispatched event. A nil tracer
// yields a pass-through.
func NewTracingMiddleware(tracer trace.Tracer) Middleware {
	if tracer == nil {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (session.State, error) {
			ev := req.Event
			ctx, span := tracer.Start(ctx, tracing.SpanDispatch,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String(tracing.AttrEventID, ev.ID),
					attribute.String(tracing.AttrEventKind, ev.Kind.String()),
					attribute.String(tracing.AttrUserID, ev.UserID),
					attribute.String(tracing.AttrStateFrom, req.State.String()),
				),
			)
			defer span.End()
			if ev.Kind == KindButton {
				span.SetAttributes(attribute.String(tracing.AttrButton, ev.Data))
			}

			state, err := next.Handle(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return state, err
			}
			span.SetAttributes(attribute.String(tracing.AttrStateTo, state.String()))
			span.SetStatus(codes.Ok, "")
			return state, nil
		})
	}
}
