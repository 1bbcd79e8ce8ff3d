package tracing

// Span attribute keys.
const (
	AttrEventID   = "bot.event.id"
	AttrEventKind = "bot.event.kind"
	AttrUserID    = "bot.user.id"
	AttrButton    = "bot.button"
	AttrStateFrom = "bot.state.from"
	AttrStateTo   = "bot.state.to"

	AttrCartID    = "cart.id"
	AttrProductID = "product.id"
)

// SpanDispatch is the span opened for every handled event.
const SpanDispatch = "engine.dispatch"
