package engine

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/session"
	"github.com/zjrosen/shopbot/internal/strapi"
	"github.com/zjrosen/shopbot/internal/tracing"
)

// handleStart refreshes the catalog, makes sure the user has a client
// record and shows the menu.
func (e *Engine) handleStart(ctx context.Context, req *Request) (session.State, error) {
	products, err := e.catalog.Refresh(ctx)
	if err != nil {
		return req.State, err
	}
	if _, err := e.cart.GetOrCreateClient(ctx, req.Event.UserID); err != nil {
		return req.State, err
	}
	if err := e.show(ctx, req, e.views.menu(products, req.Event.Kind != KindButton)); err != nil {
		return req.State, err
	}
	return session.StateBrowsingMenu, nil
}

func (e *Engine) showMenu(ctx context.Context, req *Request) (session.State, error) {
	products, err := e.catalog.Products(ctx)
	if err != nil {
		return req.State, err
	}
	if err := e.show(ctx, req, e.views.menu(products, false)); err != nil {
		return req.State, err
	}
	return session.StateBrowsingMenu, nil
}

func (e *Engine) handleBrowsing(ctx context.Context, req *Request, btn Button) (session.State, error) {
	switch {
	case req.Event.Kind != KindButton:
		return e.rerender(ctx, req, e.showMenu)
	case btn.Action == ActionProduct:
		return e.showProduct(ctx, req, btn.ID)
	case btn.Action == ActionAdd:
		return e.addToCart(ctx, req, btn.ID)
	default:
		return e.rerender(ctx, req, e.showMenu)
	}
}

func (e *Engine) handleViewing(ctx context.Context, req *Request, btn Button) (session.State, error) {
	switch {
	case req.Event.Kind != KindButton:
		// The viewed product is not part of the session, so free text gets
		// a hint instead of the product screen.
		return req.State, e.show(ctx, req, e.views.hint())
	case btn.Action == ActionAdd:
		return e.addToCart(ctx, req, btn.ID)
	case btn.Action == ActionProduct:
		return e.showProduct(ctx, req, btn.ID)
	default:
		return req.State, e.show(ctx, req, e.views.hint())
	}
}

func (e *Engine) handleCartMenu(ctx context.Context, req *Request, _ Button) (session.State, error) {
	return e.rerender(ctx, req, func(ctx context.Context, req *Request) (session.State, error) {
		return e.showCart(ctx, req, "")
	})
}

func (e *Engine) handleAwaitingEmail(ctx context.Context, req *Request) (session.State, error) {
	if req.Event.Kind == KindButton {
		return req.State, e.show(ctx, req, e.views.emailPrompt(false))
	}

	email, ok := parseEmail(req.Event.Text)
	if !ok {
		if err := e.show(ctx, req, e.views.emailPrompt(true)); err != nil {
			return req.State, err
		}
		return session.StateAwaitingEmail, nil
	}

	if _, err := e.cart.SetClientEmail(ctx, req.Event.UserID, email); err != nil {
		return e.fail(ctx, req, err)
	}
	log.Info(log.CatEngine, "Email captured", "user", req.Event.UserID)

	products, err := e.catalog.Products(ctx)
	if err != nil {
		return req.State, err
	}
	menu := e.views.menu(products, false)
	menu.Text = fmt.Sprintf(textEmailSaved, email) + "\n\n" + menu.Text
	if err := e.show(ctx, req, menu); err != nil {
		return req.State, err
	}
	return session.StateBrowsingMenu, nil
}

// rerender shows the screen of the current state again and keeps the state.
func (e *Engine) rerender(ctx context.Context, req *Request, render HandlerFunc) (session.State, error) {
	if _, err := render(ctx, req); err != nil {
		return req.State, err
	}
	return req.State, nil
}

func (e *Engine) showProduct(ctx context.Context, req *Request, productID string) (session.State, error) {
	product, found, err := e.catalog.Lookup(ctx, productID)
	if err != nil {
		return req.State, err
	}
	if !found {
		return req.State, e.show(ctx, req, e.views.notFound(textProductMissing))
	}

	var photo []byte
	if product.PictureURL != "" {
		photo, err = e.catalog.Thumbnail(ctx, product)
		if err != nil {
			log.Warn(log.CatCatalog, "thumbnail unavailable, sending text",
				"product", product.ID, "error", err.Error())
			photo = nil
		}
	}
	err = e.show(ctx, req, e.views.product(product, photo))
	if err != nil && len(photo) > 0 {
		// Telegram rejected the photo; it may be corrupt in the cache.
		log.Warn(log.CatBot, "photo send failed, sending text",
			"product", product.ID, "error", err.Error())
		if ferr := e.catalog.ForgetThumbnail(ctx, product); ferr != nil {
			log.Debug(log.CatCatalog, "forget thumbnail failed", "product", product.ID, "error", ferr.Error())
		}
		err = e.show(ctx, req, e.views.product(product, nil))
	}
	if err != nil {
		return req.State, err
	}
	return session.StateViewingItem, nil
}

func (e *Engine) addToCart(ctx context.Context, req *Request, productID string) (session.State, error) {
	product, found, err := e.catalog.Lookup(ctx, productID)
	if err != nil {
		return req.State, err
	}
	if !found {
		return req.State, e.show(ctx, req, e.views.notFound(textProductMissing))
	}

	userCart, err := e.cart.EnsureCart(ctx, req.Event.UserID)
	if err != nil {
		return e.fail(ctx, req, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(tracing.AttrCartID, userCart.ID),
		attribute.String(tracing.AttrProductID, product.ID),
	)
	if _, err := e.cart.AddItem(ctx, userCart.ID, product.ID, 1); err != nil {
		return e.fail(ctx, req, err)
	}
	lines, err := e.cart.ListItems(ctx, userCart.ID)
	if err != nil {
		return e.fail(ctx, req, err)
	}
	if err := e.show(ctx, req, e.views.cart(lines, "")); err != nil {
		return req.State, err
	}
	return session.StateCartMenu, nil
}

// showCart renders the cart. A user without a cart sees the empty cart.
func (e *Engine) showCart(ctx context.Context, req *Request, notice string) (session.State, error) {
	lines, err := e.userLines(ctx, req.Event.UserID)
	if err != nil {
		return req.State, err
	}
	if err := e.show(ctx, req, e.views.cart(lines, notice)); err != nil {
		return req.State, err
	}
	return session.StateCartMenu, nil
}

func (e *Engine) userLines(ctx context.Context, userID string) ([]cart.LineItem, error) {
	userCart, found, err := e.cart.FindCart(ctx, userID)
	if err != nil || !found {
		return nil, err
	}
	return e.cart.ListItems(ctx, userCart.ID)
}

func (e *Engine) removeItem(ctx context.Context, req *Request, itemID string) (session.State, error) {
	userCart, found, err := e.cart.FindCart(ctx, req.Event.UserID)
	if err != nil {
		return e.fail(ctx, req, err)
	}
	if !found {
		return req.State, e.show(ctx, req, e.views.notFound(textItemMissing))
	}
	if _, err := e.cart.RemoveOneUnit(ctx, userCart.ID, itemID); err != nil {
		if errors.Is(err, strapi.ErrNotFound) {
			return req.State, e.show(ctx, req, e.views.notFound(textItemMissing))
		}
		return e.fail(ctx, req, err)
	}
	return e.showCart(ctx, req, "")
}

func (e *Engine) clearCart(ctx context.Context, req *Request) (session.State, error) {
	userCart, found, err := e.cart.FindCart(ctx, req.Event.UserID)
	if err != nil {
		return e.fail(ctx, req, err)
	}
	if found {
		if err := e.cart.ClearCart(ctx, userCart.ID); err != nil {
			var clearErr *cart.ClearError
			if errors.As(err, &clearErr) {
				log.Warn(log.CatCart, "cart partially cleared",
					"user", req.Event.UserID, "deleted", clearErr.Deleted, "remaining", clearErr.Remaining)
			}
			return e.fail(ctx, req, err)
		}
	}
	if err := e.show(ctx, req, e.views.cart(nil, textCartCleared)); err != nil {
		return req.State, err
	}
	return session.StateCartMenu, nil
}

func (e *Engine) checkout(ctx context.Context, req *Request) (session.State, error) {
	if err := e.show(ctx, req, e.views.emailPrompt(false)); err != nil {
		return req.State, err
	}
	return session.StateAwaitingEmail, nil
}

// parseEmail accepts a bare address such as "a@b.co".
func parseEmail(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(text)
	if err != nil || addr.Name != "" || addr.Address != text {
		return "", false
	}
	at := strings.LastIndexByte(text, '@')
	if at <= 0 || !strings.Contains(text[at+1:], ".") {
		return "", false
	}
	return text, true
}
