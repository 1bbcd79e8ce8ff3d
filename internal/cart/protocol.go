// Package cart implements the cart synchronization protocol: get-or-create
// of client and cart records and quantity-aware changes to cart items,
// composed from the single-resource requests of package strapi.
//
// None of the multi-step operations are atomic. AddItem in particular is a
// check-then-act sequence; two concurrent adds of the same product to the
// same cart can both create a row. Callers that need one row per product
// must serialize adds for a user.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/strapi"
)

// PlaceholderDomain is used for the synthetic email of clients created
// before checkout.
const PlaceholderDomain = "telegram.placeholder"

// ErrInvalidQuantity is returned by AddItem for a quantity below one.
var ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")

// ErrClearStalled means the cart still listed lines after maxClearPasses
// full delete passes.
var ErrClearStalled = errors.New("cart: lines keep reappearing")

const maxClearPasses = 10

// ErrItemNotInCart is returned by RemoveOneUnit for a line of another cart.
// It matches strapi.ErrNotFound so callers treat it as a missing line.
var ErrItemNotInCart = fmt.Errorf("cart: item belongs to another cart: %w", strapi.ErrNotFound)

// Backend is the subset of the CMS client the protocol needs.
// *strapi.Client implements it.
type Backend interface {
	FindCustomers(ctx context.Context, userID string) ([]strapi.Customer, error)
	CreateCustomer(ctx context.Context, userID, email string) (strapi.Customer, error)
	UpdateCustomerEmail(ctx context.Context, customerID, email string) (strapi.Customer, error)

	FindCarts(ctx context.Context, userID string) ([]strapi.Cart, error)
	CreateCart(ctx context.Context, userID, customerID string) (strapi.Cart, error)
	AttachCustomer(ctx context.Context, cartID, customerID string) (strapi.Cart, error)

	FindCartItems(ctx context.Context, f strapi.ItemFilter) ([]strapi.CartItem, error)
	GetCartItem(ctx context.Context, id string) (strapi.CartItem, error)
	CreateCartItem(ctx context.Context, cartID, productID string, quantity int) (strapi.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (strapi.CartItem, error)
	DeleteCartItem(ctx context.Context, id string) error
}

var _ Backend = (*strapi.Client)(nil)

// Protocol runs cart operations against a Backend. It holds no state of its
// own and is safe for concurrent use.
type Protocol struct {
	backend Backend
}

// New creates a Protocol.
func New(backend Backend) *Protocol {
	return &Protocol{backend: backend}
}

// PlaceholderEmail is the email given to a client until checkout.
func PlaceholderEmail(userID string) string {
	return userID + "@" + PlaceholderDomain
}

// GetOrCreateClient returns the client for userID, creating one with a
// placeholder email when none exists.
func (p *Protocol) GetOrCreateClient(ctx context.Context, userID string) (strapi.Customer, error) {
	found, err := p.backend.FindCustomers(ctx, userID)
	if err != nil {
		return strapi.Customer{}, fmt.Errorf("find client: %w", err)
	}
	if len(found) > 0 {
		if len(found) > 1 {
			log.Warn(log.CatCart, "Multiple clients for user", "user", userID, "count", len(found))
		}
		return found[0], nil
	}

	created, err := p.backend.CreateCustomer(ctx, userID, PlaceholderEmail(userID))
	if err != nil {
		return strapi.Customer{}, fmt.Errorf("create client: %w", err)
	}
	log.Info(log.CatCart, "Created client", "user", userID, "client", created.ID)
	return created, nil
}

// FindCart returns the cart of userID. found is false when the user has no
// cart yet; that is not an error.
func (p *Protocol) FindCart(ctx context.Context, userID string) (cart strapi.Cart, found bool, err error) {
	carts, err := p.backend.FindCarts(ctx, userID)
	if err != nil {
		return strapi.Cart{}, false, fmt.Errorf("find cart: %w", err)
	}
	if len(carts) == 0 {
		return strapi.Cart{}, false, nil
	}
	if len(carts) > 1 {
		log.Warn(log.CatCart, "Multiple carts for user", "user", userID, "count", len(carts))
	}
	return carts[0], true, nil
}

// GetOrCreateCart returns the cart of userID, creating an unlinked one when
// none exists.
func (p *Protocol) GetOrCreateCart(ctx context.Context, userID string) (strapi.Cart, error) {
	return p.getOrCreateCart(ctx, userID, "")
}

// EnsureCart makes sure userID has both a client and a cart. A cart created
// here is linked to the client.
func (p *Protocol) EnsureCart(ctx context.Context, userID string) (strapi.Cart, error) {
	client, err := p.GetOrCreateClient(ctx, userID)
	if err != nil {
		return strapi.Cart{}, err
	}
	return p.getOrCreateCart(ctx, userID, client.ID)
}

func (p *Protocol) getOrCreateCart(ctx context.Context, userID, clientID string) (strapi.Cart, error) {
	cart, found, err := p.FindCart(ctx, userID)
	if err != nil {
		return strapi.Cart{}, err
	}
	if found {
		return cart, nil
	}

	cart, err = p.backend.CreateCart(ctx, userID, clientID)
	if err != nil {
		return strapi.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	log.Info(log.CatCart, "Created cart", "user", userID, "cart", cart.ID, "client", clientID)
	return cart, nil
}

// AddItem adds quantity units of productID to cartID. An existing line is
// incremented; otherwise a new line is created.
func (p *Protocol) AddItem(ctx context.Context, cartID, productID string, quantity int) (strapi.CartItem, error) {
	if quantity < 1 {
		return strapi.CartItem{}, ErrInvalidQuantity
	}

	existing, err := p.backend.FindCartItems(ctx, strapi.ItemFilter{CartID: cartID, ProductID: productID})
	if err != nil {
		return strapi.CartItem{}, fmt.Errorf("find cart item: %w", err)
	}

	if len(existing) == 0 {
		item, err := p.backend.CreateCartItem(ctx, cartID, productID, quantity)
		if err != nil {
			return strapi.CartItem{}, fmt.Errorf("create cart item: %w", err)
		}
		log.Debug(log.CatCart, "Added new line", "cart", cartID, "product", productID, "item", item.ID)
		return item, nil
	}

	if len(existing) > 1 {
		log.Warn(log.CatCart, "Duplicate cart lines", "cart", cartID, "product", productID, "count", len(existing))
	}
	line := existing[0]
	next := line.Quantity + quantity
	item, err := p.backend.UpdateCartItemQuantity(ctx, line.ID, next)
	if err != nil {
		return strapi.CartItem{}, fmt.Errorf("update cart item: %w", err)
	}
	if item.Quantity == 0 {
		item.Quantity = next
	}
	log.Debug(log.CatCart, "Incremented line", "cart", cartID, "product", productID, "quantity", next)
	return item, nil
}

// RemoveOneUnit takes one unit off line itemID of cartID and returns the
// quantity left. A line holding one unit or less is deleted and 0 is
// returned. A line of any other cart is left alone.
func (p *Protocol) RemoveOneUnit(ctx context.Context, cartID, itemID string) (int, error) {
	item, err := p.backend.GetCartItem(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("get cart item: %w", err)
	}
	if item.CartID != cartID {
		log.Warn(log.CatCart, "Refusing to change a foreign cart line", "cart", cartID, "item", itemID, "owner", item.CartID)
		return 0, ErrItemNotInCart
	}

	if item.Quantity <= 1 {
		if err := p.backend.DeleteCartItem(ctx, itemID); err != nil {
			return 0, fmt.Errorf("delete cart item: %w", err)
		}
		log.Debug(log.CatCart, "Removed line", "item", itemID)
		return 0, nil
	}

	next := item.Quantity - 1
	if _, err := p.backend.UpdateCartItemQuantity(ctx, itemID, next); err != nil {
		return 0, fmt.Errorf("update cart item: %w", err)
	}
	log.Debug(log.CatCart, "Decremented line", "item", itemID, "quantity", next)
	return next, nil
}

// ClearCart deletes every line of cartID one request at a time, listing
// again after each pass until the cart reads empty. The first failed
// request after a delete stops the loop and is returned as a *ClearError.
// An empty cart is cleared successfully.
func (p *Protocol) ClearCart(ctx context.Context, cartID string) error {
	deleted := 0
	for pass := 0; ; pass++ {
		items, err := p.backend.FindCartItems(ctx, strapi.ItemFilter{CartID: cartID})
		if err != nil {
			if deleted == 0 {
				return fmt.Errorf("list cart items: %w", err)
			}
			return &ClearError{Deleted: deleted, Err: fmt.Errorf("list cart items: %w", err)}
		}
		if len(items) == 0 {
			log.Debug(log.CatCart, "Cleared cart", "cart", cartID, "deleted", deleted)
			return nil
		}
		if pass == maxClearPasses {
			return &ClearError{Deleted: deleted, Remaining: len(items), Err: ErrClearStalled}
		}

		for i, item := range items {
			if err := p.backend.DeleteCartItem(ctx, item.ID); err != nil {
				return &ClearError{Deleted: deleted, Remaining: len(items) - i, Err: err}
			}
			deleted++
		}
	}
}

// ListItems returns the lines of cartID in backend order.
func (p *Protocol) ListItems(ctx context.Context, cartID string) ([]LineItem, error) {
	items, err := p.backend.FindCartItems(ctx, strapi.ItemFilter{CartID: cartID, WithProduct: true})
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, lineItemFrom(it))
	}
	return lines, nil
}

// SetClientEmail stores email on the client of userID, creating the client
// if needed, and links the user's cart to it when the cart has no client yet.
func (p *Protocol) SetClientEmail(ctx context.Context, userID, email string) (strapi.Customer, error) {
	client, err := p.GetOrCreateClient(ctx, userID)
	if err != nil {
		return strapi.Customer{}, err
	}

	updated, err := p.backend.UpdateCustomerEmail(ctx, client.ID, email)
	if err != nil {
		return strapi.Customer{}, fmt.Errorf("update client email: %w", err)
	}
	if updated.ID == "" {
		updated = client
		updated.Email = email
	}

	cart, found, err := p.FindCart(ctx, userID)
	if err != nil {
		return strapi.Customer{}, err
	}
	if found && cart.ClientID == "" {
		if _, err := p.backend.AttachCustomer(ctx, cart.ID, updated.ID); err != nil {
			return strapi.Customer{}, fmt.Errorf("link cart to client: %w", err)
		}
		log.Debug(log.CatCart, "Linked cart to client", "cart", cart.ID, "client", updated.ID)
	}
	return updated, nil
}
