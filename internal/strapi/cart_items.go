package strapi

import (
	"context"
	"net/url"
)

// ItemFilter narrows FindCartItems. Empty fields are not filtered on.
type ItemFilter struct {
	CartID    string
	ProductID string
	// WithProduct populates title and price of the related product.
	WithProduct bool
}

type cartItemBody struct {
	Product  string `json:"product"`
	Cart     string `json:"cart"`
	Quantity int    `json:"quantity"`
}

// FindCartItems lists cart items matching f.
func (c *Client) FindCartItems(ctx context.Context, f ItemFilter) ([]CartItem, error) {
	q := url.Values{}
	if f.CartID != "" {
		q.Set("filters[cart][documentId][$eq]", f.CartID)
	}
	if f.ProductID != "" {
		q.Set("filters[product][documentId][$eq]", f.ProductID)
	}
	if f.WithProduct {
		q.Set("populate[product][fields][0]", "title")
		q.Set("populate[product][fields][1]", "price")
	}

	dtos, err := listAll[cartItemDTO](ctx, c, "cart-items", q)
	if err != nil {
		return nil, err
	}
	out := make([]CartItem, 0, len(dtos))
	for _, d := range dtos {
		item := d.toCartItem()
		if item.CartID == "" {
			item.CartID = f.CartID
		}
		out = append(out, item)
	}
	return out, nil
}

// GetCartItem reads one cart item. A missing item yields an error matching ErrNotFound.
func (c *Client) GetCartItem(ctx context.Context, id string) (CartItem, error) {
	q := url.Values{}
	q.Set("populate[cart][fields][0]", "documentId")

	var dto cartItemDTO
	if err := c.do(ctx, "GET", "cart-items/"+url.PathEscape(id), q, nil, &dto); err != nil {
		return CartItem{}, err
	}
	return dto.toCartItem(), nil
}

// CreateCartItem adds a new line to a cart.
func (c *Client) CreateCartItem(ctx context.Context, cartID, productID string, quantity int) (CartItem, error) {
	body := cartItemBody{Product: productID, Cart: cartID, Quantity: quantity}

	var dto cartItemDTO
	if err := c.do(ctx, "POST", "cart-items", nil, body, &dto); err != nil {
		return CartItem{}, err
	}
	item := dto.toCartItem()
	if item.CartID == "" {
		item.CartID = cartID
	}
	return item, nil
}

// UpdateCartItemQuantity overwrites the quantity of a cart item.
func (c *Client) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (CartItem, error) {
	body := map[string]int{"quantity": quantity}

	var dto cartItemDTO
	if err := c.do(ctx, "PUT", "cart-items/"+url.PathEscape(id), nil, body, &dto); err != nil {
		return CartItem{}, err
	}
	return dto.toCartItem(), nil
}

// DeleteCartItem removes a cart item.
func (c *Client) DeleteCartItem(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "cart-items/"+url.PathEscape(id), nil, nil, nil)
}
