package strapi

import (
	"context"
	"net/url"
)

// FindCarts lists carts whose tg_id equals userID, with the client relation populated.
func (c *Client) FindCarts(ctx context.Context, userID string) ([]Cart, error) {
	q := url.Values{}
	q.Set("filters[tg_id][$eq]", userID)
	q.Set("populate[client][fields][0]", "documentId")

	dtos, err := listAll[cartDTO](ctx, c, "carts", q)
	if err != nil {
		return nil, err
	}
	out := make([]Cart, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toCart())
	}
	return out, nil
}

// CreateCart creates an empty cart owned by userID, optionally linked to a client.
func (c *Client) CreateCart(ctx context.Context, userID, customerID string) (Cart, error) {
	body := map[string]string{"tg_id": userID}
	if customerID != "" {
		body["client"] = customerID
	}

	var dto cartDTO
	if err := c.do(ctx, "POST", "carts", nil, body, &dto); err != nil {
		return Cart{}, err
	}
	cart := dto.toCart()
	if cart.ClientID == "" {
		cart.ClientID = customerID
	}
	return cart, nil
}

// AttachCustomer links a cart to a client.
func (c *Client) AttachCustomer(ctx context.Context, cartID, customerID string) (Cart, error) {
	body := map[string]string{"client": customerID}

	var dto cartDTO
	if err := c.do(ctx, "PUT", "carts/"+url.PathEscape(cartID), nil, body, &dto); err != nil {
		return Cart{}, err
	}
	cart := dto.toCart()
	if cart.ClientID == "" {
		cart.ClientID = customerID
	}
	return cart, nil
}
