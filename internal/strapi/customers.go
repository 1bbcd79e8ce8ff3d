package strapi

import (
	"context"
	"net/url"
)

type customerBody struct {
	UserID string `json:"tg_id"`
	Email  string `json:"email,omitempty"`
}

// FindCustomers lists clients whose tg_id equals userID.
func (c *Client) FindCustomers(ctx context.Context, userID string) ([]Customer, error) {
	q := url.Values{}
	q.Set("filters[tg_id][$eq]", userID)

	dtos, err := listAll[customerDTO](ctx, c, "clients", q)
	if err != nil {
		return nil, err
	}
	out := make([]Customer, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toCustomer())
	}
	return out, nil
}

// CreateCustomer creates a client for userID.
func (c *Client) CreateCustomer(ctx context.Context, userID, email string) (Customer, error) {
	var dto customerDTO
	err := c.do(ctx, "POST", "clients", nil, customerBody{UserID: userID, Email: email}, &dto)
	if err != nil {
		return Customer{}, err
	}
	return dto.toCustomer(), nil
}

// UpdateCustomerEmail sets the email of an existing client.
func (c *Client) UpdateCustomerEmail(ctx context.Context, customerID, email string) (Customer, error) {
	body := map[string]string{"email": email}

	var dto customerDTO
	if err := c.do(ctx, "PUT", "clients/"+url.PathEscape(customerID), nil, body, &dto); err != nil {
		return Customer{}, err
	}
	return dto.toCustomer(), nil
}
