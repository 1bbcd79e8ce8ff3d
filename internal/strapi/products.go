package strapi

import (
	"context"
	"net/url"
	"strconv"
)

// ListProducts reads one page of products with their picture URL populated.
// Pagination beyond the first page is not followed.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	q := url.Values{}
	if c.pageSize > 0 {
		q.Set("pagination[pageSize]", strconv.Itoa(c.pageSize))
	}
	q.Set("fields[0]", "title")
	q.Set("fields[1]", "description")
	q.Set("fields[2]", "price")
	q.Set("populate[picture][fields][0]", "url")

	var dtos []productDTO
	if err := c.do(ctx, "GET", "products", q, nil, &dtos); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(dtos))
	for _, d := range dtos {
		products = append(products, d.toProduct())
	}
	return products, nil
}
