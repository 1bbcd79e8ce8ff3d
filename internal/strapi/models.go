package strapi

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry.
type Product struct {
	ID          string
	Title       string
	Description string
	// Price is invalid when the backend omitted it or sent a negative value.
	Price decimal.NullDecimal
	// PictureURL is empty when the product has no image.
	PictureURL string
}

// Customer is a Strapi "client" entry: one per chat user.
type Customer struct {
	ID     string
	UserID string
	Email  string
}

// Cart is a Strapi "cart" entry.
type Cart struct {
	ID       string
	UserID   string
	ClientID string
}

// CartItem is one (cart, product, quantity) line.
type CartItem struct {
	ID       string
	Quantity int
	CartID   string
	// Product is nil unless the request populated it.
	Product *Product
}

// entry holds the identifier fields every Strapi record carries. v5 routes
// by documentId; the numeric id is the v4 fallback.
type entry struct {
	DocumentID string      `json:"documentId"`
	NumericID  json.Number `json:"id"`
}

func (e entry) key() string {
	if e.DocumentID != "" {
		return e.DocumentID
	}
	return e.NumericID.String()
}

type media struct {
	URL string `json:"url"`
}

type productDTO struct {
	entry
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Price       decimal.NullDecimal `json:"price"`
	Picture     json.RawMessage     `json:"picture"`
}

func (d productDTO) toProduct() Product {
	p := Product{
		ID:         d.key(),
		Price:      d.Price,
		PictureURL: pictureURL(d.Picture),
	}
	if d.Title != nil {
		p.Title = *d.Title
	}
	if d.Description != nil {
		p.Description = *d.Description
	}
	if p.Price.Valid && p.Price.Decimal.IsNegative() {
		p.Price = decimal.NullDecimal{}
	}
	return p
}

// pictureURL accepts a single media object, a list of them (multiple: true
// media fields), or null.
func pictureURL(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '[' {
		var list []media
		if json.Unmarshal(raw, &list) != nil {
			return ""
		}
		for _, m := range list {
			if m.URL != "" {
				return m.URL
			}
		}
		return ""
	}
	var m media
	if json.Unmarshal(raw, &m) != nil {
		return ""
	}
	return m.URL
}

type customerDTO struct {
	entry
	UserID string  `json:"tg_id"`
	Email  *string `json:"email"`
}

func (d customerDTO) toCustomer() Customer {
	c := Customer{ID: d.key(), UserID: d.UserID}
	if d.Email != nil {
		c.Email = *d.Email
	}
	return c
}

type cartDTO struct {
	entry
	UserID string `json:"tg_id"`
	Client *entry `json:"client"`
}

func (d cartDTO) toCart() Cart {
	c := Cart{ID: d.key(), UserID: d.UserID}
	if d.Client != nil {
		c.ClientID = d.Client.key()
	}
	return c
}

type cartItemDTO struct {
	entry
	Quantity int         `json:"quantity"`
	Cart     *entry      `json:"cart"`
	Product  *productDTO `json:"product"`
}

func (d cartItemDTO) toCartItem() CartItem {
	item := CartItem{ID: d.key(), Quantity: d.Quantity}
	if d.Cart != nil {
		item.CartID = d.Cart.key()
	}
	if d.Product != nil {
		p := d.Product.toProduct()
		item.Product = &p
	}
	return item
}
