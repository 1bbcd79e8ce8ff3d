package testutil

// fakeProduct is a product row served by FakeStrapi.
type fakeProduct struct {
	id          string
	title       string
	description string
	// price is a raw JSON literal; empty omits the field entirely.
	price   string
	picture string
}

// ProductOption configures a product added with FakeStrapi.WithProduct.
type ProductOption func(*fakeProduct)

// Price sets the price as a JSON number literal, e.g. "10" or "9.50".
func Price(literal string) ProductOption {
	return func(p *fakeProduct) {
		p.price = literal
	}
}

// NullPrice makes the backend send "price": null.
func NullPrice() ProductOption {
	return func(p *fakeProduct) {
		p.price = "null"
	}
}

// NoPrice omits the price field from the response.
func NoPrice() ProductOption {
	return func(p *fakeProduct) {
		p.price = ""
	}
}

// Description sets the product description.
func Description(text string) ProductOption {
	return func(p *fakeProduct) {
		p.description = text
	}
}

// Picture sets the picture URL (usually "/uploads/<name>").
func Picture(url string) ProductOption {
	return func(p *fakeProduct) {
		p.picture = url
	}
}

func defaultProduct(id, title string) fakeProduct {
	return fakeProduct{
		id:    id,
		title: title,
		price: "1",
	}
}
