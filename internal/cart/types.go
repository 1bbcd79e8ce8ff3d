package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zjrosen/shopbot/internal/strapi"
)

// LineItem is a flattened cart line used for display and for the
// "delete this line" buttons.
type LineItem struct {
	ItemID    string
	ProductID string
	Title     string
	// Price is invalid when the product has no price or was deleted.
	Price    decimal.NullDecimal
	Quantity int
}

// Subtotal returns price times quantity, and false if the price is unknown.
func (l LineItem) Subtotal() (decimal.Decimal, bool) {
	if !l.Price.Valid {
		return decimal.Zero, false
	}
	return l.Price.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity))), true
}

func lineItemFrom(it strapi.CartItem) LineItem {
	line := LineItem{ItemID: it.ID, Quantity: it.Quantity}
	if it.Product != nil {
		line.ProductID = it.Product.ID
		line.Title = it.Product.Title
		line.Price = it.Product.Price
	}
	return line
}

// Total sums the subtotals of lines. complete is false when at least one
// line has an unknown price; those lines contribute nothing.
func Total(lines []LineItem) (total decimal.Decimal, complete bool) {
	total = decimal.Zero
	complete = true
	for _, l := range lines {
		sub, ok := l.Subtotal()
		if !ok {
			complete = false
			continue
		}
		total = total.Add(sub)
	}
	return total, complete
}

// ClearError reports a ClearCart that stopped partway.
type ClearError struct {
	// Deleted is the number of lines removed before the failure.
	Deleted int
	// Remaining is the number of lines of the last listing that were not
	// removed, including the one whose delete failed. It is zero when a
	// relisting failed.
	Remaining int
	Err       error
}

func (e *ClearError) Error() string {
	return fmt.Sprintf("clear cart: deleted %d, %d remaining: %v", e.Deleted, e.Remaining, e.Err)
}

func (e *ClearError) Unwrap() error {
	return e.Err
}
