package engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/shopbot/internal/cart"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/strapi"
)

// maxLabelWidth keeps button labels on one line in mobile clients.
const maxLabelWidth = 32

// Telegram limits, counted in UTF-16 code units.
const (
	maxCaptionLen = 1024
	maxMessageLen = 4096
)

// User-facing texts.
const (
	textMenuGreeting   = "Please choose a product:"
	textMenu           = "Products:"
	textProductMissing = "Product not found."
	textItemMissing    = "This item is no longer in your cart."
	textButtonMissing  = "This button is no longer available."
	textCartEmpty      = "Your cart is empty."
	textCartHeader     = "Your cart:"
	textCartCleared    = "Your cart has been cleared."
	textOpFailed       = "Operation failed, please try again."
	textBackendBusy    = "The shop is temporarily unavailable, please try again in a moment."
	textEmailPrompt    = "Please send your email address and we will contact you."
	textEmailInvalid   = "That does not look like an email address. Please try again."
	textEmailSaved     = "Thank you! We will contact you at %s."
	textUseButtons     = "Please use the buttons below."
	textNoPrice        = "price not set"
	textNoProducts     = "No products are available right now."

	labelMenu     = "Back to menu"
	labelCart     = "Cart"
	labelAdd      = "Add to cart"
	labelClear    = "Clear cart"
	labelCheckout = "Checkout"
	labelRemove   = "Remove one: "
)

// Screen is one message to send.
type Screen struct {
	Text     string
	Photo    []byte
	Keyboard Keyboard
}

func button(label string, b Button) KeyButton {
	return KeyButton{
		Label: runewidth.Truncate(label, maxLabelWidth, "…"),
		Data:  b.Data(),
	}
}

func menuButton() KeyButton {
	return button(labelMenu, Button{Action: ActionMenu})
}

func cartButton() KeyButton {
	return button(labelCart, Button{Action: ActionCart})
}

// keyboard drops buttons whose payload would be rejected by the chat API.
func keyboard(rows ...[]KeyButton) Keyboard {
	var kb Keyboard
	for _, row := range rows {
		var kept []KeyButton
		for _, b := range row {
			if len(b.Data) > MaxButtonData {
				log.Warn(log.CatBot, "Button payload too long, skipped", "label", b.Label, "bytes", len(b.Data))
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			kb = kb.Row(kept...)
		}
	}
	return kb
}

func (v views) menu(products []strapi.Product, greeting bool) Screen {
	text := textMenu
	if greeting {
		text = textMenuGreeting
	}
	if len(products) == 0 {
		text = textNoProducts
	}

	rows := make([][]KeyButton, 0, len(products)+1)
	for _, p := range products {
		title := p.Title
		if title == "" {
			title = p.ID
		}
		rows = append(rows, []KeyButton{button(title, Button{Action: ActionProduct, ID: p.ID})})
	}
	rows = append(rows, []KeyButton{cartButton()})
	return Screen{Text: text, Keyboard: keyboard(rows...)}
}

func (v views) product(p strapi.Product, photo []byte) Screen {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n")
	if p.Price.Valid {
		fmt.Fprintf(&b, "Price: %s\n", v.money(p.Price.Decimal.StringFixed(2)))
	} else {
		fmt.Fprintf(&b, "Price: %s\n", textNoPrice)
	}
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}

	limit := maxMessageLen
	if len(photo) > 0 {
		limit = maxCaptionLen
	}
	return Screen{
		Text:  clip(strings.TrimRight(b.String(), "\n"), limit),
		Photo: photo,
		Keyboard: keyboard(
			[]KeyButton{menuButton(), button(labelAdd, Button{Action: ActionAdd, ID: p.ID})},
			[]KeyButton{cartButton()},
		),
	}
}

// cart renders the cart. notice, when set, is shown above the contents.
func (v views) cart(lines []cart.LineItem, notice string) Screen {
	var b strings.Builder
	if notice != "" {
		b.WriteString(notice)
		b.WriteString("\n\n")
	}

	if len(lines) == 0 {
		b.WriteString(textCartEmpty)
		return Screen{Text: b.String(), Keyboard: keyboard([]KeyButton{menuButton()})}
	}

	b.WriteString(textCartHeader)
	b.WriteString("\n")
	rows := make([][]KeyButton, 0, len(lines)+2)
	for _, l := range lines {
		title := l.Title
		if title == "" {
			title = "(removed product)"
		}
		b.WriteString("\n")
		b.WriteString(title)
		b.WriteString("\n")
		if sub, ok := l.Subtotal(); ok {
			fmt.Fprintf(&b, "%s × %d = %s\n",
				v.money(l.Price.Decimal.StringFixed(2)), l.Quantity, v.money(sub.StringFixed(2)))
		} else {
			fmt.Fprintf(&b, "%s × %d\n", textNoPrice, l.Quantity)
		}
		rows = append(rows, []KeyButton{button(labelRemove+title, Button{Action: ActionDelete, ID: l.ItemID})})
	}

	total, complete := cart.Total(lines)
	fmt.Fprintf(&b, "\nTotal: %s", v.money(total.StringFixed(2)))
	if !complete {
		b.WriteString(" (some prices are not set)")
	}

	rows = append(rows,
		[]KeyButton{menuButton(), button(labelClear, Button{Action: ActionClear})},
		[]KeyButton{button(labelCheckout, Button{Action: ActionCheckout})},
	)
	return Screen{Text: b.String(), Keyboard: keyboard(rows...)}
}

func (v views) emailPrompt(invalid bool) Screen {
	text := textEmailPrompt
	if invalid {
		text = textEmailInvalid
	}
	return Screen{Text: text, Keyboard: keyboard([]KeyButton{menuButton(), cartButton()})}
}

func (v views) notFound(text string) Screen {
	return Screen{Text: text, Keyboard: keyboard([]KeyButton{menuButton()})}
}

func (v views) hint() Screen {
	return Screen{Text: textUseButtons, Keyboard: keyboard([]KeyButton{menuButton(), cartButton()})}
}

// failed tells the user an action did not complete. A temporary backend
// failure gets a "try again shortly" wording.
func (v views) failed(temporary bool) Screen {
	text := textOpFailed
	if temporary {
		text = textBackendBusy
	}
	return Screen{Text: text, Keyboard: keyboard([]KeyButton{menuButton(), cartButton()})}
}

// views renders screens. It only carries display settings.
type views struct {
	currency string
}

func (v views) money(amount string) string {
	if v.currency == "" {
		return amount
	}
	return amount + " " + v.currency
}

// clip cuts s to at most limit UTF-16 code units and marks the cut with an
// ellipsis.
func clip(s string, limit int) string {
	if utf16Len(s) <= limit {
		return s
	}
	n := 0
	for i, r := range s {
		n += max(utf16.RuneLen(r), 1)
		if n > limit-1 {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace) + "…"
		}
	}
	return s
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += max(utf16.RuneLen(r), 1)
	}
	return n
}
