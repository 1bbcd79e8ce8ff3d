// Package testutil provides test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Token is the bearer token FakeStrapi expects unless overridden.
const Token = "test-token"

// Strapi's pagination defaults.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// FakeStrapi is an in-memory Strapi v5 content API covering the products,
// clients, carts and cart-items collections plus /uploads images.
// It keeps insertion order so list responses are deterministic.
type FakeStrapi struct {
	t      *testing.T
	server *httptest.Server
	token  string

	mu        sync.Mutex
	nextID    int
	products  []fakeProduct
	customers []*FakeCustomer
	carts     []*FakeCart
	items     []*FakeItem
	images    map[string][]byte
	failures  []*failure
	// maxPageSize caps pagination[pageSize] like Strapi's maxLimit.
	maxPageSize int
	requests    []Request

	// OnRequest, when set, runs before each request is handled and outside
	// the fake's lock. Tests use it to interleave concurrent callers.
	OnRequest func(method, path string)
}

// FakeCustomer is a stored "client" row.
type FakeCustomer struct {
	ID     string
	UserID string
	Email  string
}

// FakeCart is a stored "cart" row.
type FakeCart struct {
	ID       string
	UserID   string
	ClientID string
}

// FakeItem is a stored "cart-item" row.
type FakeItem struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
}

// Request records one request received by the fake.
type Request struct {
	Method string
	Path   string
	Query  string
}

type failure struct {
	method    string
	prefix    string
	status    int
	remaining int // negative means forever
}

// NewFakeStrapi starts a fake backend that is closed when the test ends.
func NewFakeStrapi(t *testing.T) *FakeStrapi {
	t.Helper()
	f := &FakeStrapi{
		t:           t,
		token:       Token,
		images:      map[string][]byte{},
		maxPageSize: MaxPageSize,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL to configure a strapi.Client with.
func (f *FakeStrapi) URL() string {
	return f.server.URL
}

// WithMaxPageSize lowers the largest page the fake returns so tests can
// exercise paging with a few rows.
func (f *FakeStrapi) WithMaxPageSize(n int) *FakeStrapi {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxPageSize = n
	return f
}

// WithToken changes the accepted bearer token; empty disables the check.
func (f *FakeStrapi) WithToken(token string) *FakeStrapi {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	return f
}

// WithProduct adds a catalog product.
func (f *FakeStrapi) WithProduct(id, title string, opts ...ProductOption) *FakeStrapi {
	p := defaultProduct(id, title)
	for _, opt := range opts {
		opt(&p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append(f.products, p)
	return f
}

// WithImage serves data at path (for example "/uploads/widget.png").
func (f *FakeStrapi) WithImage(path string, data []byte) *FakeStrapi {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[path] = data
	return f
}

// WithCustomer seeds an existing client row and returns its id.
func (f *FakeStrapi) WithCustomer(userID, email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &FakeCustomer{ID: f.newID("client"), UserID: userID, Email: email}
	f.customers = append(f.customers, c)
	return c.ID
}

// WithCart seeds an existing cart row and returns its id.
func (f *FakeStrapi) WithCart(userID, clientID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &FakeCart{ID: f.newID("cart"), UserID: userID, ClientID: clientID}
	f.carts = append(f.carts, c)
	return c.ID
}

// WithItem seeds a cart item row and returns its id. Duplicate
// (cart, product) rows are allowed, as on the real backend.
func (f *FakeStrapi) WithItem(cartID, productID string, quantity int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := &FakeItem{ID: f.newID("item"), CartID: cartID, ProductID: productID, Quantity: quantity}
	f.items = append(f.items, it)
	return it.ID
}

// FailNext makes the next n requests matching method and path prefix
// (relative to /api, e.g. "cart-items") answer with status.
func (f *FakeStrapi) FailNext(method, prefix string, status, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{method: method, prefix: prefix, status: status, remaining: n})
}

// FailAlways makes every matching request answer with status.
func (f *FakeStrapi) FailAlways(method, prefix string, status int) {
	f.FailNext(method, prefix, status, -1)
}

// ClearFailures removes all injected failures.
func (f *FakeStrapi) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}

// Items returns copies of the cart item rows of cartID.
func (f *FakeStrapi) Items(cartID string) []FakeItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeItem
	for _, it := range f.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out
}

// Customers returns copies of the client rows for userID.
func (f *FakeStrapi) Customers(userID string) []FakeCustomer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeCustomer
	for _, c := range f.customers {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out
}

// Carts returns copies of the cart rows for userID.
func (f *FakeStrapi) Carts(userID string) []FakeCart {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeCart
	for _, c := range f.carts {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out
}

// Requests returns the recorded requests matching method and path prefix.
// An empty method matches any method.
func (f *FakeStrapi) Requests(method, prefix string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if (method == "" || r.Method == method) && strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeStrapi) newID(kind string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", kind, f.nextID)
}

func (f *FakeStrapi) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/uploads/") {
		f.serveImage(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	if path == r.URL.Path {
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
		return
	}

	if hook := f.OnRequest; hook != nil {
		hook(r.Method, path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, Request{Method: r.Method, Path: path, Query: r.URL.RawQuery})

	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		writeError(w, http.StatusUnauthorized, "UnauthorizedError", "Missing or invalid credentials")
		return
	}
	if status, ok := f.injectedFailure(r.Method, path); ok {
		writeError(w, status, "ApplicationError", "injected failure")
		return
	}

	collection, id, _ := strings.Cut(path, "/")
	switch collection {
	case "products":
		f.handleProducts(w, r)
	case "clients":
		f.handleCustomers(w, r, id)
	case "carts":
		f.handleCarts(w, r, id)
	case "cart-items":
		f.handleItems(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
	}
}

func (f *FakeStrapi) injectedFailure(method, path string) (int, bool) {
	for i, fl := range f.failures {
		if fl.method != method || !strings.HasPrefix(path, fl.prefix) {
			continue
		}
		if fl.remaining > 0 {
			fl.remaining--
			if fl.remaining == 0 {
				f.failures = append(f.failures[:i], f.failures[i+1:]...)
			}
		}
		return fl.status, true
	}
	return 0, false
}

func (f *FakeStrapi) serveImage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data, ok := f.images[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (f *FakeStrapi) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "Method Not Allowed")
		return
	}
	rows := make([]json.RawMessage, 0, len(f.products))
	for i, p := range f.products {
		rows = append(rows, productJSON(i+1, p))
	}
	writeList(w, r, f.maxPageSize, rows)
}

func productJSON(numericID int, p fakeProduct) json.RawMessage {
	fields := map[string]json.RawMessage{
		"id":          mustJSON(numericID),
		"documentId":  mustJSON(p.id),
		"title":       mustJSON(p.title),
		"description": mustJSON(p.description),
	}
	if p.price != "" {
		fields["price"] = json.RawMessage(p.price)
	}
	if p.picture != "" {
		fields["picture"] = mustJSON(map[string]string{"url": p.picture})
	} else {
		fields["picture"] = json.RawMessage("null")
	}
	return mustJSON(fields)
}

func (f *FakeStrapi) productByID(id string) (fakeProduct, int, bool) {
	for i, p := range f.products {
		if p.id == id {
			return p, i + 1, true
		}
	}
	return fakeProduct{}, 0, false
}

func (f *FakeStrapi) handleCustomers(w http.ResponseWriter, r *http.Request, id string) {
	switch {
	case r.Method == http.MethodGet && id == "":
		userID := r.URL.Query().Get("filters[tg_id][$eq]")
		rows := []map[string]any{}
		for _, c := range f.customers {
			if userID == "" || c.UserID == userID {
				rows = append(rows, customerJSON(c))
			}
		}
		writeList(w, r, f.maxPageSize, rows)
	case r.Method == http.MethodPost && id == "":
		var body struct {
			UserID string `json:"tg_id"`
			Email  string `json:"email"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.UserID == "" {
			writeError(w, http.StatusBadRequest, "ValidationError", "tg_id is required")
			return
		}
		c := &FakeCustomer{ID: f.newID("client"), UserID: body.UserID, Email: body.Email}
		f.customers = append(f.customers, c)
		writeData(w, http.StatusCreated, customerJSON(c))
	case r.Method == http.MethodPut && id != "":
		c := f.customerByID(id)
		if c == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		var body struct {
			Email *string `json:"email"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.Email != nil {
			c.Email = *body.Email
		}
		writeData(w, http.StatusOK, customerJSON(c))
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "Method Not Allowed")
	}
}

func (f *FakeStrapi) customerByID(id string) *FakeCustomer {
	for _, c := range f.customers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func customerJSON(c *FakeCustomer) map[string]any {
	return map[string]any{"documentId": c.ID, "tg_id": c.UserID, "email": c.Email}
}

func (f *FakeStrapi) handleCarts(w http.ResponseWriter, r *http.Request, id string) {
	switch {
	case r.Method == http.MethodGet && id == "":
		userID := r.URL.Query().Get("filters[tg_id][$eq]")
		populate := r.URL.Query().Has("populate[client][fields][0]")
		rows := []map[string]any{}
		for _, c := range f.carts {
			if userID == "" || c.UserID == userID {
				rows = append(rows, cartJSON(c, populate))
			}
		}
		writeList(w, r, f.maxPageSize, rows)
	case r.Method == http.MethodPost && id == "":
		var body struct {
			UserID string `json:"tg_id"`
			Client string `json:"client"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.UserID == "" {
			writeError(w, http.StatusBadRequest, "ValidationError", "tg_id is required")
			return
		}
		c := &FakeCart{ID: f.newID("cart"), UserID: body.UserID, ClientID: body.Client}
		f.carts = append(f.carts, c)
		writeData(w, http.StatusCreated, cartJSON(c, false))
	case r.Method == http.MethodPut && id != "":
		var cart *FakeCart
		for _, c := range f.carts {
			if c.ID == id {
				cart = c
			}
		}
		if cart == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		var body struct {
			Client *string `json:"client"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.Client != nil {
			cart.ClientID = *body.Client
		}
		writeData(w, http.StatusOK, cartJSON(cart, false))
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "Method Not Allowed")
	}
}

func cartJSON(c *FakeCart, populateClient bool) map[string]any {
	row := map[string]any{"documentId": c.ID, "tg_id": c.UserID}
	if populateClient {
		if c.ClientID != "" {
			row["client"] = map[string]string{"documentId": c.ClientID}
		} else {
			row["client"] = nil
		}
	}
	return row
}

func (f *FakeStrapi) handleItems(w http.ResponseWriter, r *http.Request, id string) {
	switch {
	case r.Method == http.MethodGet && id == "":
		q := r.URL.Query()
		cartID := q.Get("filters[cart][documentId][$eq]")
		productID := q.Get("filters[product][documentId][$eq]")
		populate := q.Has("populate[product][fields][0]")
		rows := []map[string]any{}
		for _, it := range f.items {
			if cartID != "" && it.CartID != cartID {
				continue
			}
			if productID != "" && it.ProductID != productID {
				continue
			}
			rows = append(rows, f.itemJSON(it, populate))
		}
		writeList(w, r, f.maxPageSize, rows)
	case r.Method == http.MethodGet:
		it := f.itemByID(id)
		if it == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		writeData(w, http.StatusOK, f.itemJSON(it, false))
	case r.Method == http.MethodPost && id == "":
		var body struct {
			Product  string `json:"product"`
			Cart     string `json:"cart"`
			Quantity int    `json:"quantity"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.Quantity < 1 || body.Cart == "" || body.Product == "" {
			writeError(w, http.StatusBadRequest, "ValidationError", "cart, product and quantity >= 1 are required")
			return
		}
		it := &FakeItem{ID: f.newID("item"), CartID: body.Cart, ProductID: body.Product, Quantity: body.Quantity}
		f.items = append(f.items, it)
		writeData(w, http.StatusCreated, f.itemJSON(it, false))
	case r.Method == http.MethodPut:
		it := f.itemByID(id)
		if it == nil {
			writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
			return
		}
		var body struct {
			Quantity int `json:"quantity"`
		}
		if !readData(w, r, &body) {
			return
		}
		if body.Quantity < 1 {
			writeError(w, http.StatusBadRequest, "ValidationError", "quantity must be >= 1")
			return
		}
		it.Quantity = body.Quantity
		writeData(w, http.StatusOK, f.itemJSON(it, false))
	case r.Method == http.MethodDelete:
		for i, it := range f.items {
			if it.ID == id {
				f.items = append(f.items[:i], f.items[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeError(w, http.StatusNotFound, "NotFoundError", "Not Found")
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "Method Not Allowed")
	}
}

func (f *FakeStrapi) itemByID(id string) *FakeItem {
	for _, it := range f.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (f *FakeStrapi) itemJSON(it *FakeItem, populateProduct bool) map[string]any {
	row := map[string]any{
		"documentId": it.ID,
		"quantity":   it.Quantity,
		"cart":       map[string]string{"documentId": it.CartID},
	}
	if populateProduct {
		if p, n, ok := f.productByID(it.ProductID); ok {
			row["product"] = productJSON(n, p)
		} else {
			row["product"] = nil
		}
	}
	return row
}

// ItemRowCount counts rows for a (cart, product) pair.
func (f *FakeStrapi) ItemRowCount(cartID, productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, it := range f.items {
		if it.CartID == cartID && it.ProductID == productID {
			n++
		}
	}
	return n
}

// ProductIDs returns the ids of the seeded catalog, sorted.
func (f *FakeStrapi) ProductIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.products))
	for _, p := range f.products {
		ids = append(ids, p.id)
	}
	sort.Strings(ids)
	return ids
}

func readData(w http.ResponseWriter, r *http.Request, v any) bool {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || len(env.Data) == 0 {
		writeError(w, http.StatusBadRequest, "ValidationError", "Missing \"data\" payload in the request body")
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "meta": map[string]any{}})
}

// writeList serves one page of rows per pagination[page] and
// pagination[pageSize], with meta.pagination filled in.
func writeList[T any](w http.ResponseWriter, r *http.Request, maxPageSize int, rows []T) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("pagination[page]"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(q.Get("pagination[pageSize]"))
	if err != nil || size < 1 {
		size = DefaultPageSize
	}
	size = min(size, maxPageSize)

	total := len(rows)
	pageCount := (total + size - 1) / size
	from := min((page-1)*size, total)
	to := min(from+size, total)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": rows[from:to],
		"meta": map[string]any{
			"pagination": map[string]int{
				"page": page, "pageSize": size, "pageCount": pageCount, "total": total,
			},
		},
	})
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"status":  status,
			"name":    name,
			"message": message,
		},
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
