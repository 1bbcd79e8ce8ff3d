package strapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/shopbot/internal/testutil"
)

func newTestClient(t *testing.T, fake *testutil.FakeStrapi) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: testutil.Token})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr string
	}{
		{name: "empty", baseURL: "", wantErr: "base url is required"},
		{name: "blank", baseURL: "   ", wantErr: "base url is required"},
		{name: "bad scheme", baseURL: "ftp://cms.example", wantErr: "must be http or https"},
		{name: "no scheme", baseURL: "cms.example", wantErr: "must be http or https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{BaseURL: tt.baseURL})
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://cms.example/"})
	require.NoError(t, err)

	require.Equal(t, "https://cms.example", c.BaseURL())
	require.Equal(t, DefaultTimeout, c.http.Timeout)
	require.Equal(t, "https://cms.example/api/carts/abc", c.endpoint("carts/abc", nil))
}

func TestEndpoint_CustomPrefixAndBasePath(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://cms.example/shop", APIPrefix: "content/"})
	require.NoError(t, err)

	require.Equal(t, "https://cms.example/shop/content/products", c.endpoint("/products", nil))
}

func TestListProducts(t *testing.T) {
	fake := testutil.NewFakeStrapi(t).
		WithProduct("p1", "Widget", testutil.Price("10"), testutil.Description("A widget"), testutil.Picture("/uploads/w.png")).
		WithProduct("p2", "Gadget", testutil.Price("2.50")).
		WithProduct("p3", "Free sample", testutil.NullPrice()).
		WithProduct("p4", "Mystery", testutil.NoPrice())
	c := newTestClient(t, fake)

	products, err := c.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 4)

	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Widget", products[0].Title)
	assert.Equal(t, "A widget", products[0].Description)
	assert.True(t, products[0].Price.Valid)
	assert.Equal(t, "10", products[0].Price.Decimal.String())
	assert.Equal(t, "/uploads/w.png", products[0].PictureURL)

	assert.Equal(t, "2.5", products[1].Price.Decimal.String())
	assert.Empty(t, products[1].PictureURL)

	assert.False(t, products[2].Price.Valid)
	assert.False(t, products[3].Price.Valid)

	reqs := fake.Requests(http.MethodGet, "products")
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "populate%5Bpicture%5D%5Bfields%5D%5B0%5D=url")
}

func TestListProducts_PageSize(t *testing.T) {
	fake := testutil.NewFakeStrapi(t).WithProduct("p1", "Widget")
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: testutil.Token, PageSize: 50})
	require.NoError(t, err)

	_, err = c.ListProducts(context.Background())
	require.NoError(t, err)

	reqs := fake.Requests(http.MethodGet, "products")
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "pagination%5BpageSize%5D=50")
}

func TestFindCartItems_FollowsPages(t *testing.T) {
	fake := testutil.NewFakeStrapi(t).WithMaxPageSize(2)
	cartID := fake.WithCart("42", "")
	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, fake.WithItem(cartID, fmt.Sprintf("p%d", i), 1))
	}
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: testutil.Token, PageSize: 1})
	require.NoError(t, err)

	items, err := c.FindCartItems(context.Background(), ItemFilter{CartID: cartID})
	require.NoError(t, err)
	got := make([]string, 0, len(items))
	for _, it := range items {
		got = append(got, it.ID)
	}
	require.Equal(t, want, got)

	reqs := fake.Requests(http.MethodGet, "cart-items")
	require.Len(t, reqs, 3)
	for i, r := range reqs {
		assert.Contains(t, r.Query, fmt.Sprintf("pagination%%5Bpage%%5D=%d", i+1))
		assert.Contains(t, r.Query, "pagination%5BpageSize%5D=100")
	}
}

func TestFindCustomers_FollowsPages(t *testing.T) {
	fake := testutil.NewFakeStrapi(t).WithMaxPageSize(1)
	fake.WithCustomer("42", "a@example.com")
	fake.WithCustomer("42", "b@example.com")
	c := newTestClient(t, fake)

	found, err := c.FindCustomers(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Len(t, fake.Requests(http.MethodGet, "clients"), 2)
}

func TestCustomers_CreateFindUpdate(t *testing.T) {
	fake := testutil.NewFakeStrapi(t)
	c := newTestClient(t, fake)
	ctx := context.Background()

	found, err := c.FindCustomers(ctx, "42")
	require.NoError(t, err)
	require.Empty(t, found)

	created, err := c.CreateCustomer(ctx, "42", "42@telegram.placeholder")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "42", created.UserID)

	found, err = c.FindCustomers(ctx, "42")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, created.ID, found[0].ID)

	updated, err := c.UpdateCustomerEmail(ctx, created.ID, "a@b.co")
	require.NoError(t, err)
	require.Equal(t, "a@b.co", updated.Email)
	require.Equal(t, "a@b.co", fake.Customers("42")[0].Email)
}

func TestCarts_CreateAndAttach(t *testing.T) {
	fake := testutil.NewFakeStrapi(t)
	c := newTestClient(t, fake)
	ctx := context.Background()

	cart, err := c.CreateCart(ctx, "7", "")
	require.NoError(t, err)
	require.Empty(t, cart.ClientID)

	customerID := fake.WithCustomer("7", "x@y.z")
	attached, err := c.AttachCustomer(ctx, cart.ID, customerID)
	require.NoError(t, err)
	require.Equal(t, customerID, attached.ClientID)

	carts, err := c.FindCarts(ctx, "7")
	require.NoError(t, err)
	require.Len(t, carts, 1)
	require.Equal(t, cart.ID, carts[0].ID)
	require.Equal(t, customerID, carts[0].ClientID)
}

func TestCartItems_Lifecycle(t *testing.T) {
	fake := testutil.NewFakeStrapi(t).WithProduct("p1", "Widget", testutil.Price("10"))
	c := newTestClient(t, fake)
	ctx := context.Background()
	cartID := fake.WithCart("1", "")

	item, err := c.CreateCartItem(ctx, cartID, "p1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, item.Quantity)
	require.Equal(t, cartID, item.CartID)

	items, err := c.FindCartItems(ctx, ItemFilter{CartID: cartID, ProductID: "p1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].Product)

	updated, err := c.UpdateCartItemQuantity(ctx, item.ID, 3)
	require.NoError(t, err)
	require.Equal(t, 3, updated.Quantity)

	items, err = c.FindCartItems(ctx, ItemFilter{CartID: cartID, WithProduct: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Product)
	require.Equal(t, "Widget", items[0].Product.Title)
	require.Equal(t, "10", items[0].Product.Price.Decimal.String())

	got, err := c.GetCartItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Quantity)

	require.NoError(t, c.DeleteCartItem(ctx, item.ID))
	require.Empty(t, fake.Items(cartID))

	_, err = c.GetCartItem(ctx, item.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAPIError_FromEnvelope(t *testing.T) {
	fake := testutil.NewFakeStrapi(t)
	fake.FailNext(http.MethodGet, "clients", http.StatusInternalServerError, 1)
	c := newTestClient(t, fake)

	_, err := c.FindCustomers(context.Background(), "1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Equal(t, "injected failure", apiErr.Message)
	require.True(t, apiErr.Temporary())
	require.NotErrorIs(t, err, ErrNotFound)

	// The failure was consumed.
	_, err = c.FindCustomers(context.Background(), "1")
	require.NoError(t, err)
}

func TestAPIError_Unauthorized(t *testing.T) {
	fake := testutil.NewFakeStrapi(t)
	c, err := NewClient(Config{BaseURL: fake.URL(), Token: "wrong"})
	require.NoError(t, err)

	_, err = c.ListProducts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.False(t, apiErr.Temporary())
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{Method: "GET", Path: "carts", StatusCode: 503}
	require.Equal(t, "strapi: GET carts: 503 Service Unavailable", err.Error())

	err.Message = "down for maintenance"
	require.Equal(t, "strapi: GET carts: 503 down for maintenance", err.Error())
}

func TestDo_MissingDataIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.CreateCustomer(context.Background(), "1", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "response has no data")
}

func TestDo_WrapsBodyInDataEnvelope(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{"documentId":"c1","tg_id":"5"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)

	cart, err := c.CreateCart(context.Background(), "5", "cust-1")
	require.NoError(t, err)
	require.Equal(t, "c1", cart.ID)
	require.Equal(t, "cust-1", cart.ClientID)
	require.JSONEq(t, `{"tg_id":"5","client":"cust-1"}`, string(got["data"]))
}

func TestDo_ContextCanceled(t *testing.T) {
	fake := testutil.NewFakeStrapi(t)
	c := newTestClient(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListProducts(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
