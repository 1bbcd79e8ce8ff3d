// Package strapi is the HTTP client for the Strapi CMS that owns the product
// catalog, customers, carts and cart items.
//
// Every method maps to exactly one HTTP request; the package offers no
// multi-step operations and no retries. Composition lives in package cart.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/shopbot/internal/log"
)

const (
	// DefaultTimeout bounds a single request when Config.Timeout is zero.
	DefaultTimeout = 10 * time.Second
	// DefaultAPIPrefix is where Strapi mounts its content API.
	DefaultAPIPrefix = "/api"

	tracerName = "github.com/zjrosen/shopbot/internal/strapi"
	// maxImageBytes caps thumbnail downloads; Telegram rejects larger photos anyway.
	maxImageBytes = 10 << 20

	// listPageSize is requested when following pages. It matches Strapi's
	// default maxLimit, which the backend caps larger sizes to anyway.
	listPageSize = 100
	// maxListPages bounds paging when the backend keeps reporting more pages.
	maxListPages = 1000
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Token     string
	APIPrefix string
	Timeout   time.Duration
	// PageSize is sent as pagination[pageSize] on the product list.
	// Zero leaves the backend default in place. Other collections are
	// always read page by page to the end.
	PageSize int
}

// Client performs authenticated requests against one Strapi instance.
// It is safe for concurrent use.
type Client struct {
	base      *url.URL
	apiPrefix string
	token     string
	pageSize  int
	http      *http.Client
	tracer    trace.Tracer
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("strapi: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("strapi: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("strapi: base url must be http or https, got %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}

	c := &Client{
		base:      base,
		apiPrefix: "/" + strings.Trim(prefix, "/"),
		token:     cfg.Token,
		pageSize:  cfg.PageSize,
		http:      &http.Client{Timeout: timeout},
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// endpoint builds the absolute URL for a content-API path such as "carts/abc".
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + c.apiPrefix + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// dataEnvelope is the {"data": ...} wrapper Strapi uses for bodies and responses.
type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// pageMeta is meta.pagination of a list response.
type pageMeta struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

type listEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination pageMeta `json:"pagination"`
	} `json:"meta"`
}

// do sends one JSON request. body, when non-nil, is wrapped in a data
// envelope; out, when non-nil, receives the decoded "data" member.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.send(ctx, method, path, query, body, out, nil)
}

// listAll GETs path page by page until the backend reports the last page
// and returns every row. A response without pagination meta ends the walk.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var rows []T
	for page := 1; page <= maxListPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("pagination[page]", strconv.Itoa(page))
		q.Set("pagination[pageSize]", strconv.Itoa(listPageSize))

		var batch []T
		var meta pageMeta
		if err := c.send(ctx, http.MethodGet, path, q, nil, &batch, &meta); err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if len(batch) == 0 || meta.PageCount <= page {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("strapi: list %s: more than %d pages", path, maxListPages)
}

// send is do that also fills meta, when non-nil, from meta.pagination.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, meta *pageMeta) error {
	ctx, span := c.tracer.Start(ctx, "strapi."+method+" "+resourceOf(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", c.apiPrefix+"/"+path),
		),
	)
	defer span.End()

	err := c.roundTrip(ctx, span, method, path, query, body, out, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, span trace.Span, method, path string, query url.Values, body, out any, meta *pageMeta) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(dataEnvelope[any]{Data: body})
		if err != nil {
			return fmt.Errorf("strapi: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("strapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.ErrorErr(log.CatBackend, "request failed", err, "method", method, "path", path)
		return fmt.Errorf("strapi: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	log.Debug(log.CatBackend, "request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("strapi: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Name = env.Error.Name
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	env := listEnvelope{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("strapi: decode %s %s: %w", method, path, err)
	}
	if meta != nil {
		*meta = env.Meta.Pagination
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("strapi: decode %s %s: response has no data", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("strapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

func resourceOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
