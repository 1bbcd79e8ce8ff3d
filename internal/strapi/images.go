package strapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FetchImage downloads the bytes behind a media URL. Relative URLs (the
// usual "/uploads/..." form) are resolved against the base URL. Image
// requests carry no bearer token.
func (c *Client) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "strapi.GET image", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("strapi: build image request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("strapi: fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := &APIError{Method: http.MethodGet, Path: ref, StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("strapi: read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("strapi: image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("strapi: parse image url: %w", err)
	}
	return c.base.ResolveReference(u).String(), nil
}
