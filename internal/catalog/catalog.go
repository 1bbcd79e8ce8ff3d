// Package catalog keeps a per-process snapshot of the product list.
//
// The snapshot is replaced wholesale by Refresh and otherwise only loaded
// on demand when absent, so prices shown between refreshes may be stale.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/shopbot/internal/cachemanager"
	"github.com/zjrosen/shopbot/internal/log"
	"github.com/zjrosen/shopbot/internal/strapi"
)

// DefaultImageTTL is how long downloaded thumbnails are kept.
const DefaultImageTTL = 30 * time.Minute

// ErrNoThumbnail is returned by Thumbnail for a product without a picture.
var ErrNoThumbnail = errors.New("catalog: product has no thumbnail")

// Source loads products and their images. *strapi.Client implements it.
type Source interface {
	ListProducts(ctx context.Context) ([]strapi.Product, error)
	FetchImage(ctx context.Context, ref string) ([]byte, error)
}

var _ Source = (*strapi.Client)(nil)

type snapshotKey string

const currentSnapshot snapshotKey = "products"

type imageKey string

// Config tunes the cache.
type Config struct {
	// ImageTTL is the lifetime of a cached thumbnail. Zero uses DefaultImageTTL.
	ImageTTL time.Duration
	// DisableImageCache fetches thumbnails on every view.
	DisableImageCache bool
}

// Cache is the catalog snapshot plus a thumbnail cache. It is safe for
// concurrent use.
type Cache struct {
	source   Source
	snapshot cachemanager.CacheManager[snapshotKey, []strapi.Product]
	images   *cachemanager.ReadThroughCache[imageKey, []byte]

	// refreshMu serializes backend reads so concurrent on-demand loads
	// issue one request.
	refreshMu   sync.Mutex
	refreshedAt time.Time
}

// New creates an empty Cache.
func New(source Source, cfg Config) *Cache {
	ttl := cfg.ImageTTL
	if ttl <= 0 {
		ttl = DefaultImageTTL
	}
	imageStore := cachemanager.NewInMemoryCacheManager[imageKey, []byte](
		"thumbnails", ttl, cachemanager.DefaultCleanupInterval)

	return &Cache{
		source: source,
		snapshot: cachemanager.NewInMemoryCacheManager[snapshotKey, []strapi.Product](
			"catalog", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		images: cachemanager.NewReadThroughCache[imageKey, []byte](imageStore,
			func(ctx context.Context, ref imageKey) ([]byte, error) {
				return source.FetchImage(ctx, string(ref))
			},
			cachemanager.ReadThroughOptions{TTL: ttl, Bypass: cfg.DisableImageCache, Sliding: true}),
	}
}

// Refresh reads all products in one request and replaces the snapshot.
// On failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) ([]strapi.Product, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Cache) refreshLocked(ctx context.Context) ([]strapi.Product, error) {
	products, err := c.source.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh catalog: %w", err)
	}
	c.snapshot.Set(ctx, currentSnapshot, products, cachemanager.NoExpiration)
	c.refreshedAt = time.Now()
	log.Info(log.CatCatalog, "Catalog refreshed", "products", len(products))
	return products, nil
}

// Products returns the snapshot, loading it once if absent.
func (c *Cache) Products(ctx context.Context) ([]strapi.Product, error) {
	if products, ok := c.snapshot.Get(ctx, currentSnapshot); ok {
		return products, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if products, ok := c.snapshot.Get(ctx, currentSnapshot); ok {
		return products, nil
	}
	log.Debug(log.CatCatalog, "Catalog snapshot absent, loading on demand")
	return c.refreshLocked(ctx)
}

// Lookup finds a product by id in the snapshot.
func (c *Cache) Lookup(ctx context.Context, id string) (strapi.Product, bool, error) {
	products, err := c.Products(ctx)
	if err != nil {
		return strapi.Product{}, false, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, true, nil
		}
	}
	return strapi.Product{}, false, nil
}

// Thumbnail returns the image bytes of p.
func (c *Cache) Thumbnail(ctx context.Context, p strapi.Product) ([]byte, error) {
	if p.PictureURL == "" {
		return nil, ErrNoThumbnail
	}
	data, err := c.images.Get(ctx, imageKey(p.PictureURL))
	if err != nil {
		return nil, fmt.Errorf("thumbnail for %s: %w", p.ID, err)
	}
	return data, nil
}

// RefreshedAt is the time of the last successful refresh, zero if none.
func (c *Cache) RefreshedAt() time.Time {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshedAt
}

// ForgetThumbnail drops the cached image of p so the next view fetches it
// again.
func (c *Cache) ForgetThumbnail(ctx context.Context, p strapi.Product) error {
	if p.PictureURL == "" {
		return nil
	}
	return c.images.Forget(ctx, imageKey(p.PictureURL))
}
