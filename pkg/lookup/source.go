// Package lookup models cascading dependent selectors such as
// region → sub-region → locality. Each level loads its options from a Source
// keyed by the selection of the level above it.
package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gabrielmiguelok/tropa/pkg/metrics"
	"github.com/gabrielmiguelok/tropa/pkg/retry"
)

// ErrNotFound is returned by sources when the parent id is unknown.
var ErrNotFound = errors.New("lookup: parent not found")

// Option is one selectable entry.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Source lists the options available under a parent. The root level is
// queried with an empty parentID. Options are returned in display order.
type Source interface {
	ListOptions(ctx context.Context, parentID string) ([]Option, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, parentID string) ([]Option, error)

func (f SourceFunc) ListOptions(ctx context.Context, parentID string) ([]Option, error) {
	return f(ctx, parentID)
}

// StaticSource serves options from a map keyed by parent id.
type StaticSource map[string][]Option

func (s StaticSource) ListOptions(ctx context.Context, parentID string) ([]Option, error) {
	opts, ok := s[parentID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Option(nil), opts...), nil
}

// CacheConfig configures a CachedSource.
type CacheConfig struct {
	// Level labels metrics, e.g. "region".
	Level string

	// Size is the maximum number of cached parents.
	Size int

	// TTL is how long a list stays fresh.
	TTL time.Duration

	// Retry is applied to misses. Zero Attempts means retry.DefaultConfig.
	Retry retry.Config

	Metrics *metrics.Metrics
}

// CachedSource memoizes a Source per parent id in an expiring LRU and
// retries transient failures. Failures are never cached.
type CachedSource struct {
	next    Source
	cache   *expirable.LRU[string, []Option]
	level   string
	retry   retry.Config
	metrics *metrics.Metrics
}

// NewCachedSource wraps next.
func NewCachedSource(next Source, cfg CacheConfig) *CachedSource {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = func(err error) bool {
			return !errors.Is(err, ErrNotFound) && !retry.IsPermanent(err)
		}
	}
	return &CachedSource{
		next:    next,
		cache:   expirable.NewLRU[string, []Option](cfg.Size, nil, cfg.TTL),
		level:   cfg.Level,
		retry:   cfg.Retry,
		metrics: cfg.Metrics,
	}
}

func (c *CachedSource) ListOptions(ctx context.Context, parentID string) ([]Option, error) {
	if opts, ok := c.cache.Get(parentID); ok {
		c.metrics.Lookup(c.level, "hit")
		return append([]Option(nil), opts...), nil
	}

	opts, err := retry.DoValue(ctx, c.retry, func(ctx context.Context) ([]Option, error) {
		return c.next.ListOptions(ctx, parentID)
	})
	if err != nil {
		c.metrics.Lookup(c.level, "error")
		return nil, err
	}

	c.metrics.Lookup(c.level, "miss")
	c.cache.Add(parentID, opts)
	return append([]Option(nil), opts...), nil
}

// Purge drops every cached list.
func (c *CachedSource) Purge() {
	c.cache.Purge()
}
