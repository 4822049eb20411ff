package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/pkg/arcade"
)

const (
	// DefaultTTL is how long a snapshot is served without refetching.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxStale bounds how long past its TTL a snapshot may be served
	// when refreshes fail.
	DefaultMaxStale = time.Hour
)

// Fetcher loads the full remote catalog.
type Fetcher interface {
	ListTools(ctx context.Context, opts arcade.ListToolsOptions) ([]arcade.ToolDescriptor, error)
}

// Snapshot is one immutable fetch of the catalog.
type Snapshot struct {
	Tools     []arcade.ToolDescriptor
	FetchedAt time.Time
}

// Query selects a view of the catalog.
type Query struct {
	Toolkit      string
	Limit        int
	ForceRefresh bool
}

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	// MaxStale is the ceiling past TTL for stale fallback. Negative disables
	// the ceiling.
	MaxStale time.Duration
	Clock    func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Cache holds the last successfully fetched catalog snapshot. The snapshot is
// replaced atomically, so readers never observe a partial refresh.
type Cache struct {
	fetcher  Fetcher
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	// mu pairs the epoch check with the store so an Invalidate that lands
	// during a fetch is never overwritten by the older result.
	mu      sync.Mutex
	epoch   uint64
	current atomic.Pointer[Snapshot]
}

// New creates an empty cache.
func New(fetcher Fetcher, opts Options) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		ttl:      opts.TTL,
		maxStale: opts.MaxStale,
		now:      opts.Clock,
		logger:   opts.Logger.With().Str("component", "catalog").Logger(),
		metrics:  opts.Metrics,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.maxStale == 0 {
		c.maxStale = DefaultMaxStale
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Tools answers a catalog query, refreshing the snapshot when it is absent,
// expired or a refresh is forced. A failed refresh falls back to the previous
// snapshot while it is within the staleness ceiling.
func (c *Cache) Tools(ctx context.Context, q Query) ([]arcade.ToolDescriptor, error) {
	snap := c.current.Load()
	if q.ForceRefresh || snap == nil || c.expired(snap) {
		fresh, err := c.refresh(ctx)
		switch {
		case err == nil:
			snap = fresh
		case snap == nil:
			return nil, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			age := c.now().Sub(snap.FetchedAt)
			if c.maxStale > 0 && age > c.ttl+c.maxStale {
				return nil, fmt.Errorf("catalog snapshot is %s old, past the staleness ceiling: %w", age.Round(time.Second), err)
			}
			c.logger.Warn().
				Err(err).
				Dur("age", age).
				Int("tools", len(snap.Tools)).
				Msg("Catalog refresh failed, serving stale snapshot")
			c.metrics.RecordStaleServed()
		}
	}
	return view(snap, q), nil
}

// Refresh forces a fetch and returns the new snapshot.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.refresh(ctx)
}

// Snapshot returns the current snapshot, or nil if none is held.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Invalidate drops the snapshot so the next query refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.epoch++
	old := c.current.Swap(nil)
	c.mu.Unlock()
	if old != nil {
		c.logger.Debug().Msg("Catalog invalidated")
	}
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) expired(snap *Snapshot) bool {
	return c.now().Sub(snap.FetchedAt) > c.ttl
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	tools, err := c.fetcher.ListTools(ctx, arcade.ListToolsOptions{})
	if err != nil {
		c.metrics.RecordCatalogFetch("error")
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	c.metrics.RecordCatalogFetch("ok")

	snap := &Snapshot{
		Tools:     append([]arcade.ToolDescriptor(nil), tools...),
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	stale := c.epoch != epoch
	if !stale {
		c.current.Store(snap)
	}
	c.mu.Unlock()

	if stale {
		// The caller still gets what it asked for; the next query refetches.
		c.logger.Debug().Msg("Catalog invalidated during refresh, result not cached")
		return snap, nil
	}
	c.logger.Debug().Int("tools", len(snap.Tools)).Msg("Catalog refreshed")
	return snap, nil
}

func view(snap *Snapshot, q Query) []arcade.ToolDescriptor {
	out := make([]arcade.ToolDescriptor, 0, len(snap.Tools))
	for _, tool := range snap.Tools {
		if q.Toolkit != "" && tool.Toolkit != q.Toolkit {
			continue
		}
		out = append(out, tool)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}
