// Package chartcache keeps one historical series per (symbol, interval) and
// refreshes it lazily once it is older than the caller's refresh duration.
package chartcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"twscan/internal/fetcher"
)

type key struct {
	symbol   string
	interval string
}

type entry struct {
	series    fetcher.Series
	fetchedAt time.Time
}

// Cache is owned by the scan loop and is not safe for concurrent use.
type Cache struct {
	source  fetcher.ChartFetcher
	logger  zerolog.Logger
	now     func() time.Time
	entries map[key]entry

	onFailure func()
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFailureHook registers a callback invoked on every failed refresh.
func WithFailureHook(fn func()) Option {
	return func(c *Cache) { c.onFailure = fn }
}

// New builds an empty cache backed by source.
func New(source fetcher.ChartFetcher, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		source:  source,
		logger:  logger.With().Str("component", "chart_cache").Logger(),
		now:     time.Now,
		entries: make(map[key]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached series, refreshing it first when absent or older than
// refresh. A failed refresh keeps the previous series and leaves its timestamp
// alone so the next call retries; with nothing cached it yields an empty series.
func (c *Cache) Get(ctx context.Context, symbol, interval, span string, refresh time.Duration) fetcher.Series {
	k := key{symbol: symbol, interval: interval}
	now := c.now()

	cached, ok := c.entries[k]
	if ok && now.Sub(cached.fetchedAt) <= refresh {
		return cached.series
	}

	series, err := c.source.FetchChart(ctx, symbol, span, interval)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("chart refresh failed")
		if c.onFailure != nil {
			c.onFailure()
		}
		return cached.series
	}

	c.entries[k] = entry{series: series, fetchedAt: now}
	return series
}

// Len reports the number of cached series.
func (c *Cache) Len() int {
	return len(c.entries)
}
