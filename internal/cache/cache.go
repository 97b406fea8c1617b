// Package cache provides the single-slot measurement cache that sits between
// the scheduler and the upstream provider.
//
// The slot holds the last successfully fetched reading. A failed refresh
// never clears or ages it out: callers get the stale reading back, or
// ErrUnavailable when nothing was ever fetched.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/almaty-air/internal/airquality"
)

// Defaults used when New is given zero values.
const (
	DefaultTTL          = 10 * time.Minute
	DefaultFetchTimeout = 15 * time.Second
)

// ErrUnavailable is returned when no reading can be served at all.
var ErrUnavailable = errors.New("air quality reading unavailable")

// Provider fetches the current reading from upstream.
type Provider interface {
	FetchCurrentReading(ctx context.Context) (*airquality.Reading, error)
}

// Observer is told about every freshly fetched reading. Observers run on
// their own goroutine, outside the cache lock, one reading at a time.
type Observer interface {
	ObserveReading(ctx context.Context, r *airquality.Reading)
}

// Cache is a thread-safe single-slot TTL cache for the current reading.
type Cache struct {
	provider     Provider
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	// mu guards the whole read/refresh/write sequence of Get.
	mu        sync.Mutex
	reading   *airquality.Reading
	fetchedAt time.Time
	fetches   int
	failures  int
	lastErr   error

	observers    []Observer
	notifyMu     sync.Mutex
	lastNotified time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver registers an observer for fresh readings.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observers = append(c.observers, o) }
}

// New creates a cache in front of provider. Zero ttl or fetchTimeout fall
// back to the defaults.
func New(provider Provider, ttl, fetchTimeout time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		provider:     provider,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current reading.
//
// Without forceRefresh a reading younger than the TTL is returned as is.
// Otherwise one fetch is attempted, bounded by the fetch timeout. On failure
// the previous reading is served; with no previous reading the error wraps
// ErrUnavailable.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (*airquality.Reading, error) {
	r, fetched, err := c.get(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	if fetched {
		go c.notify(context.WithoutCancel(ctx), r)
	}
	return r, nil
}

// Peek returns the slot's reading, fresh or stale, without ever fetching.
// An empty slot yields ErrUnavailable.
func (c *Cache) Peek() (*airquality.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reading == nil {
		if c.lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, c.lastErr)
		}
		return nil, ErrUnavailable
	}
	return c.reading, nil
}

// get runs under the lock; fetched reports whether r came from this call's
// own successful fetch.
func (c *Cache) get(ctx context.Context, forceRefresh bool) (r *airquality.Reading, fetched bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh && c.isFresh() {
		return c.reading, false, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	c.fetches++
	r, err = c.provider.FetchCurrentReading(fetchCtx)
	if err == nil && r == nil {
		err = errors.New("provider returned no reading")
	}
	if err != nil {
		c.failures++
		c.lastErr = err
		if c.reading != nil {
			c.logger.Warn("Air quality fetch failed, serving stale reading",
				"error", err, "age", c.now().Sub(c.fetchedAt).Round(time.Second))
			return c.reading, false, nil
		}
		c.logger.Error("Air quality fetch failed, no cached reading", "error", err)
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.reading = r
	c.fetchedAt = c.now()
	c.lastErr = nil
	return r, true, nil
}

func (c *Cache) isFresh() bool {
	return c.reading != nil && c.now().Sub(c.fetchedAt) < c.ttl
}

// notify runs off the caller's goroutine. Deliveries are serialized and a
// reading older than the last one delivered is dropped.
func (c *Cache) notify(ctx context.Context, r *airquality.Reading) {
	if len(c.observers) == 0 {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if r.CapturedAt.Before(c.lastNotified) {
		return
	}
	c.lastNotified = r.CapturedAt
	for _, o := range c.observers {
		o.ObserveReading(ctx, r)
	}
}

// Warm seeds an empty slot, e.g. from a persisted snapshot. The reading's
// capture time is taken as its fetch time so freshness still applies.
// It reports whether the slot was empty and got filled.
func (c *Cache) Warm(r *airquality.Reading) bool {
	if r == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reading != nil {
		return false
	}
	c.reading = r
	c.fetchedAt = r.CapturedAt
	return true
}

// Stats returns cache statistics.
func (c *Cache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := map[string]interface{}{
		"has_reading": c.reading != nil,
		"ttl_seconds": int(c.ttl.Seconds()),
		"fetches":     c.fetches,
		"failures":    c.failures,
	}
	if c.reading != nil {
		age := c.now().Sub(c.fetchedAt)
		stats["age_seconds"] = int(age.Seconds())
		stats["fresh"] = age < c.ttl
		stats["aqi"] = c.reading.AQI
	}
	if c.lastErr != nil {
		stats["last_error"] = c.lastErr.Error()
	}
	return stats
}
