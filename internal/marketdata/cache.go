package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*CachingProvider)(nil)

// CachingProvider memoises series from an underlying Provider. Concurrent
// requests for the same range share one fetch. Failed fetches are not
// cached. Series are immutable and shared between callers.
type CachingProvider struct {
	next       Provider
	maxEntries int

	mu      sync.RWMutex
	entries map[string]*domain.BarSeries
	order   []string
	group   singleflight.Group
}

// NewCachingProvider wraps next, keeping at most maxEntries series (0 means
// unbounded). The oldest entry is evicted first.
func NewCachingProvider(next Provider, maxEntries int) *CachingProvider {
	return &CachingProvider{
		next:       next,
		maxEntries: maxEntries,
		entries:    make(map[string]*domain.BarSeries),
	}
}

func seriesKey(ticker string, start, end time.Time, tf domain.Timeframe) string {
	return fmt.Sprintf("%s|%s|%d|%d", strings.ToUpper(ticker), tf, start.UnixNano(), end.UnixNano())
}

// GetBars returns the cached series or fetches it once.
func (c *CachingProvider) GetBars(ctx context.Context, ticker string, start, end time.Time, tf domain.Timeframe) (*domain.BarSeries, error) {
	key := seriesKey(ticker, start, end, tf)

	c.mu.RLock()
	s, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		s, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return s, nil
		}
		s, err := c.next.GetBars(ctx, ticker, start, end, tf)
		if err != nil {
			return nil, err
		}
		c.put(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.BarSeries), nil
}

func (c *CachingProvider) put(key string, s *domain.BarSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = s
	c.order = append(c.order, key)
	if c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of cached series.
func (c *CachingProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
