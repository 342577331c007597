package backtest

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"strategylab/internal/domain"
	"strategylab/internal/observability"
)

// CacheKey identifies a backtest by every input that influences its result.
type CacheKey string

// NewCacheKey builds the key for the given inputs. Tickers are compared
// case-insensitively and capital by its exact bit pattern.
func NewCacheKey(strategyID, ticker string, params domain.Params, start, end time.Time, capital float64) CacheKey {
	return CacheKey(fmt.Sprintf("%s|%s|%d|%d|%d|%d|%x",
		strategyID,
		strings.ToUpper(ticker),
		params.ShortPeriod,
		params.LongPeriod,
		start.UnixNano(),
		end.UnixNano(),
		math.Float64bits(capital),
	))
}

// ResultCache memoises complete backtest results. Concurrent computations
// of the same key collapse into one: later callers block on the first and
// receive its result. Errors are never stored. Results are shared and must
// be treated as read-only.
type ResultCache struct {
	maxEntries int

	mu      sync.RWMutex
	entries map[CacheKey]*domain.BacktestResult
	order   []CacheKey
	group   singleflight.Group
}

// NewResultCache creates a cache holding at most maxEntries results; 0 means
// unbounded. The oldest entry is evicted first.
func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &ResultCache{
		maxEntries: maxEntries,
		entries:    make(map[CacheKey]*domain.BacktestResult),
	}
}

// Get returns the cached result for key.
func (c *ResultCache) Get(key CacheKey) (*domain.BacktestResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Do returns the cached result for key or computes it with fn. The second
// return value reports the outcome: observability.CacheHit,
// observability.CacheMiss when this call ran fn, or observability.CacheShared
// when it waited on a concurrent call.
func (c *ResultCache) Do(key CacheKey, fn func() (*domain.BacktestResult, error)) (*domain.BacktestResult, string, error) {
	if r, ok := c.Get(key); ok {
		return r, observability.CacheHit, nil
	}

	ran := false
	v, err, shared := c.group.Do(string(key), func() (any, error) {
		// A previous flight may have finished between Get and Do.
		if r, ok := c.Get(key); ok {
			return r, nil
		}
		ran = true
		r, err := fn()
		if err != nil {
			return nil, err
		}
		c.put(key, r)
		return r, nil
	})

	outcome := observability.CacheMiss
	switch {
	case shared && !ran:
		outcome = observability.CacheShared
	case !ran && err == nil:
		outcome = observability.CacheHit
	}
	if err != nil {
		return nil, outcome, err
	}
	return v.(*domain.BacktestResult), outcome, nil
}

func (c *ResultCache) put(key CacheKey, r *domain.BacktestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = r
	c.order = append(c.order, key)
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
