package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	KindAuditList    = "audit-list"
	KindAuditDetail  = "audit-detail"
	KindBatchSummary = "batch-summary"
	KindTemplates    = "templates"
)

// Key identifies a cached query. ID is the item or batch the query is about;
// Variant carries any other parameters (filters, paging, user).
type Key struct {
	Kind    string
	ID      string
	Variant string
}

func (k Key) String() string {
	return strings.Join([]string{k.Kind, k.ID, k.Variant}, "\x1f")
}

func OfKind(kinds ...string) func(Key) bool {
	return func(k Key) bool {
		for _, kind := range kinds {
			if k.Kind == kind {
				return true
			}
		}
		return false
	}
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

// Cache memoizes query results. Concurrent fetches of one key share a single
// call. Invalidated entries are refetched on next use; removed entries are
// gone entirely.
type Cache struct {
	clock clockwork.Clock
	group singleflight.Group

	mu      sync.Mutex
	entries map[Key]*entry
	// gen advances on every Invalidate/Remove so results of fetches that
	// started earlier are stored as already stale.
	gen uint64
}

func NewCache(clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{clock: clock, entries: make(map[Key]*entry)}
}

// Fetch returns the cached value for key when it is younger than staleTime,
// otherwise runs fn and caches its result. Errors are not cached.
func Fetch[T any](ctx context.Context, c *Cache, key Key, staleTime time.Duration, fn func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale && c.clock.Since(e.fetchedAt) < staleTime {
		v := e.value.(T)
		c.mu.Unlock()
		return v, nil
	}
	startGen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &entry{value: out, fetchedAt: c.clock.Now(), stale: c.gen != startGen}
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Peek returns a cached value without fetching, stale or not.
func Peek[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

// Invalidate marks matching entries stale and returns how many matched.
func (c *Cache) Invalidate(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	n := 0
	for k, e := range c.entries {
		if match(k) {
			e.stale = true
			n++
		}
	}
	return n
}

// Remove drops matching entries and returns how many were removed.
func (c *Cache) Remove(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// IsStale reports whether key is cached and marked stale.
func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.stale
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
