package indicator

import (
	"context"
	"fmt"
	"sync"
)

// #region cache
// Cache memoizes fetched readings of an underlying Provider. Defaulted
// readings are not stored, so a later lookup retries them.
type Cache struct {
	next Provider

	mu     sync.Mutex
	values map[string]Reading
}

// NewCache wraps p.
func NewCache(p Provider) *Cache {
	return &Cache{next: p, values: make(map[string]Reading)}
}

func (c *Cache) Latest(ctx context.Context, country, indicator string) Reading {
	return c.lookup(country+"/"+indicator, func() Reading {
		return c.next.Latest(ctx, country, indicator)
	})
}

func (c *Cache) ForYear(ctx context.Context, country, indicator string, year int) Reading {
	return c.lookup(fmt.Sprintf("%s/%s/%d", country, indicator, year), func() Reading {
		return c.next.ForYear(ctx, country, indicator, year)
	})
}

func (c *Cache) lookup(key string, fetch func() Reading) Reading {
	c.mu.Lock()
	r, ok := c.values[key]
	c.mu.Unlock()
	if ok {
		return r
	}
	r = fetch()
	if !r.IsDefaulted() {
		c.mu.Lock()
		c.values[key] = r
		c.mu.Unlock()
	}
	return r
}

// #endregion cache
