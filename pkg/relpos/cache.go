package relpos

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"relbias/pkg/tensor"
)

// Cache memoizes index tables and log-coordinate grids per configuration so
// that identically configured bias heads (for example the same window in
// every layer of a stage) share one read-only copy.
//
// Concurrent requests for the same key are collapsed into one build. Values
// handed out by the cache are shared and must not be modified. The zero value
// is ready to use.
type Cache struct {
	group  singleflight.Group
	mu     sync.RWMutex
	index  map[string]*IndexTable
	coords map[string]*tensor.Tensor
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Index returns the cached result of RelativePositionIndex(q, k, classToken).
func (c *Cache) Index(q, k Window, classToken bool) (*IndexTable, error) {
	if k.IsZero() {
		k = q
	}
	key := fmt.Sprintf("index/%v/%v/%t", q, k, classToken)

	c.mu.RLock()
	table, ok := c.index[key]
	c.mu.RUnlock()
	if ok {
		return table, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		table, err := RelativePositionIndex(q, k, classToken)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.index == nil {
			c.index = make(map[string]*IndexTable)
		}
		c.index[key] = table
		c.mu.Unlock()
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*IndexTable), nil
}

// LogCoords returns the cached result of LogCoords(win, pretrained, mode).
func (c *Cache) LogCoords(win, pretrained Window, mode Mode) (*tensor.Tensor, error) {
	key := fmt.Sprintf("coords/%v/%v/%s", win, pretrained, mode)

	c.mu.RLock()
	grid, ok := c.coords[key]
	c.mu.RUnlock()
	if ok {
		return grid, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		grid, err := LogCoords(win, pretrained, mode)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.coords == nil {
			c.coords = make(map[string]*tensor.Tensor)
		}
		c.coords[key] = grid
		c.mu.Unlock()
		return grid, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tensor.Tensor), nil
}

// Len returns the number of cached buffers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index) + len(c.coords)
}
