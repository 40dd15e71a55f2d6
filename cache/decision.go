package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DecisionCache memoizes block/allow decisions by exact request URL.
//
// With a zero size the cache is an unbounded map that lives exactly as long
// as the rule set it was built for.  A positive size bounds it with an LRU.
type DecisionCache struct {
	mu        sync.RWMutex
	decisions map[string]bool

	// bounded is non-nil when the cache was created with a positive size.
	bounded *lru.Cache
}

// NewDecisionCache creates a decision cache.  size <= 0 means unbounded.
func NewDecisionCache(size int) *DecisionCache {
	if size > 0 {
		c, err := lru.New(size)
		if err == nil {
			return &DecisionCache{bounded: c}
		}
	}

	return &DecisionCache{
		decisions: make(map[string]bool),
	}
}

// Get returns the cached decision for url.
func (c *DecisionCache) Get(url string) (blocked, ok bool) {
	if c.bounded != nil {
		v, found := c.bounded.Get(url)
		if !found {
			return false, false
		}

		return v.(bool), true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	blocked, ok = c.decisions[url]

	return blocked, ok
}

// Put stores the decision for url.
func (c *DecisionCache) Put(url string, blocked bool) {
	if c.bounded != nil {
		c.bounded.Add(url, blocked)

		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.decisions[url] = blocked
}

// Len returns the number of cached decisions.
func (c *DecisionCache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.decisions)
}
