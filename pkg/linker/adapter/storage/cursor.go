package storage

import (
	"fmt"
	"sync"
)

// CursorCache remembers the backend continuation token that follows a page, so that
// sequential ListPage calls on token based backends do not rescan the listing from the start.
type CursorCache struct {
	mu      sync.Mutex
	cursors map[string]string
	limit   int
}

// NewCursorCache creates a cache holding at most limit cursors.
func NewCursorCache(limit int) *CursorCache {
	if limit <= 0 {
		limit = 1024
	}
	return &CursorCache{cursors: make(map[string]string), limit: limit}
}

func cursorKey(bucket, prefix string, offset int) string {
	return fmt.Sprintf("%s\x00%s\x00%d", bucket, prefix, offset)
}

// Get returns the cursor that starts the listing at offset.
func (c *CursorCache) Get(bucket, prefix string, offset int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.cursors[cursorKey(bucket, prefix, offset)]
	return cur, ok
}

// Put records the cursor that starts the listing at offset.
func (c *CursorCache) Put(bucket, prefix string, offset int, cursor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cursors) >= c.limit {
		c.cursors = make(map[string]string)
	}
	c.cursors[cursorKey(bucket, prefix, offset)] = cursor
}
