package part2

import (
	"context"
	"sync"
)

const cacheSlots = 128

// existenceCache is a fixed-size circular buffer of datastream ids
// known to exist. Hits avoid a round trip to the document store on the
// observation ingest path. Negative results are never cached.
type existenceCache struct {
	mu     sync.Mutex
	slots  [cacheSlots]string
	cursor int

	lookup func(ctx context.Context, id string) (bool, error)
}

func newExistenceCache(lookup func(ctx context.Context, id string) (bool, error)) *existenceCache {
	return &existenceCache{lookup: lookup}
}

// Exists reports whether the id refers to a known datastream. Cache
// misses fall through to the store; a positive answer claims the slot
// under the cursor and advances it.
func (c *existenceCache) Exists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	for _, slot := range c.slots {
		if slot != "" && slot == id {
			c.mu.Unlock()
			return true, nil
		}
	}
	c.mu.Unlock()

	exists, err := c.lookup(ctx, id)
	if err != nil || !exists {
		return false, err
	}

	c.mu.Lock()
	c.slots[c.cursor] = id
	c.cursor = (c.cursor + 1) % cacheSlots
	c.mu.Unlock()

	return true, nil
}

// Remove clears the slot holding the id, if any, without moving the
// cursor.
func (c *existenceCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, slot := range c.slots {
		if slot == id {
			c.slots[i] = ""
			return
		}
	}
}
