// Package rowcache holds decoded arena rows in front of the store.
// Eviction is by insertion order: when full, the row that was inserted first is dropped,
// regardless of how often it was read since.
package rowcache

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/arena/mapslicehelp"
)

const DefaultCapacity = 10

type Cache struct {
	mu       sync.Mutex
	capacity int
	rows     *orderedmap.OrderedMap[int, []byte]
}

// New returns a cache holding at most capacity rows, DefaultCapacity when capacity < 1
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		rows:     orderedmap.New[int, []byte](),
	}
}

func (c *Cache) Get(rowID int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Get(rowID)
}

// Put stores a row. An existing row is replaced in place and keeps its position.
func (c *Cache) Put(rowID int, row []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, present := c.rows.Get(rowID); !present && c.rows.Len() >= c.capacity {
		c.rows.Delete(c.rows.Oldest().Key)
	}
	c.rows.Set(rowID, row)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = orderedmap.New[int, []byte]()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Len()
}

func (c *Cache) Capacity() int {
	return c.capacity
}

// Keys lists the cached row ids, oldest first
func (c *Cache) Keys() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mapslicehelp.OrderedMapKeys(c.rows)
}
